package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// FieldType is the declared type of a payload field.
type FieldType byte

const (
	FieldTypeNil    FieldType = 0x00
	FieldTypeFloat  FieldType = 0x01
	FieldTypeInt    FieldType = 0x02
	FieldTypeString FieldType = 0x03
	FieldTypeBool   FieldType = 0x04
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeNil:
		return "nil"
	case FieldTypeFloat:
		return "float"
	case FieldTypeInt:
		return "int"
	case FieldTypeString:
		return "string"
	case FieldTypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// FieldValue holds one typed event or payload field.
type FieldValue struct {
	kind FieldType
	data any
}

// Fields is a set of named, typed values.
type Fields map[string]FieldValue

// NewFieldValue wraps a Go value. Integers are widened to int64 and floats
// to float64; any other type is rejected.
func NewFieldValue(data any) (FieldValue, error) {
	switch v := data.(type) {
	case float64:
		return FieldValue{kind: FieldTypeFloat, data: v}, nil
	case float32:
		return FieldValue{kind: FieldTypeFloat, data: float64(v)}, nil
	case int:
		return FieldValue{kind: FieldTypeInt, data: int64(v)}, nil
	case int32:
		return FieldValue{kind: FieldTypeInt, data: int64(v)}, nil
	case int64:
		return FieldValue{kind: FieldTypeInt, data: v}, nil
	case uint32:
		return FieldValue{kind: FieldTypeInt, data: int64(v)}, nil
	case string:
		return FieldValue{kind: FieldTypeString, data: v}, nil
	case bool:
		return FieldValue{kind: FieldTypeBool, data: v}, nil
	case nil:
		return FieldValue{kind: FieldTypeNil}, nil
	default:
		return FieldValue{}, &UnsupportedTypeError{Message: fmt.Sprintf("unsupported value type: %T", data)}
	}
}

// Int64Value is a shorthand for an int field.
func Int64Value(v int64) FieldValue { return FieldValue{kind: FieldTypeInt, data: v} }

// StringValue is a shorthand for a string field.
func StringValue(v string) FieldValue { return FieldValue{kind: FieldTypeString, data: v} }

// FloatValue is a shorthand for a float field.
func FloatValue(v float64) FieldValue { return FieldValue{kind: FieldTypeFloat, data: v} }

// BoolValue is a shorthand for a bool field.
func BoolValue(v bool) FieldValue { return FieldValue{kind: FieldTypeBool, data: v} }

func (fv FieldValue) Type() FieldType { return fv.kind }

func (fv FieldValue) IsNull() bool { return fv.kind == FieldTypeNil }

func (fv FieldValue) Int64() (int64, bool) {
	v, ok := fv.data.(int64)
	return v, ok
}

func (fv FieldValue) Float64() (float64, bool) {
	v, ok := fv.data.(float64)
	return v, ok
}

func (fv FieldValue) Str() (string, bool) {
	v, ok := fv.data.(string)
	return v, ok
}

func (fv FieldValue) Bool() (bool, bool) {
	v, ok := fv.data.(bool)
	return v, ok
}

// String renders the value the way it is shown in argument lists.
func (fv FieldValue) String() string {
	switch v := fv.data.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Encode serializes the fields in name order so identical inputs produce
// identical bytes.
func (f Fields) Encode(buf *bytes.Buffer) error {
	WriteUvarint(buf, uint64(len(f)))
	for _, name := range f.Names() {
		WriteUvarint(buf, uint64(len(name)))
		buf.WriteString(name)
		v := f[name]
		buf.WriteByte(byte(v.kind))
		if err := encodeValue(buf, v); err != nil {
			return fmt.Errorf("failed to encode value for key '%s': %w", name, err)
		}
	}
	return nil
}

// DecodeFields reads a field set written by Encode.
func DecodeFields(r *bytes.Reader) (Fields, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read field count: %w", err)
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("field count %d exceeds remaining %d bytes", n, r.Len())
	}
	fields := make(Fields, n)
	for i := uint64(0); i < n; i++ {
		name, err := ReadString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read key for pair %d: %w", i, err)
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read value type for key '%s': %w", name, err)
		}
		v, err := decodeValue(FieldType(kindByte), r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode value for key '%s': %w", name, err)
		}
		fields[name] = v
	}
	return fields, nil
}

func encodeValue(buf *bytes.Buffer, v FieldValue) error {
	var scratch [8]byte
	switch v.kind {
	case FieldTypeFloat:
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v.data.(float64)))
		buf.Write(scratch[:])
	case FieldTypeInt:
		WriteVarint(buf, v.data.(int64))
	case FieldTypeString:
		s := v.data.(string)
		WriteUvarint(buf, uint64(len(s)))
		buf.WriteString(s)
	case FieldTypeBool:
		if v.data.(bool) {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case FieldTypeNil:
	default:
		return &UnsupportedTypeError{Message: v.kind.String()}
	}
	return nil
}

func decodeValue(t FieldType, r *bytes.Reader) (FieldValue, error) {
	switch t {
	case FieldTypeFloat:
		var scratch [8]byte
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return FieldValue{}, err
		}
		return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(scratch[:]))), nil
	case FieldTypeInt:
		v, err := binary.ReadVarint(r)
		if err != nil {
			return FieldValue{}, err
		}
		return Int64Value(v), nil
	case FieldTypeString:
		s, err := ReadString(r)
		if err != nil {
			return FieldValue{}, err
		}
		return StringValue(s), nil
	case FieldTypeBool:
		b, err := r.ReadByte()
		if err != nil {
			return FieldValue{}, err
		}
		return BoolValue(b == 1), nil
	case FieldTypeNil:
		return FieldValue{kind: FieldTypeNil}, nil
	default:
		return FieldValue{}, fmt.Errorf("unsupported value type for decoding: %v", t)
	}
}

// WriteUvarint writes an unsigned varint.
func WriteUvarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

// WriteVarint writes a zig-zag varint.
func WriteVarint(buf *bytes.Buffer, v int64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scratch[:], v)
	buf.Write(scratch[:n])
}

// WriteString writes a uvarint length followed by the bytes of s.
func WriteString(buf *bytes.Buffer, s string) {
	WriteUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// ReadString reads a string written by WriteString.
func ReadString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > uint64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
