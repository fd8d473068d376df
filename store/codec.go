package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/nexustrace/core"
)

// Codec converts payloads to and from their persisted form.
type Codec[P any] interface {
	Encode(buf *bytes.Buffer, payload P) error
	Decode(r *bytes.Reader) (P, error)
}

// FieldsCodec stores core.Fields payloads.
type FieldsCodec struct{}

func (FieldsCodec) Encode(buf *bytes.Buffer, payload core.Fields) error {
	return payload.Encode(buf)
}

func (FieldsCodec) Decode(r *bytes.Reader) (core.Fields, error) {
	return core.DecodeFields(r)
}

// encodeRecord writes the interval bounds followed by the encoded payload.
func encodeRecord[P any](buf *bytes.Buffer, codec Codec[P], iv core.Interval[P]) error {
	core.WriteVarint(buf, iv.Start)
	core.WriteVarint(buf, iv.End)
	return codec.Encode(buf, iv.Payload)
}

func decodeBounds(r *bytes.Reader) (start, end int64, err error) {
	if start, err = binary.ReadVarint(r); err != nil {
		return 0, 0, fmt.Errorf("%w: reading interval start: %v", core.ErrCorrupted, err)
	}
	if end, err = binary.ReadVarint(r); err != nil {
		return 0, 0, fmt.Errorf("%w: reading interval end: %v", core.ErrCorrupted, err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: persisted interval [%d, %d] is inverted", core.ErrCorrupted, start, end)
	}
	return start, end, nil
}

func decodeRecord[P any](data []byte, codec Codec[P]) (core.Interval[P], error) {
	r := bytes.NewReader(data)
	start, end, err := decodeBounds(r)
	if err != nil {
		return core.Interval[P]{}, err
	}
	payload, err := codec.Decode(r)
	if err != nil {
		return core.Interval[P]{}, fmt.Errorf("%w: decoding payload: %v", core.ErrCorrupted, err)
	}
	return core.Interval[P]{Start: start, End: end, Payload: payload}, nil
}
