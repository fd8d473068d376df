package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/INLOpen/nexustrace/core"
)

// jsonEvent is the line format of a JSON-lines trace:
//
//	{"ts": 1200, "name": "syscall_entry_read", "fields": {"tid": 7, "fd": 3}}
type jsonEvent struct {
	Timestamp *int64                     `json:"ts"`
	Name      string                     `json:"name"`
	Fields    map[string]json.RawMessage `json:"fields,omitempty"`
}

// maxLineSize bounds a single JSON line.
const maxLineSize = 1 << 20

// JSONLSource reads events from a JSON-lines stream, one event per line.
// Blank lines are skipped.
type JSONLSource struct {
	scanner *bufio.Scanner
	line    int
}

func NewJSONLSource(r io.Reader) *JSONLSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &JSONLSource{scanner: sc}
}

func (s *JSONLSource) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", core.ErrSourceLost, s.line+1, err)
			}
			return nil, io.EOF
		}
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := decodeJSONEvent(line)
		if err != nil {
			return nil, &core.ValidationError{Message: fmt.Sprintf("line %d: %v", s.line, err), Field: "line", Value: strconv.Itoa(s.line)}
		}
		return ev, nil
	}
}

func decodeJSONEvent(line []byte) (*Record, error) {
	var raw jsonEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	if raw.Timestamp == nil {
		return nil, fmt.Errorf("missing ts")
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	fields := make(core.Fields, len(raw.Fields))
	for name, msg := range raw.Fields {
		v, err := decodeJSONValue(msg)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = v
	}
	return &Record{Time: *raw.Timestamp, Type: raw.Name, Values: fields}, nil
}

// decodeJSONValue maps JSON scalars to field values. Integral numbers
// become Int64 values, other numbers Float values.
func decodeJSONValue(msg json.RawMessage) (core.FieldValue, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return core.FieldValue{}, err
	}
	switch x := v.(type) {
	case nil:
		return core.NewFieldValue(nil)
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return core.Int64Value(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return core.FieldValue{}, err
		}
		return core.FloatValue(f), nil
	case string:
		return core.StringValue(x), nil
	case bool:
		return core.BoolValue(x), nil
	default:
		return core.FieldValue{}, &core.UnsupportedTypeError{Message: fmt.Sprintf("%T", v)}
	}
}

// JSONLWriter writes events in the format read by JSONLSource.
type JSONLWriter struct {
	w *bufio.Writer
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

func (jw *JSONLWriter) Write(ev Event) error {
	ts := ev.Timestamp()
	out := struct {
		Timestamp *int64         `json:"ts"`
		Name      string         `json:"name"`
		Fields    map[string]any `json:"fields,omitempty"`
	}{Timestamp: &ts, Name: ev.Name()}

	if fields := ev.Fields(); len(fields) > 0 {
		out.Fields = make(map[string]any, len(fields))
		for name, v := range fields {
			out.Fields[name] = jsonValue(v)
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if _, err := jw.w.Write(b); err != nil {
		return err
	}
	return jw.w.WriteByte('\n')
}

func (jw *JSONLWriter) Flush() error {
	return jw.w.Flush()
}

func jsonValue(v core.FieldValue) any {
	switch v.Type() {
	case core.FieldTypeInt:
		i, _ := v.Int64()
		return i
	case core.FieldTypeFloat:
		f, _ := v.Float64()
		return f
	case core.FieldTypeString:
		s, _ := v.Str()
		return s
	case core.FieldTypeBool:
		b, _ := v.Bool()
		return b
	default:
		return nil
	}
}
