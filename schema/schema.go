// Package schema declares the typed fields an analysis reads from trace
// events. Schemas are checked when they are built, so a misspelt or
// mistyped declaration fails before any event is processed.
package schema

import (
	"fmt"
	"strings"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/trace"
)

// Field declares one event field.
type Field struct {
	Name     string
	Type     core.FieldType
	Required bool
}

// Schema is an immutable, validated set of field declarations.
type Schema struct {
	name   string
	fields []Field
}

// New validates the declarations and returns the schema.
func New(name string, fields ...Field) (*Schema, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &core.ValidationError{Message: "schema name is empty", Field: "schema"}
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, &core.ValidationError{Message: "field name is empty", Field: "schema", Value: name}
		}
		if _, dup := seen[f.Name]; dup {
			return nil, &core.ValidationError{Message: "field declared twice", Field: "schema", Value: f.Name}
		}
		switch f.Type {
		case core.FieldTypeInt, core.FieldTypeFloat, core.FieldTypeString, core.FieldTypeBool:
		default:
			return nil, &core.ValidationError{Message: fmt.Sprintf("unsupported field type %v", f.Type), Field: "schema", Value: f.Name}
		}
		seen[f.Name] = struct{}{}
	}
	return &Schema{name: name, fields: append([]Field(nil), fields...)}, nil
}

// MustNew is like New but panics on an invalid declaration. It is meant
// for schemas declared as package variables.
func MustNew(name string, fields ...Field) *Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Fields returns a copy of the declarations.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Extract reads the declared fields from ev. A missing required field or a
// value of the wrong type yields a *core.ValidationError. Int values are
// accepted for Float fields. Optional fields that are absent or null are
// left out of the result.
func (s *Schema) Extract(ev trace.Event) (core.Fields, error) {
	out := make(core.Fields, len(s.fields))
	for _, f := range s.fields {
		v, ok := ev.Field(f.Name)
		if !ok || v.IsNull() {
			if f.Required {
				return nil, &core.ValidationError{
					Message: fmt.Sprintf("required by %s for event %s", s.name, ev.Name()),
					Field:   f.Name,
				}
			}
			continue
		}
		cv, err := coerce(v, f.Type)
		if err != nil {
			return nil, &core.ValidationError{
				Message: fmt.Sprintf("%s: %v", s.name, err),
				Field:   f.Name,
				Value:   v.String(),
			}
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerce(v core.FieldValue, want core.FieldType) (core.FieldValue, error) {
	if v.Type() == want {
		return v, nil
	}
	if want == core.FieldTypeFloat && v.Type() == core.FieldTypeInt {
		i, _ := v.Int64()
		return core.FloatValue(float64(i)), nil
	}
	return core.FieldValue{}, fmt.Errorf("got %v, want %v", v.Type(), want)
}

// ParseFieldType converts a configuration name to a field type.
func ParseFieldType(s string) (core.FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "int64", "integer":
		return core.FieldTypeInt, nil
	case "float", "float64", "double":
		return core.FieldTypeFloat, nil
	case "string", "str":
		return core.FieldTypeString, nil
	case "bool", "boolean":
		return core.FieldTypeBool, nil
	default:
		return core.FieldTypeNil, fmt.Errorf("unknown field type %q", s)
	}
}
