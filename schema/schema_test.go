package schema

import (
	"testing"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		schema string
		fields []Field
	}{
		{name: "EmptyName", schema: " ", fields: nil},
		{name: "EmptyField", schema: "s", fields: []Field{{Name: "", Type: core.FieldTypeInt}}},
		{name: "Duplicate", schema: "s", fields: []Field{{Name: "tid", Type: core.FieldTypeInt}, {Name: "tid", Type: core.FieldTypeString}}},
		{name: "NilType", schema: "s", fields: []Field{{Name: "tid", Type: core.FieldTypeNil}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.schema, tc.fields...)
			require.Error(t, err)
			assert.True(t, core.IsValidationError(err))
		})
	}

	assert.Panics(t, func() { MustNew("") })
}

func TestSchema_Extract(t *testing.T) {
	s := MustNew("exit",
		Field{Name: "tid", Type: core.FieldTypeInt, Required: true},
		Field{Name: "ret", Type: core.FieldTypeFloat, Required: true},
		Field{Name: "comm", Type: core.FieldTypeString},
	)
	assert.Equal(t, "exit", s.Name())
	assert.Len(t, s.Fields(), 3)

	ev := &trace.Record{Time: 1, Type: "syscall_exit_read", Values: core.Fields{
		"tid":   core.Int64Value(7),
		"ret":   core.Int64Value(3),
		"other": core.StringValue("ignored"),
	}}
	got, err := s.Extract(ev)
	require.NoError(t, err)
	assert.Equal(t, core.Fields{"tid": core.Int64Value(7), "ret": core.FloatValue(3)}, got)

	missing := &trace.Record{Type: "syscall_exit_read", Values: core.Fields{"ret": core.Int64Value(0)}}
	_, err = s.Extract(missing)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "tid")

	wrongType := &trace.Record{Values: core.Fields{"tid": core.StringValue("seven"), "ret": core.Int64Value(0)}}
	_, err = s.Extract(wrongType)
	assert.True(t, core.IsValidationError(err))
}

func TestParseFieldType(t *testing.T) {
	for in, want := range map[string]core.FieldType{
		"int": core.FieldTypeInt, "Float": core.FieldTypeFloat, "string": core.FieldTypeString, "bool": core.FieldTypeBool,
	} {
		got, err := ParseFieldType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFieldType("map")
	assert.Error(t, err)
}
