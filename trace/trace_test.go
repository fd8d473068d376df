package trace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/INLOpen/nexustrace/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(
		&Record{Time: 1, Type: "a"},
		&Record{Time: 2, Type: "b"},
	)
	ctx := context.Background()

	ev, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Name())
	ev, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.Timestamp())
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceSource(&Record{}).Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONLSource(t *testing.T) {
	input := strings.Join([]string{
		`{"ts": 10, "name": "syscall_entry_read", "fields": {"tid": 7, "fd": 3, "ratio": 0.5, "path": "/etc", "ok": true, "none": null}}`,
		``,
		`not json`,
		`{"name": "no_ts"}`,
		`{"ts": 12, "name": "nested", "fields": {"obj": {"a": 1}}}`,
		`{"ts": 20, "name": "syscall_exit_read", "fields": {"tid": 7, "ret": -11}}`,
	}, "\n")
	src := NewJSONLSource(strings.NewReader(input))
	ctx := context.Background()

	ev, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), ev.Timestamp())
	assert.Equal(t, "syscall_entry_read", ev.Name())
	tid, ok := ev.Field("tid")
	require.True(t, ok)
	assert.Equal(t, core.FieldTypeInt, tid.Type())
	ratio, _ := ev.Field("ratio")
	assert.Equal(t, core.FieldTypeFloat, ratio.Type())
	path, _ := ev.Field("path")
	assert.Equal(t, core.StringValue("/etc"), path)
	okField, _ := ev.Field("ok")
	assert.Equal(t, core.BoolValue(true), okField)
	none, _ := ev.Field("none")
	assert.True(t, none.IsNull())

	for range 3 {
		_, err = src.Next(ctx)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err), "malformed lines are per-event errors: %v", err)
	}

	ev, err = src.Next(ctx)
	require.NoError(t, err)
	ret, _ := ev.Field("ret")
	assert.Equal(t, core.Int64Value(-11), ret)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestJSONLSource_ReadFailureIsSourceLoss(t *testing.T) {
	_, err := NewJSONLSource(failingReader{}).Next(context.Background())
	assert.ErrorIs(t, err, core.ErrSourceLost)
	assert.False(t, core.IsValidationError(err))
}

func TestJSONLWriter_RoundTrip(t *testing.T) {
	events := []Event{
		&Record{Time: 5, Type: "begin", Values: core.Fields{"tid": core.Int64Value(1), "name": core.StringValue("x")}},
		&Record{Time: 9, Type: "end", Values: core.Fields{"ret": core.Int64Value(0)}},
	}
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Flush())

	src := NewJSONLSource(&buf)
	for _, want := range events {
		got, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
