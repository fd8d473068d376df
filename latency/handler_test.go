package latency

import (
	"testing"

	"github.com/INLOpen/nexustrace/builder"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(ts, tid int64, name string, args core.Fields) trace.Event {
	values := core.Fields{"tid": core.Int64Value(tid)}
	for k, v := range args {
		values[k] = v
	}
	return &trace.Record{Time: ts, Type: "syscall_entry_" + name, Values: values}
}

func exit(ts, tid int64, name string, ret int64) trace.Event {
	return &trace.Record{Time: ts, Type: "syscall_exit_" + name, Values: core.Fields{
		"tid": core.Int64Value(tid),
		"ret": core.Int64Value(ret),
	}}
}

func TestLayout_Validate(t *testing.T) {
	require.NoError(t, DefaultLayout().Validate())

	l := DefaultLayout()
	l.RetField = " "
	err := l.Validate()
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}

func TestLayout_EntryName(t *testing.T) {
	l := DefaultLayout()
	testCases := []struct {
		event string
		want  string
		ok    bool
	}{
		{event: "syscall_entry_read", want: "read", ok: true},
		{event: "compat_syscall_entry_socketcall", want: "socketcall", ok: true},
		{event: "syscall_exit_read", ok: false},
		{event: "sched_switch", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.event, func(t *testing.T) {
			name, ok := l.entryName(tc.event)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, name)
		})
	}
}

func TestHandler_Classify(t *testing.T) {
	h, err := newHandler(DefaultLayout())
	require.NoError(t, err)

	t.Run("Entry", func(t *testing.T) {
		a, err := h.Classify(entry(10, 7, "read", core.Fields{"fd": core.Int64Value(3), "buf": core.StringValue("0x7ff")}))
		require.NoError(t, err)
		assert.Equal(t, builder.Begin, a.Kind)
		assert.Equal(t, int64(7), a.Key)
		assert.Equal(t, "read", a.Partial.Name)
		assert.Equal(t, map[string]string{"fd": "3", "buf": "0x7ff"}, a.Partial.Args)
	})

	t.Run("Exit", func(t *testing.T) {
		a, err := h.Classify(exit(20, 7, "read", 5))
		require.NoError(t, err)
		assert.Equal(t, builder.End, a.Kind)
		assert.Equal(t, int64(7), a.Key)
	})

	t.Run("Unrelated", func(t *testing.T) {
		a, err := h.Classify(&trace.Record{Time: 1, Type: "sched_switch", Values: core.Fields{}})
		require.NoError(t, err)
		assert.Equal(t, builder.Ignore, a.Kind)
	})

	t.Run("EntryWithoutTid", func(t *testing.T) {
		_, err := h.Classify(&trace.Record{Time: 1, Type: "syscall_entry_read", Values: core.Fields{}})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("ExitWithoutRet", func(t *testing.T) {
		_, err := h.Classify(&trace.Record{Time: 1, Type: "syscall_exit_read", Values: core.Fields{"tid": core.Int64Value(1)}})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})
}

func TestHandler_Merge(t *testing.T) {
	h, err := newHandler(DefaultLayout())
	require.NoError(t, err)

	e := tracker.Entry[int64, pending]{Key: 7, Start: 10, Partial: pending{Name: "read", Args: map[string]string{"fd": "3"}}}
	sc, err := h.Merge(e, exit(20, 7, "read", 128))
	require.NoError(t, err)
	assert.Equal(t, SystemCall{Name: "read", Args: map[string]string{"fd": "3"}, Ret: 128}, sc)
	assert.Equal(t, "read", KeyOf(sc))
}
