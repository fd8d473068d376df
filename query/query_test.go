package query

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// state is a test payload: a thread and what it was doing.
type state struct {
	Tid  int64
	Name string
}

type stateCodec struct{}

func (stateCodec) Encode(buf *bytes.Buffer, p state) error {
	core.WriteVarint(buf, p.Tid)
	core.WriteString(buf, p.Name)
	return nil
}

func (stateCodec) Decode(r *bytes.Reader) (state, error) {
	tid, err := readVarint(r)
	if err != nil {
		return state{}, err
	}
	name, err := core.ReadString(r)
	return state{Tid: tid, Name: name}, err
}

func newFacade(t *testing.T, ivs ...core.Interval[state]) *Facade[int64, state] {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Create[state](store.Options{Dir: t.TempDir(), BatchSize: 2, Logger: logger}, stateCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Dispose() })
	for _, iv := range ivs {
		require.NoError(t, st.AddValue(iv))
	}
	return New(st, func(p state) int64 { return p.Tid }, WithLogger(logger), WithParallelism(2))
}

func iv(start, end, tid int64, name string) core.Interval[state] {
	return core.Interval[state]{Start: start, End: end, Payload: state{Tid: tid, Name: name}}
}

func TestFacade_StateAt(t *testing.T) {
	f := newFacade(t,
		iv(0, 100, 1, "running"),
		iv(10, 20, 1, "syscall"), // nested inside "running"
		iv(20, 30, 1, "blocked"), // touches "syscall" at 20
		iv(5, 50, 2, "running"),
		iv(20, 25, 2, "first"),
		iv(20, 25, 2, "second"), // same start as "first", inserted later
	)

	at15, err := f.StateAt(15)
	require.NoError(t, err)
	assert.Equal(t, "syscall", at15[1].Payload.Name)
	assert.Equal(t, "running", at15[2].Payload.Name)

	at20, err := f.StateAt(20)
	require.NoError(t, err)
	assert.Equal(t, "blocked", at20[1].Payload.Name, "greatest start wins at a shared boundary")
	assert.Equal(t, "second", at20[2].Payload.Name, "ties on start go to the latest insertion")

	at200, err := f.StateAt(200)
	require.NoError(t, err)
	assert.Empty(t, at200)

	v, ok, err := f.ValueAt(2, 22)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", v.Payload.Name)

	_, ok, err = f.ValueAt(3, 22)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_RangeQuery(t *testing.T) {
	f := newFacade(t,
		iv(30, 40, 1, "c"),
		iv(0, 5, 1, "a"),
		iv(10, 20, 1, "b"),
		iv(10, 12, 1, "b2"),
		iv(12, 18, 2, "other"),
		iv(50, 60, 1, "late"),
	)

	got, err := f.RangeQuery(1, 5, 30)
	require.NoError(t, err)
	var names []string
	for _, g := range got {
		names = append(names, g.Payload.Name)
	}
	assert.Equal(t, []string{"a", "b", "b2", "c"}, names)

	_, err = f.RangeQuery(1, 30, 5)
	assert.True(t, core.IsValidationError(err))

	assert.Equal(t, uint64(6), f.NbElements())
	first, err := f.ElementAt(0)
	require.NoError(t, err)
	assert.Equal(t, "c", first.Payload.Name)

	var count int
	for _, err := range f.Intersecting(11) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestFacade_StatesAt(t *testing.T) {
	f := newFacade(t,
		iv(0, 10, 1, "a"),
		iv(10, 20, 1, "b"),
		iv(20, 30, 1, "c"),
	)
	states, err := f.StatesAt(context.Background(), []int64{25, 5, 15, 99})
	require.NoError(t, err)
	require.Len(t, states, 4)
	assert.Equal(t, "c", states[0][1].Payload.Name)
	assert.Equal(t, "a", states[1][1].Payload.Name)
	assert.Equal(t, "b", states[2][1].Payload.Name)
	assert.Empty(t, states[3])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.StatesAt(ctx, []int64{1, 2, 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func readVarint(r *bytes.Reader) (int64, error) {
	return binary.ReadVarint(r)
}
