package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/INLOpen/nexustrace/checkpoint"
	"github.com/INLOpen/nexustrace/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringCodec struct{}

func (stringCodec) Encode(buf *bytes.Buffer, p string) error {
	core.WriteString(buf, p)
	return nil
}

func (stringCodec) Decode(r *bytes.Reader) (string, error) {
	return core.ReadString(r)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Dir:       t.TempDir(),
		BatchSize: 4,
		CacheSize: 2,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestStore(t *testing.T, opts Options) *Store[string] {
	t.Helper()
	s, err := Create[string](opts, stringCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Dispose() })
	return s
}

func add(t *testing.T, s *Store[string], start, end int64, name string) {
	t.Helper()
	require.NoError(t, s.AddValue(core.Interval[string]{Start: start, End: end, Payload: name}))
}

func collect(t *testing.T, seq func(func(core.Interval[string], error) bool)) []string {
	t.Helper()
	var names []string
	for iv, err := range seq {
		require.NoError(t, err)
		names = append(names, iv.Payload)
	}
	return names
}

func TestStore_AddAndElementAt(t *testing.T) {
	s := newTestStore(t, testOptions(t))
	assert.Equal(t, uint64(0), s.NbElements())

	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		add(t, s, int64(i*10), int64(i*10+5), name)
	}
	require.Equal(t, uint64(6), s.NbElements())

	// Index 0..3 were checkpointed and are now served from disk.
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		iv, err := s.ElementAt(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, name, iv.Payload)
		assert.Equal(t, int64(i*10), iv.Start)
		assert.Equal(t, int64(i*10+5), iv.End)
	}

	_, err := s.ElementAt(6)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	err = s.AddValue(core.Interval[string]{Start: 5, End: 4})
	assert.ErrorIs(t, err, core.ErrInvalidInterval)
	assert.Equal(t, uint64(6), s.NbElements())
}

func TestStore_IntersectingElements(t *testing.T) {
	s := newTestStore(t, testOptions(t))
	add(t, s, 0, 10, "outer")
	add(t, s, 2, 4, "inner")
	add(t, s, 4, 8, "touch")
	add(t, s, 11, 12, "late")
	add(t, s, 4, 4, "point")

	assert.Equal(t, []string{"outer", "inner", "touch", "point"}, collect(t, s.IntersectingElements(4)))
	assert.Equal(t, []string{"outer"}, collect(t, s.IntersectingElements(10)))
	assert.Equal(t, []string{"late"}, collect(t, s.IntersectingElements(12)))
	assert.Empty(t, collect(t, s.IntersectingElements(-1)))
	assert.Empty(t, collect(t, s.IntersectingElements(13)))

	assert.Equal(t, []string{"outer", "touch", "late"}, collect(t, s.Overlapping(5, 11)))
	assert.Empty(t, collect(t, s.Overlapping(5, 4)))
}

func TestStore_IntersectingElements_MatchesBruteForce(t *testing.T) {
	opts := testOptions(t)
	opts.BatchSize = 64
	opts.CacheSize = 4096
	s := newTestStore(t, opts)

	rng := rand.New(rand.NewSource(42))
	intervals := make([]core.Interval[string], 3000)
	for i := range intervals {
		start := rng.Int63n(2000)
		intervals[i] = core.Interval[string]{Start: start, End: start + rng.Int63n(100), Payload: strconv.Itoa(i)}
		require.NoError(t, s.AddValue(intervals[i]))
	}

	boundaries := make(map[int64]struct{})
	for _, iv := range intervals {
		for _, b := range []int64{iv.Start - 1, iv.Start, iv.End, iv.End + 1} {
			boundaries[b] = struct{}{}
		}
	}
	for ts := range boundaries {
		var want []string
		for _, iv := range intervals {
			if iv.Contains(ts) {
				want = append(want, iv.Payload)
			}
		}
		got := collect(t, s.IntersectingElements(ts))
		require.Equal(t, want, got, "t=%d", ts)
	}
}

func TestStore_IntersectingElements_Snapshot(t *testing.T) {
	s := newTestStore(t, testOptions(t))
	add(t, s, 0, 10, "first")

	seq := s.IntersectingElements(5)
	add(t, s, 1, 9, "second")

	assert.Equal(t, []string{"first"}, collect(t, seq))
	assert.Equal(t, []string{"first"}, collect(t, seq), "ranging twice yields the same intervals")
	assert.Equal(t, []string{"first", "second"}, collect(t, s.IntersectingElements(5)))
}

func TestStore_All_EarlyStop(t *testing.T) {
	s := newTestStore(t, testOptions(t))
	for i := range 10 {
		add(t, s, int64(i), int64(i), string(rune('a'+i)))
	}
	var got []string
	for iv, err := range s.All() {
		require.NoError(t, err)
		got = append(got, iv.Payload)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStore_CompleteAndReopen(t *testing.T) {
	opts := testOptions(t)
	opts.Compression = core.CompressionZSTD
	s, err := Create[string](opts, stringCodec{})
	require.NoError(t, err)
	for i := range 9 {
		add(t, s, int64(i), int64(i+2), string(rune('a'+i)))
	}
	require.NoError(t, s.Complete())
	assert.True(t, s.IsComplete())
	assert.ErrorIs(t, s.AddValue(core.Interval[string]{Start: 1, End: 2}), core.ErrStoreComplete)
	require.NoError(t, s.Dispose())

	cp, found, err := checkpoint.Read(opts.Dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cp.Complete)
	assert.Equal(t, uint64(9), cp.Committed)

	reopened, err := Open[string](context.Background(), opts, stringCodec{})
	require.NoError(t, err)
	defer reopened.Dispose()
	assert.True(t, reopened.IsComplete())
	assert.Equal(t, uint64(9), reopened.NbElements())
	assert.Equal(t, []string{"b", "c", "d"}, collect(t, reopened.IntersectingElements(3)))
	assert.ErrorIs(t, reopened.AddValue(core.Interval[string]{Start: 1, End: 2}), core.ErrStoreComplete)
}

func TestStore_ReopenDiscardsUncommittedTail(t *testing.T) {
	opts := testOptions(t)
	opts.Compression = core.CompressionSnappy
	s, err := Create[string](opts, stringCodec{})
	require.NoError(t, err)
	for i := range 6 {
		add(t, s, int64(i), int64(i), string(rune('a'+i)))
	}
	// Simulate a crash: the last two records reach the file but no checkpoint covers them.
	require.NoError(t, s.closeFiles())

	reopened, err := Open[string](context.Background(), opts, stringCodec{})
	require.NoError(t, err)
	assert.False(t, reopened.IsComplete())
	assert.Equal(t, uint64(4), reopened.NbElements())

	add(t, reopened, 100, 200, "z")
	require.NoError(t, reopened.Dispose())

	again, err := Open[string](context.Background(), opts, stringCodec{})
	require.NoError(t, err)
	defer again.Dispose()
	require.Equal(t, uint64(5), again.NbElements())
	iv, err := again.ElementAt(4)
	require.NoError(t, err)
	assert.Equal(t, "z", iv.Payload)
	assert.Equal(t, []string{"z"}, collect(t, again.IntersectingElements(150)))
}

func TestStore_AbandonKeepsLastCheckpoint(t *testing.T) {
	opts := testOptions(t)
	opts.BatchSize = 100
	s, err := Create[string](opts, stringCodec{})
	require.NoError(t, err)
	add(t, s, 0, 1, "a")
	add(t, s, 2, 3, "b")

	require.NoError(t, s.Abandon())
	require.NoError(t, s.Dispose(), "Dispose after Abandon is a no-op")
	assert.ErrorIs(t, s.AddValue(core.Interval[string]{Start: 4, End: 5}), core.ErrStoreDisposed)

	cp, found, err := checkpoint.Read(opts.Dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(0), cp.Committed)

	reopened, err := Open[string](context.Background(), opts, stringCodec{})
	require.NoError(t, err)
	defer reopened.Dispose()
	assert.Equal(t, uint64(0), reopened.NbElements())
	assert.False(t, reopened.IsComplete())
}

func TestStore_LargeBatchSize(t *testing.T) {
	opts := testOptions(t)
	opts.BatchSize = 1 << 30
	s := newTestStore(t, opts)

	for i := range 5000 {
		add(t, s, int64(i), int64(i), "v")
	}
	iv, err := s.ElementAt(4999)
	require.NoError(t, err)
	assert.Equal(t, int64(4999), iv.Start)
	assert.Equal(t, []string{"v"}, collect(t, s.IntersectingElements(4321)))
}

func TestStore_Open_Corrupted(t *testing.T) {
	t.Run("MissingCheckpoint", func(t *testing.T) {
		_, err := Open[string](context.Background(), testOptions(t), stringCodec{})
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})

	t.Run("FlippedRecordByte", func(t *testing.T) {
		opts := testOptions(t)
		s, err := Create[string](opts, stringCodec{})
		require.NoError(t, err)
		for i := range 4 {
			add(t, s, int64(i), int64(i), "payload")
		}
		require.NoError(t, s.Dispose())

		path := filepath.Join(opts.Dir, core.RecordLogFileName)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[len(data)-6] ^= 0xFF
		require.NoError(t, os.WriteFile(path, data, 0644))

		_, err = Open[string](context.Background(), opts, stringCodec{})
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})

	t.Run("CheckpointPastEndOfLog", func(t *testing.T) {
		opts := testOptions(t)
		s, err := Create[string](opts, stringCodec{})
		require.NoError(t, err)
		require.NoError(t, s.Dispose())
		require.NoError(t, checkpoint.Write(opts.Dir, core.Checkpoint{Committed: 3, DataOffset: 4096}))

		_, err = Open[string](context.Background(), opts, stringCodec{})
		assert.ErrorIs(t, err, core.ErrCorrupted)
	})
}

func TestStore_Dispose(t *testing.T) {
	s := newTestStore(t, testOptions(t))
	add(t, s, 1, 2, "a")

	require.NoError(t, s.Dispose())
	require.NoError(t, s.Dispose(), "second Dispose is a no-op")

	_, err := s.ElementAt(0)
	assert.ErrorIs(t, err, core.ErrStoreDisposed)
	assert.ErrorIs(t, s.AddValue(core.Interval[string]{Start: 1, End: 2}), core.ErrStoreDisposed)
	assert.ErrorIs(t, s.Flush(), core.ErrStoreDisposed)
	for _, err := range s.IntersectingElements(1) {
		assert.ErrorIs(t, err, core.ErrStoreDisposed)
	}
}

func TestStore_OnFlush(t *testing.T) {
	opts := testOptions(t)
	var flushed []core.Checkpoint
	opts.OnFlush = func(cp core.Checkpoint) { flushed = append(flushed, cp) }
	s := newTestStore(t, opts)

	for i := range 9 {
		add(t, s, int64(i), int64(i), "x")
	}
	require.Len(t, flushed, 2)
	assert.Equal(t, uint64(4), flushed[0].Committed)
	assert.Equal(t, uint64(8), flushed[1].Committed)

	require.NoError(t, s.Flush())
	require.Len(t, flushed, 3)
	assert.Equal(t, uint64(9), flushed[2].Committed)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	opts := testOptions(t)
	opts.BatchSize = 16
	opts.CacheSize = 8
	s := newTestStore(t, opts)

	const total = 500
	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n := s.NbElements()
				for i := uint64(0); i < n; i += 7 {
					iv, err := s.ElementAt(i)
					if err != nil {
						errs <- err
						return
					}
					if iv.Start != int64(i) {
						errs <- errors.New("interval out of place")
						return
					}
				}
				for _, err := range s.IntersectingElements(int64(n / 2)) {
					if err != nil {
						errs <- err
						return
					}
				}
			}
		}()
	}

	for i := range total {
		add(t, s, int64(i), int64(i+3), "v")
	}
	close(done)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(total), s.NbElements())
}

func TestStore_AppendsProceedUnderQueryLoad(t *testing.T) {
	opts := testOptions(t)
	opts.BatchSize = 1000
	opts.CacheSize = 64
	s := newTestStore(t, opts)

	// Interval i is [i, i+3]; only the first two contain t=1.
	const total = 20000
	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n := s.NbElements()
				var got []int64
				for iv, err := range s.IntersectingElements(1) {
					if err != nil {
						errs <- err
						return
					}
					got = append(got, iv.Start)
				}
				if len(got) > 2 || (n >= 2 && len(got) != 2) {
					errs <- errors.New("wrong number of intervals containing t=1")
					return
				}
			}
		}()
	}

	for i := range total {
		add(t, s, int64(i), int64(i+3), "v")
	}
	close(done)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(total), s.NbElements())
}

func TestFieldsCodec(t *testing.T) {
	opts := testOptions(t)
	s, err := Create[core.Fields](opts, FieldsCodec{})
	require.NoError(t, err)
	defer s.Dispose()

	payload := core.Fields{"tid": core.Int64Value(42), "name": core.StringValue("read")}
	for i := range 5 {
		require.NoError(t, s.AddValue(core.Interval[core.Fields]{Start: int64(i), End: int64(i + 1), Payload: payload}))
	}
	iv, err := s.ElementAt(0)
	require.NoError(t, err)
	assert.Equal(t, payload, iv.Payload)
}
