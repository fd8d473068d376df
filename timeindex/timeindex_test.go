package timeindex

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(chunkSize int, entries ...Entry) *Index {
	x := NewWithChunkSize(chunkSize)
	for i, e := range entries {
		e.Index = uint64(i)
		x.Insert(e)
	}
	return x
}

func bruteForce(entries []Entry, t0, t1 int64, limit uint64) []uint64 {
	var out []uint64
	for i, e := range entries {
		if uint64(i) < limit && e.Start <= t1 && e.End >= t0 {
			out = append(out, uint64(i))
		}
	}
	return out
}

func TestIndex_Overlapping(t *testing.T) {
	entries := []Entry{{Start: 10, End: 20}, {Start: 5, End: 5}, {Start: 20, End: 30}, {Start: 10, End: 10}, {Start: 0, End: 100}}

	for _, chunkSize := range []int{1, 2, 3, DefaultChunkSize} {
		x := buildIndex(chunkSize, entries...)
		require.Equal(t, 5, x.Len())

		assert.Equal(t, []uint64{0, 3, 4}, x.Overlapping(10, 10, 5).ToArray(), "chunk size %d", chunkSize)
		assert.Equal(t, []uint64{0, 2, 4}, x.Overlapping(20, 20, 5).ToArray(), "touching bounds are inclusive")
		assert.Equal(t, []uint64{1, 4}, x.Overlapping(5, 5, 5).ToArray())
		assert.Equal(t, []uint64{0, 1, 3}, x.Overlapping(5, 15, 4).ToArray(), "limit restricts to the snapshot")
		assert.True(t, x.Overlapping(101, 200, 5).IsEmpty())
		assert.True(t, x.Overlapping(10, 9, 5).IsEmpty(), "inverted window")
		assert.True(t, x.Overlapping(10, 10, 0).IsEmpty())
	}
}

func TestIndex_Overlapping_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := make([]Entry, 5000)
	for i := range entries {
		start := rng.Int63n(10000)
		entries[i] = Entry{Start: start, End: start + rng.Int63n(300)}
	}
	x := buildIndex(100, entries...)

	for range 500 {
		t0 := rng.Int63n(10500) - 200
		t1 := t0 + rng.Int63n(50)
		limit := uint64(rng.Intn(len(entries) + 1))
		want := bruteForce(entries, t0, t1, limit)
		got := x.Overlapping(t0, t1, limit).ToArray()
		if len(want) == 0 {
			assert.Empty(t, got, "window [%d,%d] limit %d", t0, t1, limit)
			continue
		}
		assert.Equal(t, want, got, "window [%d,%d] limit %d", t0, t1, limit)
	}
}

func TestIndex_CompactKeepsRunsBounded(t *testing.T) {
	x := NewWithChunkSize(4)
	for i := range 4 * 64 {
		x.Insert(Entry{Start: int64(i), End: int64(i), Index: uint64(i)})
	}
	s := x.snap.Load()
	assert.LessOrEqual(t, len(s.runs), 7)
	assert.Equal(t, []uint64{100}, x.Overlapping(100, 100, 1<<20).ToArray())
}

func TestIndex_ConcurrentReadersSeePublishedPrefix(t *testing.T) {
	const n = 20000
	x := NewWithChunkSize(64)
	var published atomic.Uint64

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 4)
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
				limit := published.Load()
				got := x.Overlapping(1000, 1000, limit)
				// Interval i is [i, i+10], so exactly 990..1000 cover 1000.
				for i := uint64(990); i <= 1000 && i < limit; i++ {
					if !got.Contains(i) {
						select {
						case errs <- "missing published index":
						default:
						}
						return
					}
				}
				if got.GetCardinality() > 11 {
					select {
					case errs <- "unexpected match":
					default:
					}
					return
				}
			}
		}()
	}

	for i := range uint64(n) {
		x.Insert(Entry{Start: int64(i), End: int64(i) + 10, Index: i})
		published.Store(i + 1)
	}
	close(done)
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
	assert.Equal(t, n, x.Len())
	assert.Equal(t, uint64(11), x.Overlapping(1000, 1000, n).GetCardinality())
}
