// Package timeindex keeps the secondary orderings of an interval store: the
// insertion indexes of every interval sorted by start time and by end time.
//
// New entries collect in a small active chunk. Once the chunk is full it is
// sealed into an immutable run holding both orderings. Readers work on an
// atomically published snapshot of the runs and the active chunk and never
// take a lock, so a lookup cannot delay Insert.
package timeindex

import (
	"slices"
	"sort"
	"sync/atomic"

	"github.com/INLOpen/skiplist"
	"github.com/RoaringBitmap/roaring/roaring64"
)

const (
	// DefaultChunkSize is the number of entries collected before they are
	// sealed into a sorted run.
	DefaultChunkSize = 1024

	// blockSize is the pruning granularity inside a run.
	blockSize = 64

	// maxRunSize caps the size of a run produced by merging, which bounds
	// the work a single Insert can trigger.
	maxRunSize = 1 << 18
)

// Entry is one interval's bounds and insertion index.
type Entry struct {
	Start int64
	End   int64
	Index uint64
}

// Key orders entries by one time bound, then by insertion index, so equal
// times keep insertion order.
type Key struct {
	Time  int64
	Index uint64
}

func comparator(a, b Key) int {
	if a.Time < b.Time {
		return -1
	}
	if a.Time > b.Time {
		return 1
	}
	if a.Index < b.Index {
		return -1
	}
	if a.Index > b.Index {
		return 1
	}
	return 0
}

// run is an immutable set of entries in both orderings.
type run struct {
	byStart []Entry // sorted by (Start, Index)
	byEnd   []Entry // sorted by (End, Index)

	// maxEnd[b] is the greatest End in byStart block b; minStart[b] is the
	// smallest Start in byEnd block b.
	maxEnd   []int64
	minStart []int64
}

// chunk is the append-only tail. Slots below n are never written again.
type chunk struct {
	entries []Entry
	n       atomic.Int64
}

type snapshot struct {
	runs   []*run
	active *chunk
}

// Index holds both orderings. Insert must only be called from one
// goroutine at a time; every other method is safe for concurrent use.
type Index struct {
	chunkSize int
	snap      atomic.Pointer[snapshot]
	size      atomic.Int64

	// Writer-only: the active chunk in sorted order.
	starts *skiplist.SkipList[Key, Entry]
	ends   *skiplist.SkipList[Key, Entry]
}

// New returns an empty index that seals runs every DefaultChunkSize entries.
func New() *Index {
	return NewWithChunkSize(DefaultChunkSize)
}

// NewWithChunkSize returns an empty index that seals runs every chunkSize
// entries.
func NewWithChunkSize(chunkSize int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	x := &Index{
		chunkSize: chunkSize,
		starts:    skiplist.NewWithComparator[Key, Entry](comparator),
		ends:      skiplist.NewWithComparator[Key, Entry](comparator),
	}
	x.snap.Store(&snapshot{active: x.newChunk()})
	return x
}

func (x *Index) newChunk() *chunk {
	return &chunk{entries: make([]Entry, x.chunkSize)}
}

// Insert records the bounds of the interval at e.Index.
func (x *Index) Insert(e Entry) {
	s := x.snap.Load()
	c := s.active
	n := c.n.Load()
	c.entries[n] = e
	c.n.Store(n + 1)
	x.size.Add(1)

	x.starts.Insert(Key{Time: e.Start, Index: e.Index}, e)
	x.ends.Insert(Key{Time: e.End, Index: e.Index}, e)
	if int(n+1) == x.chunkSize {
		x.seal(s)
	}
}

// seal turns the full active chunk into a run and publishes a snapshot
// with a fresh chunk. The previous snapshot stays valid for its readers.
func (x *Index) seal(s *snapshot) {
	r := newRun(drain(x.starts), drain(x.ends))
	runs := append(slices.Clip(s.runs), r)
	x.snap.Store(&snapshot{runs: compact(runs), active: x.newChunk()})
}

func drain(sl *skiplist.SkipList[Key, Entry]) []Entry {
	out := make([]Entry, 0, sl.Len())
	sl.Range(func(_ Key, e Entry) bool {
		out = append(out, e)
		return true
	})
	sl.Clear()
	return out
}

// compact merges trailing runs while the newest is at least as large as the
// one before it, keeping the number of runs logarithmic below maxRunSize.
// runs must not share its backing array with a published snapshot.
func compact(runs []*run) []*run {
	for len(runs) >= 2 {
		prev, last := runs[len(runs)-2], runs[len(runs)-1]
		if len(last.byStart) < len(prev.byStart) || len(prev.byStart)+len(last.byStart) > maxRunSize {
			break
		}
		merged := newRun(
			mergeSorted(prev.byStart, last.byStart, byStartKey),
			mergeSorted(prev.byEnd, last.byEnd, byEndKey),
		)
		runs = append(runs[:len(runs)-2], merged)
	}
	return runs
}

func byStartKey(e Entry) Key { return Key{Time: e.Start, Index: e.Index} }
func byEndKey(e Entry) Key   { return Key{Time: e.End, Index: e.Index} }

func mergeSorted(a, b []Entry, key func(Entry) Key) []Entry {
	out := make([]Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if comparator(key(a[i]), key(b[j])) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func newRun(byStart, byEnd []Entry) *run {
	r := &run{byStart: byStart, byEnd: byEnd}
	blocks := (len(byStart) + blockSize - 1) / blockSize
	r.maxEnd = make([]int64, blocks)
	r.minStart = make([]int64, blocks)
	for b := range blocks {
		lo, hi := b*blockSize, min((b+1)*blockSize, len(byStart))
		r.maxEnd[b] = byStart[lo].End
		r.minStart[b] = byEnd[lo].Start
		for i := lo + 1; i < hi; i++ {
			r.maxEnd[b] = max(r.maxEnd[b], byStart[i].End)
			r.minStart[b] = min(r.minStart[b], byEnd[i].Start)
		}
	}
	return r
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return int(x.size.Load())
}

// Overlapping returns the indexes below limit of every entry with
// Start <= t1 and End >= t0.
func (x *Index) Overlapping(t0, t1 int64, limit uint64) *roaring64.Bitmap {
	bm := roaring64.New()
	if t0 > t1 || limit == 0 {
		return bm
	}
	s := x.snap.Load()
	for _, r := range s.runs {
		r.overlapping(t0, t1, limit, bm)
	}
	c := s.active
	for _, e := range c.entries[:c.n.Load()] {
		if e.Start <= t1 && e.End >= t0 && e.Index < limit {
			bm.Add(e.Index)
		}
	}
	return bm
}

// overlapping walks whichever ordering has fewer candidates: the start
// prefix (Start <= t1) or the end suffix (End >= t0), skipping blocks whose
// bounds rule out every entry.
func (r *run) overlapping(t0, t1 int64, limit uint64, bm *roaring64.Bitmap) {
	n := len(r.byStart)
	p := sort.Search(n, func(i int) bool { return r.byStart[i].Start > t1 })
	q := sort.Search(n, func(i int) bool { return r.byEnd[i].End >= t0 })

	if p <= n-q {
		for b := 0; b*blockSize < p; b++ {
			if r.maxEnd[b] < t0 {
				continue
			}
			for _, e := range r.byStart[b*blockSize : min((b+1)*blockSize, p)] {
				if e.End >= t0 && e.Index < limit {
					bm.Add(e.Index)
				}
			}
		}
		return
	}
	for b := q / blockSize; b*blockSize < n; b++ {
		if r.minStart[b] > t1 {
			continue
		}
		for _, e := range r.byEnd[max(b*blockSize, q):min((b+1)*blockSize, n)] {
			if e.Start <= t1 && e.Index < limit {
				bm.Add(e.Index)
			}
		}
	}
}
