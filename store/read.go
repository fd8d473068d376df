package store

import (
	"fmt"
	"iter"

	"github.com/INLOpen/nexustrace/core"
)

// ElementAt returns the interval at insertion index i.
func (s *Store[P]) ElementAt(i uint64) (core.Interval[P], error) {
	if s.disposed.Load() {
		return core.Interval[P]{}, core.ErrStoreDisposed
	}
	if n := s.committed.Load(); i >= n {
		return core.Interval[P]{}, fmt.Errorf("%w: index %d, size %d", core.ErrIndexOutOfRange, i, n)
	}
	if hb := s.hot.Load(); i >= hb.base {
		return hb.items.get(i - hb.base), nil
	}
	if iv, ok := s.decoded.Get(i); ok {
		return iv, nil
	}

	iv, err := s.readDisk(i)
	if err != nil {
		return core.Interval[P]{}, err
	}
	s.decoded.Put(i, iv)
	return iv, nil
}

func (s *Store[P]) readDisk(i uint64) (core.Interval[P], error) {
	s.readMu.RLock()
	defer s.readMu.RUnlock()
	if s.reader == nil {
		return core.Interval[P]{}, core.ErrStoreDisposed
	}

	data, _, err := s.reader.ReadAt(s.offsets.get(i))
	if err != nil {
		return core.Interval[P]{}, fmt.Errorf("failed to read interval %d: %w", i, err)
	}
	diskReadsTotal.Inc()
	raw, err := s.compressor.Decompress(data)
	if err != nil {
		return core.Interval[P]{}, fmt.Errorf("%w: interval %d: %v", core.ErrCorrupted, i, err)
	}
	return decodeRecord(raw, s.codec)
}

// IntersectingElements returns every interval with Start <= t <= End,
// in insertion order. The set is fixed to the intervals committed when
// IntersectingElements is called, so ranging over the result again yields
// the same intervals. Iteration stops at the first read error.
func (s *Store[P]) IntersectingElements(t int64) iter.Seq2[core.Interval[P], error] {
	return s.merge(t, t, s.committed.Load())
}

// Overlapping returns every interval with Start <= t1 and End >= t0, in
// insertion order, with the same snapshot semantics as IntersectingElements.
func (s *Store[P]) Overlapping(t0, t1 int64) iter.Seq2[core.Interval[P], error] {
	return s.merge(t0, t1, s.committed.Load())
}

// merge collects the indexes below limit with start <= t1 and end >= t0
// from the orderings, then reads them in insertion order.
func (s *Store[P]) merge(t0, t1 int64, limit uint64) iter.Seq2[core.Interval[P], error] {
	return func(yield func(core.Interval[P], error) bool) {
		if s.disposed.Load() {
			yield(core.Interval[P]{}, core.ErrStoreDisposed)
			return
		}
		matches := s.index.Overlapping(t0, t1, limit)

		it := matches.Iterator()
		for it.HasNext() {
			iv, err := s.ElementAt(it.Next())
			if err != nil {
				yield(core.Interval[P]{}, err)
				return
			}
			if !yield(iv, nil) {
				return
			}
		}
	}
}

// All iterates over the intervals committed at call time, in insertion order.
func (s *Store[P]) All() iter.Seq2[core.Interval[P], error] {
	limit := s.committed.Load()
	return func(yield func(core.Interval[P], error) bool) {
		for i := uint64(0); i < limit; i++ {
			iv, err := s.ElementAt(i)
			if err != nil {
				yield(core.Interval[P]{}, err)
				return
			}
			if !yield(iv, nil) {
				return
			}
		}
	}
}
