package store

import (
	"fmt"

	"github.com/INLOpen/nexustrace/checkpoint"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/timeindex"
)

// AddValue appends iv at the next insertion index. The interval becomes
// visible to readers only once its record, offset and both orderings are
// in place. Every BatchSize appends a durability checkpoint is written.
func (s *Store[P]) AddValue(iv core.Interval[P]) error {
	if iv.Start > iv.End {
		return fmt.Errorf("%w: [%d, %d]", core.ErrInvalidInterval, iv.Start, iv.End)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}

	raw := core.GetBuffer()
	defer core.PutBuffer(raw)
	if err := encodeRecord(raw, s.codec, iv); err != nil {
		return fmt.Errorf("failed to encode interval: %w", err)
	}
	compressed := core.GetBuffer()
	defer core.PutBuffer(compressed)
	if err := s.compressor.CompressTo(compressed, raw.Bytes()); err != nil {
		return fmt.Errorf("failed to compress interval: %w", err)
	}

	off, err := s.writer.WriteRecord(compressed.Bytes())
	if err != nil {
		// The log may now hold a torn record; refuse further appends.
		s.writeErr = err
		return fmt.Errorf("failed to append interval: %w", err)
	}

	i := s.committed.Load()
	s.offsets.set(i, off)
	hb := s.hot.Load()
	hb.items.set(i-hb.base, iv)
	s.index.Insert(timeindex.Entry{Start: iv.Start, End: iv.End, Index: i})
	s.committed.Store(i + 1)
	appendsTotal.Inc()

	s.sinceFlush++
	if s.sinceFlush >= s.opts.BatchSize {
		return s.checkpointLocked(false)
	}
	return nil
}

// SetOnFlush replaces the callback invoked after each durability checkpoint.
func (s *Store[P]) SetOnFlush(fn func(cp core.Checkpoint)) {
	s.writeMu.Lock()
	s.opts.OnFlush = fn
	s.writeMu.Unlock()
}

// Flush forces a durability checkpoint without completing the store.
func (s *Store[P]) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	return s.checkpointLocked(false)
}

// Complete checkpoints the store and marks construction as finished. Further
// appends fail with core.ErrStoreComplete.
func (s *Store[P]) Complete() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	if err := s.checkpointLocked(true); err != nil {
		return err
	}
	s.complete.Store(true)
	s.logger.Info("Interval store complete", "committed", s.committed.Load())
	return nil
}

func (s *Store[P]) writableLocked() error {
	switch {
	case s.disposed.Load():
		return core.ErrStoreDisposed
	case s.complete.Load():
		return core.ErrStoreComplete
	case s.writeErr != nil:
		return fmt.Errorf("store is unusable after a failed write: %w", s.writeErr)
	case s.writer == nil:
		return core.ErrStoreDisposed
	}
	return nil
}

// checkpointLocked makes every committed interval durable and records the
// commit point. Must be called with writeMu held.
func (s *Store[P]) checkpointLocked(complete bool) error {
	if err := s.writer.Sync(); err != nil {
		s.writeErr = err
		return fmt.Errorf("failed to sync record log: %w", err)
	}
	cp := core.Checkpoint{
		Committed:  s.committed.Load(),
		DataOffset: s.writer.Offset(),
		Complete:   complete,
	}
	if err := checkpoint.Write(s.opts.Dir, cp); err != nil {
		s.writeErr = err
		return err
	}
	// Records are now readable from the file; start a fresh hot batch.
	s.resetHot()
	s.sinceFlush = 0
	checkpointsTotal.Inc()
	s.logger.Debug("Checkpoint written", "committed", cp.Committed, "offset", cp.DataOffset, "complete", complete)
	if s.opts.OnFlush != nil {
		s.opts.OnFlush(cp)
	}
	return nil
}
