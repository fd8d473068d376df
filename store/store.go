// Package store implements a disk-backed, append-only interval store with
// two secondary orderings (by start time and by end time) that answer
// "which intervals contain t" as an index merge.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/nexustrace/cache"
	"github.com/INLOpen/nexustrace/checkpoint"
	"github.com/INLOpen/nexustrace/compressors"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/recordlog"
	"github.com/INLOpen/nexustrace/sys"
	"github.com/INLOpen/nexustrace/timeindex"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// hotBatch holds the intervals appended since the last checkpoint. They
// may still sit in the writer's buffer, so reads are served from here.
type hotBatch[P any] struct {
	base  uint64
	items table[core.Interval[P]]
}

// Store is an append-only collection of intervals. One goroutine appends;
// any number of goroutines may read concurrently.
type Store[P any] struct {
	opts       Options
	logger     *slog.Logger
	tracer     trace.Tracer
	codec      Codec[P]
	compressor core.Compressor
	logPath    string

	// writeMu serializes appends, checkpoints and disposal of the writer.
	writeMu    sync.Mutex
	writer     *recordlog.Writer
	sinceFlush int
	writeErr   error

	// readMu guards the reader handle against a concurrent Dispose.
	readMu sync.RWMutex
	reader *recordlog.Reader

	committed atomic.Uint64
	complete  atomic.Bool
	disposed  atomic.Bool

	// offsets maps insertion indexes to record log offsets.
	offsets table[int64]
	hot     atomic.Pointer[hotBatch[P]]
	index   *timeindex.Index
	decoded *cache.LRUCache[uint64, core.Interval[P]]
}

func newStore[P any](opts Options, codec Codec[P]) *Store[P] {
	opts = opts.withDefaults()
	s := &Store[P]{
		opts:    opts,
		logger:  opts.Logger.With("component", "IntervalStore", "dir", opts.Dir),
		tracer:  opts.Tracer,
		codec:   codec,
		logPath: filepath.Join(opts.Dir, core.RecordLogFileName),
		index:   timeindex.New(),
		decoded: cache.NewLRUCache[uint64, core.Interval[P]](opts.CacheSize, nil),
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("nexustrace/store")
	}
	s.decoded.SetMetrics(cacheHitsTotal, cacheMissesTotal)
	return s
}

// Create makes a new empty store in opts.Dir, replacing any store files
// already there.
func Create[P any](opts Options, codec Codec[P]) (*Store[P], error) {
	if opts.Dir == "" {
		return nil, &core.ValidationError{Message: "store directory must be set", Field: "Dir"}
	}
	if codec == nil {
		return nil, &core.ValidationError{Message: "store codec must be set", Field: "Codec"}
	}
	s := newStore(opts, codec)

	if err := os.MkdirAll(s.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", s.opts.Dir, err)
	}
	if err := Remove(s.opts.Dir); err != nil {
		return nil, err
	}

	compressor, err := compressors.ForType(s.opts.Compression)
	if err != nil {
		return nil, err
	}
	s.compressor = compressor

	writer, err := recordlog.Create(s.logPath, s.opts.Compression)
	if err != nil {
		return nil, err
	}
	reader, err := recordlog.OpenReader(s.logPath)
	if err != nil {
		writer.Close()
		return nil, err
	}
	s.writer = writer
	s.reader = reader
	s.resetHot()

	if err := checkpoint.Write(s.opts.Dir, core.Checkpoint{DataOffset: writer.Offset()}); err != nil {
		s.closeFiles()
		return nil, fmt.Errorf("failed to write initial checkpoint: %w", err)
	}
	s.logger.Info("Interval store created", "compression", s.opts.Compression.String(), "batch_size", s.opts.BatchSize)
	return s, nil
}

// Open reopens a persisted store. The committed prefix recorded by the
// checkpoint is validated and the secondary orderings are rebuilt from it;
// anything written after the checkpoint is discarded. Validation failures
// match core.ErrCorrupted. A complete store is opened read-only.
func Open[P any](ctx context.Context, opts Options, codec Codec[P]) (*Store[P], error) {
	if opts.Dir == "" {
		return nil, &core.ValidationError{Message: "store directory must be set", Field: "Dir"}
	}
	if codec == nil {
		return nil, &core.ValidationError{Message: "store codec must be set", Field: "Codec"}
	}
	s := newStore(opts, codec)

	_, span := s.tracer.Start(ctx, "store.Open", trace.WithAttributes(attribute.String("store.dir", s.opts.Dir)))
	defer span.End()

	cp, found, err := checkpoint.Read(s.opts.Dir)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !found {
		err := fmt.Errorf("%w: no checkpoint in %s", core.ErrCorrupted, s.opts.Dir)
		span.RecordError(err)
		return nil, err
	}

	reader, err := recordlog.OpenReader(s.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %v", core.ErrCorrupted, err)
		}
		span.RecordError(err)
		return nil, err
	}
	s.reader = reader

	compressor, err := compressors.ForType(reader.Header().Compression)
	if err != nil {
		reader.Close()
		span.RecordError(err)
		return nil, err
	}
	s.compressor = compressor

	if err := s.rebuild(cp); err != nil {
		reader.Close()
		span.RecordError(err)
		return nil, err
	}

	if cp.Complete {
		s.complete.Store(true)
	} else {
		writer, err := recordlog.OpenForAppend(s.logPath, cp.DataOffset)
		if err != nil {
			reader.Close()
			span.RecordError(err)
			return nil, err
		}
		s.writer = writer
	}
	s.resetHot()

	span.SetAttributes(attribute.Int64("store.committed", int64(cp.Committed)), attribute.Bool("store.complete", cp.Complete))
	s.logger.Info("Interval store opened", "committed", cp.Committed, "complete", cp.Complete)
	return s, nil
}

// rebuild scans the committed prefix and restores offsets and orderings.
func (s *Store[P]) rebuild(cp core.Checkpoint) error {
	var n uint64
	err := s.reader.Scan(cp.DataOffset, func(off int64, data []byte) error {
		if n >= cp.Committed {
			return fmt.Errorf("%w: more records than the %d committed", core.ErrCorrupted, cp.Committed)
		}
		raw, err := s.compressor.Decompress(data)
		if err != nil {
			return fmt.Errorf("%w: record %d: %v", core.ErrCorrupted, n, err)
		}
		start, end, err := decodeBounds(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		s.offsets.set(n, off)
		s.index.Insert(timeindex.Entry{Start: start, End: end, Index: n})
		n++
		return nil
	})
	if err != nil {
		return err
	}
	if n != cp.Committed {
		return fmt.Errorf("%w: checkpoint claims %d records, log holds %d", core.ErrCorrupted, cp.Committed, n)
	}
	s.committed.Store(n)
	rebuildsTotal.Inc()
	return nil
}

func (s *Store[P]) resetHot() {
	s.hot.Store(&hotBatch[P]{base: s.committed.Load()})
}

// NbElements returns the number of committed intervals. It never decreases.
func (s *Store[P]) NbElements() uint64 {
	return s.committed.Load()
}

// IsComplete reports whether construction of the store has finished.
func (s *Store[P]) IsComplete() bool {
	return s.complete.Load()
}

// Dir returns the directory the store lives in.
func (s *Store[P]) Dir() string {
	return s.opts.Dir
}

// Dispose releases the store's files. A writable store is checkpointed
// first. Calling Dispose more than once is a no-op.
func (s *Store[P]) Dispose() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	s.writeMu.Lock()
	if s.writer != nil && s.writeErr == nil && s.sinceFlush > 0 {
		err = s.checkpointLocked(false)
	}
	s.writeMu.Unlock()

	if closeErr := s.closeFiles(); err == nil {
		err = closeErr
	}
	s.decoded.Clear()
	s.logger.Debug("Interval store disposed", "committed", s.committed.Load())
	return err
}

// Abandon releases the store's files without writing a checkpoint, so the
// files keep the last durable state. Intervals appended since the last
// checkpoint are dropped when the store is next opened. Calling Abandon or
// Dispose afterwards is a no-op.
func (s *Store[P]) Abandon() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.closeFiles()
	s.decoded.Clear()
	abandonsTotal.Inc()
	s.logger.Info("Interval store abandoned", "committed", s.committed.Load())
	return err
}

func (s *Store[P]) closeFiles() error {
	var errs []error
	s.writeMu.Lock()
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
		s.writer = nil
	}
	s.writeMu.Unlock()

	s.readMu.Lock()
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
		s.reader = nil
	}
	s.readMu.Unlock()
	return errors.Join(errs...)
}

// Exists reports whether dir holds a store checkpoint.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, core.CheckpointFileName))
	return err == nil
}

// Remove deletes the store files in dir, leaving the directory itself.
func Remove(dir string) error {
	for _, name := range []string{core.RecordLogFileName, checkpoint.FileName, checkpoint.TempFileName} {
		if err := sys.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}
