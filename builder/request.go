package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/store"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrAlreadyStarted is returned by Run when called more than once.
var ErrAlreadyStarted = errors.New("build request already started")

// Request builds one interval store from one event source. Run drives the
// build on the caller's goroutine; Cancel, Status, Checkpoints and
// WaitForCompletion may be called from any goroutine.
type Request[K comparable, V, P any] struct {
	id      string
	opts    Options
	logger  *slog.Logger
	tracer  oteltrace.Tracer
	store   *store.Store[P]
	handler Handler[K, V, P]
	tracker *tracker.Tracker[K, V]

	status atomic.Int32
	done   chan struct{}

	mu          sync.Mutex
	cancelled   bool
	cancelFn    context.CancelFunc
	checkpoints []Checkpoint
	result      Result

	// Owned by the goroutine executing Run.
	counts    Result
	lastTs    int64
	seenEvent bool
	pageFirst int64
	pageLast  int64
	pageCount int
}

// New creates a pending request that appends into st.
func New[K comparable, V, P any](st *store.Store[P], handler Handler[K, V, P], opts Options) (*Request[K, V, P], error) {
	if st == nil {
		return nil, &core.ValidationError{Message: "store must be set", Field: "store"}
	}
	if handler == nil {
		return nil, &core.ValidationError{Message: "handler must be set", Field: "handler"}
	}
	opts = opts.withDefaults()
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	r := &Request[K, V, P]{
		id:      opts.RequestID,
		opts:    opts,
		logger:  opts.Logger.With("component", "HistoryBuilder", "request_id", opts.RequestID),
		tracer:  opts.Tracer,
		store:   st,
		handler: handler,
		tracker: tracker.New[K, V](opts.DuplicatePolicy),
		done:    make(chan struct{}),
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("nexustrace/builder")
	}
	return r, nil
}

// ID returns the request identifier.
func (r *Request[K, V, P]) ID() string { return r.id }

// Status returns the current lifecycle state.
func (r *Request[K, V, P]) Status() Status { return Status(r.status.Load()) }

// Store returns the store the request appends into.
func (r *Request[K, V, P]) Store() *store.Store[P] { return r.store }

// Cancel asks the build to stop. It is checked between events and also
// interrupts a source blocked in Next. Cancelling a finished request has
// no effect.
func (r *Request[K, V, P]) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	if r.cancelFn != nil {
		r.cancelFn()
	}
}

// Checkpoints returns a copy of the page checkpoints recorded so far.
func (r *Request[K, V, P]) Checkpoints() []Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Checkpoint(nil), r.checkpoints...)
}

// WaitForCompletion blocks until the request reaches a terminal state or
// ctx is done.
func (r *Request[K, V, P]) WaitForCompletion(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return Result{Status: r.Status()}, ctx.Err()
	}
}

// Run consumes src until it is exhausted, the request is cancelled, or a
// fatal error occurs. It returns nil for completed and cancelled builds and
// the failure otherwise; the same outcome is available from
// WaitForCompletion. A failed build abandons the store, leaving its files
// at the last durable checkpoint.
func (r *Request[K, V, P]) Run(ctx context.Context, src trace.Source) error {
	if !r.status.CompareAndSwap(int32(StatusPending), int32(StatusRunning)) {
		return ErrAlreadyStarted
	}
	started := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelFn = cancel
	if r.cancelled {
		cancel()
	}
	r.mu.Unlock()

	runCtx, span := r.tracer.Start(runCtx, "builder.Run", oteltrace.WithAttributes(
		attribute.String("request.id", r.id),
		attribute.String("store.dir", r.store.Dir()),
	))
	defer span.End()

	// Hooks outlive the run context so that terminal events still reach
	// listeners after a cancellation.
	hookCtx := context.WithoutCancel(runCtx)
	r.store.SetOnFlush(func(cp core.Checkpoint) {
		r.trigger(hookCtx, hooks.NewPostStoreFlushEvent(hooks.StoreFlushPayload{RequestID: r.id, Checkpoint: cp}))
	})
	defer r.store.SetOnFlush(nil)

	payload := hooks.BuildPayload{RequestID: r.id, StoreDir: r.store.Dir()}
	if err := r.trigger(hookCtx, hooks.NewPreBuildStartEvent(payload)); err != nil {
		return r.finish(hookCtx, span, started, StatusFailed, err)
	}
	r.trigger(hookCtx, hooks.NewPostBuildStartEvent(payload))
	r.logger.Info("Build started", "store_dir", r.store.Dir(), "page_size", r.opts.PageSize, "duplicate_policy", r.opts.DuplicatePolicy.String())

	status, err := r.consume(runCtx, hookCtx, span, src)
	switch status {
	case StatusCompleted:
		if err = r.complete(hookCtx, span); err != nil {
			status = StatusFailed
		}
	case StatusCancelled:
		// Keep what was built durable; the store stays incomplete.
		if flushErr := r.store.Flush(); flushErr != nil {
			status, err = StatusFailed, fmt.Errorf("failed to flush cancelled build: %w", flushErr)
		}
	}
	return r.finish(hookCtx, span, started, status, err)
}

func (r *Request[K, V, P]) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Request[K, V, P]) consume(ctx, hookCtx context.Context, span oteltrace.Span, src trace.Source) (Status, error) {
	for {
		if r.isCancelled() || ctx.Err() != nil {
			return StatusCancelled, nil
		}
		ev, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return StatusCompleted, nil
			case ctx.Err() != nil:
				return StatusCancelled, nil
			case core.IsValidationError(err):
				r.malformed(nil, err)
				continue
			case errors.Is(err, core.ErrSourceLost):
				return StatusFailed, err
			default:
				return StatusFailed, fmt.Errorf("%w: %w", core.ErrSourceLost, err)
			}
		}
		if err := r.process(hookCtx, span, ev); err != nil {
			return StatusFailed, err
		}
	}
}

func (r *Request[K, V, P]) process(ctx context.Context, span oteltrace.Span, ev trace.Event) error {
	r.counts.EventsProcessed++
	eventsProcessedTotal.Inc()

	ts := ev.Timestamp()
	if r.seenEvent && ts < r.lastTs {
		r.counts.OutOfOrder++
		outOfOrderEventsTotal.Inc()
		r.logger.Warn("Event timestamp went backwards", "event", ev.Name(), "timestamp", ts, "previous", r.lastTs)
	}
	r.lastTs, r.seenEvent = ts, true

	action, err := r.handler.Classify(ev)
	if err != nil {
		r.malformed(ev, err)
		return nil
	}

	switch action.Kind {
	case Begin:
		before := r.tracker.Stats().Duplicates
		displaced, ok := r.tracker.Begin(action.Key, ts, action.Partial)
		if r.tracker.Stats().Duplicates != before {
			duplicateBeginsTotal.Inc()
		}
		if !ok {
			return nil
		}
		truncator, canTruncate := r.handler.(Truncator[K, V, P])
		if !canTruncate {
			return nil
		}
		payload, err := truncator.Truncate(displaced, ev)
		if err != nil {
			r.malformed(ev, err)
			return nil
		}
		return r.emit(ctx, span, ev, displaced.Start, ts, payload)

	case End:
		entry, ok := r.tracker.End(action.Key)
		if !ok {
			missesTotal.Inc()
			return nil
		}
		payload, err := r.handler.Merge(entry, ev)
		if err != nil {
			r.malformed(ev, err)
			return nil
		}
		return r.emit(ctx, span, ev, entry.Start, ts, payload)
	}
	return nil
}

func (r *Request[K, V, P]) malformed(ev trace.Event, err error) {
	r.counts.Malformed++
	malformedEventsTotal.Inc()
	if ev != nil {
		r.logger.Debug("Skipping malformed event", "event", ev.Name(), "timestamp", ev.Timestamp(), "error", err)
		return
	}
	r.logger.Debug("Skipping unreadable event", "error", err)
}

func (r *Request[K, V, P]) emit(ctx context.Context, span oteltrace.Span, ev trace.Event, start, end int64, payload P) error {
	if start > end {
		// Only reachable with out-of-order input.
		r.malformed(ev, fmt.Errorf("%w: [%d, %d]", core.ErrInvalidInterval, start, end))
		return nil
	}
	if err := r.store.AddValue(core.Interval[P]{Start: start, End: end, Payload: payload}); err != nil {
		return fmt.Errorf("failed to append interval: %w", err)
	}
	r.counts.Intervals++
	intervalsEmittedTotal.Inc()

	if r.pageCount == 0 {
		r.pageFirst, r.pageLast = start, end
	}
	r.pageFirst = min(r.pageFirst, start)
	r.pageLast = max(r.pageLast, end)
	r.pageCount++
	if r.pageCount >= r.opts.PageSize {
		r.recordPage(ctx, span)
	}
	return nil
}

func (r *Request[K, V, P]) recordPage(ctx context.Context, span oteltrace.Span) {
	cp := Checkpoint{First: r.pageFirst, Last: r.pageLast}
	r.mu.Lock()
	r.checkpoints = append(r.checkpoints, cp)
	page := len(r.checkpoints)
	r.mu.Unlock()
	r.pageCount = 0

	span.AddEvent("page_checkpoint", oteltrace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int64("first", cp.First),
		attribute.Int64("last", cp.Last),
	))
	r.trigger(ctx, hooks.NewPostPageCheckpointEvent(hooks.PageCheckpointPayload{
		RequestID: r.id, Page: page, First: cp.First, Last: cp.Last,
	}))
}

// complete records the partial last page, drops open entries and marks
// the store complete.
func (r *Request[K, V, P]) complete(ctx context.Context, span oteltrace.Span) error {
	if r.pageCount > 0 {
		r.recordPage(ctx, span)
	}
	if n := r.tracker.Discard(); n > 0 {
		r.logger.Debug("Discarded open entries at end of stream", "count", n)
	}
	if err := r.store.Complete(); err != nil {
		return fmt.Errorf("failed to complete store: %w", err)
	}
	return nil
}

func (r *Request[K, V, P]) finish(ctx context.Context, span oteltrace.Span, started time.Time, status Status, err error) error {
	stats := r.tracker.Stats()
	res := r.counts
	res.Status = status
	res.Misses = stats.Misses
	res.Duplicates = stats.Duplicates
	res.Abandoned = int(stats.Abandoned)
	if status == StatusFailed {
		res.Err = err
		// Drop everything appended since the last durable checkpoint.
		if abandonErr := r.store.Abandon(); abandonErr != nil {
			r.logger.Warn("Failed to release store after failed build", "error", abandonErr)
		}
	} else {
		err = nil
	}

	span.SetAttributes(
		attribute.String("build.status", status.String()),
		attribute.Int64("build.events", int64(res.EventsProcessed)),
		attribute.Int64("build.intervals", int64(res.Intervals)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	buildsTotal.WithLabelValues(status.String()).Inc()

	payload := hooks.BuildResultPayload{
		RequestID:       r.id,
		StoreDir:        r.store.Dir(),
		EventsProcessed: res.EventsProcessed,
		Intervals:       res.Intervals,
		Misses:          res.Misses,
		Malformed:       res.Malformed,
		Abandoned:       res.Abandoned,
		Duration:        time.Since(started),
		Error:           err,
	}
	switch status {
	case StatusCompleted:
		r.logger.Info("Build completed", "intervals", res.Intervals, "events", res.EventsProcessed, "misses", res.Misses, "malformed", res.Malformed, "abandoned", res.Abandoned)
		r.trigger(ctx, hooks.NewPostBuildCompleteEvent(payload))
	case StatusCancelled:
		r.logger.Info("Build cancelled", "intervals", res.Intervals, "events", res.EventsProcessed)
		r.trigger(ctx, hooks.NewPostBuildCancelEvent(payload))
	case StatusFailed:
		r.logger.Error("Build failed", "intervals", res.Intervals, "events", res.EventsProcessed, "error", err)
		r.trigger(ctx, hooks.NewPostBuildFailEvent(payload))
	}

	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	r.status.Store(int32(status))
	close(r.done)
	return err
}

func (r *Request[K, V, P]) trigger(ctx context.Context, event hooks.HookEvent) error {
	if r.opts.Hooks == nil {
		return nil
	}
	return r.opts.Hooks.Trigger(ctx, event)
}
