package latency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/INLOpen/nexustrace/builder"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/store"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Name identifies the analysis in hook payloads.
	Name = "latency"
	// DataDirName is the store directory under the supplementary directory.
	DataDirName = "latency-analysis"
)

// ErrCancelled is returned by Execute when the build was cancelled. The
// partial results stay available through Results.
var ErrCancelled = errors.New("latency analysis cancelled")

// Options configures an Analysis.
type Options struct {
	// Dir is the trace's supplementary directory.
	Dir    string
	Layout Layout
	// Store configures the result store; its Dir is derived from Dir.
	Store           store.Options
	PageSize        int
	DuplicatePolicy tracker.DuplicatePolicy

	Hooks  hooks.HookManager
	Logger *slog.Logger
	Tracer oteltrace.Tracer
}

// Analysis computes the system call intervals of one trace, reusing a
// complete result store persisted by an earlier run.
type Analysis struct {
	opts    Options
	logger  *slog.Logger
	tracer  oteltrace.Tracer
	handler *handler

	mu        sync.Mutex
	results   *store.Store[SystemCall]
	request   *builder.Request[int64, pending, SystemCall]
	cancelled bool
	lastBuild *builder.Result
}

// New validates opts and returns an analysis that has not run yet.
func New(opts Options) (*Analysis, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("latency analysis: supplementary directory must be set")
	}
	if opts.Layout == (Layout{}) {
		opts.Layout = DefaultLayout()
	}
	h, err := newHandler(opts.Layout)
	if err != nil {
		return nil, fmt.Errorf("latency analysis: invalid layout: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &Analysis{
		opts:    opts,
		logger:  opts.Logger.With("component", "LatencyAnalysis"),
		tracer:  opts.Tracer,
		handler: h,
	}
	if a.tracer == nil {
		a.tracer = noop.NewTracerProvider().Tracer("nexustrace/latency")
	}
	return a, nil
}

// DataDir is where the result store lives.
func (a *Analysis) DataDir() string {
	return filepath.Join(a.opts.Dir, DataDirName)
}

func (a *Analysis) storeOptions() store.Options {
	so := a.opts.Store
	so.Dir = a.DataDir()
	if so.Logger == nil {
		so.Logger = a.opts.Logger
	}
	if so.Tracer == nil {
		so.Tracer = a.opts.Tracer
	}
	return so
}

// Execute makes the results available. A complete persisted store is
// reopened; a partial or unreadable one is deleted and rebuilt from src.
func (a *Analysis) Execute(ctx context.Context, src trace.Source) error {
	ctx, span := a.tracer.Start(ctx, "latency.Execute", oteltrace.WithAttributes(
		attribute.String("analysis.dir", a.DataDir()),
	))
	defer span.End()

	a.mu.Lock()
	if a.results != nil || a.request != nil {
		a.mu.Unlock()
		return fmt.Errorf("latency analysis already executed")
	}
	a.mu.Unlock()

	if store.Exists(a.DataDir()) {
		st, err := a.reopen(ctx)
		if err == nil {
			span.SetAttributes(attribute.Bool("analysis.reopened", true))
			a.mu.Lock()
			a.results = st
			a.mu.Unlock()
			a.logger.Info("Reopened persisted results", "dir", a.DataDir(), "intervals", st.NbElements())
			return a.completed(ctx, st, true)
		}
		if err := a.trigger(ctx, hooks.NewPreAnalysisRebuildEvent(hooks.AnalysisRebuildPayload{
			Analysis: Name, Dir: a.DataDir(), Reason: err.Error(),
		})); err != nil {
			return fmt.Errorf("latency analysis rebuild aborted: %w", err)
		}
		level := slog.LevelWarn
		if !errors.Is(err, errPartialResults) && !core.IsRecoverable(err) {
			level = slog.LevelError
		}
		a.logger.Log(ctx, level, "Discarding persisted results", "dir", a.DataDir(), "reason", err)
		if err := store.Remove(a.DataDir()); err != nil {
			return fmt.Errorf("failed to discard persisted results: %w", err)
		}
	}
	return a.build(ctx, src)
}

var errPartialResults = errors.New("partial results")

// reopen returns the persisted store if it is complete.
func (a *Analysis) reopen(ctx context.Context) (*store.Store[SystemCall], error) {
	st, err := store.Open[SystemCall](ctx, a.storeOptions(), Codec{})
	if err != nil {
		return nil, err
	}
	if !st.IsComplete() {
		if err := st.Dispose(); err != nil {
			a.logger.Warn("Failed to close partial store", "error", err)
		}
		return nil, errPartialResults
	}
	return st, nil
}

func (a *Analysis) build(ctx context.Context, src trace.Source) error {
	st, err := store.Create[SystemCall](a.storeOptions(), Codec{})
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}
	req, err := builder.New(st, builder.Handler[int64, pending, SystemCall](a.handler), builder.Options{
		PageSize:        a.opts.PageSize,
		DuplicatePolicy: a.opts.DuplicatePolicy,
		Hooks:           a.opts.Hooks,
		Logger:          a.opts.Logger,
		Tracer:          a.opts.Tracer,
	})
	if err != nil {
		st.Dispose()
		return err
	}

	a.mu.Lock()
	a.request = req
	if a.cancelled {
		req.Cancel()
	}
	a.mu.Unlock()

	runErr := req.Run(ctx, src)
	res, _ := req.WaitForCompletion(context.WithoutCancel(ctx))

	a.mu.Lock()
	a.lastBuild = &res
	a.mu.Unlock()

	switch res.Status {
	case builder.StatusCompleted:
		a.mu.Lock()
		a.results = st
		a.mu.Unlock()
		return a.completed(ctx, st, false)
	case builder.StatusCancelled:
		a.mu.Lock()
		a.results = st
		a.mu.Unlock()
		return ErrCancelled
	default:
		if err := st.Abandon(); err != nil {
			a.logger.Warn("Failed to close result store after failed build", "error", err)
		}
		if runErr == nil {
			runErr = res.Err
		}
		return fmt.Errorf("latency analysis build failed: %w", runErr)
	}
}

func (a *Analysis) completed(ctx context.Context, st *store.Store[SystemCall], reopened bool) error {
	summaries, err := Statistics(st)
	if err != nil {
		return fmt.Errorf("failed to summarise results: %w", err)
	}
	a.trigger(context.WithoutCancel(ctx), hooks.NewPostAnalysisCompleteEvent(hooks.AnalysisCompletePayload{
		Analysis:  Name,
		Dir:       a.DataDir(),
		Intervals: st.NbElements(),
		Reopened:  reopened,
		Summaries: hookSummaries(summaries),
	}))
	return nil
}

func (a *Analysis) trigger(ctx context.Context, event hooks.HookEvent) error {
	if a.opts.Hooks == nil {
		return nil
	}
	return a.opts.Hooks.Trigger(ctx, event)
}

// Results returns the result store, or nil until Execute has reopened or
// built one.
func (a *Analysis) Results() *store.Store[SystemCall] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results
}

// LastBuild returns the outcome of the build run by Execute, if any.
func (a *Analysis) LastBuild() (builder.Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastBuild == nil {
		return builder.Result{}, false
	}
	return *a.lastBuild, true
}

// Cancel stops a running build. Calling it before Execute cancels the
// build as soon as it starts.
func (a *Analysis) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = true
	if a.request != nil {
		a.request.Cancel()
	}
}

// Close releases the result store.
func (a *Analysis) Close() error {
	a.mu.Lock()
	st := a.results
	a.results = nil
	a.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.Dispose()
}
