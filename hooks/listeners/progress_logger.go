package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexustrace/hooks"
)

// ProgressLoggerListener logs build progress: page checkpoints, store
// flushes and the terminal state of every build.
type ProgressLoggerListener struct {
	logger *slog.Logger
}

// NewProgressLoggerListener creates a new listener for build progress.
func NewProgressLoggerListener(logger *slog.Logger) *ProgressLoggerListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProgressLoggerListener{
		logger: logger.With("component", "ProgressLoggerListener"),
	}
}

// Register attaches the listener to every event it understands.
func (l *ProgressLoggerListener) Register(m hooks.HookManager) {
	for _, et := range []hooks.EventType{
		hooks.EventPostPageCheckpoint,
		hooks.EventPostStoreFlush,
		hooks.EventPostBuildComplete,
		hooks.EventPostBuildCancel,
		hooks.EventPostBuildFail,
	} {
		m.Register(et, l)
	}
}

// OnEvent handles build progress events.
func (l *ProgressLoggerListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch p := event.Payload().(type) {
	case hooks.PageCheckpointPayload:
		l.logger.Debug("Page checkpoint recorded", "request_id", p.RequestID, "page", p.Page, "first", p.First, "last", p.Last)
	case hooks.StoreFlushPayload:
		l.logger.Debug("Store flushed", "request_id", p.RequestID, "committed", p.Checkpoint.Committed, "complete", p.Checkpoint.Complete)
	case hooks.BuildResultPayload:
		attrs := []any{
			"request_id", p.RequestID,
			"store_dir", p.StoreDir,
			"events", p.EventsProcessed,
			"intervals", p.Intervals,
			"misses", p.Misses,
			"malformed", p.Malformed,
			"abandoned", p.Abandoned,
			"duration", p.Duration,
		}
		switch event.Type() {
		case hooks.EventPostBuildComplete:
			l.logger.Info("Build completed", attrs...)
		case hooks.EventPostBuildCancel:
			l.logger.Info("Build cancelled", attrs...)
		case hooks.EventPostBuildFail:
			l.logger.Error("Build failed", append(attrs, "error", p.Error)...)
		}
	default:
		l.logger.Error("Received event with incorrect payload type", "event", event.Type(), "payload_type", fmt.Sprintf("%T", event.Payload()))
	}
	return nil
}

// Priority defines the execution order.
func (l *ProgressLoggerListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *ProgressLoggerListener) IsAsync() bool { return true }
