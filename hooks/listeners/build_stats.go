package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/nexustrace/hooks"
)

// expvar names are process-wide, so they are created once.
var (
	buildStatsOnce    sync.Once
	buildsCompleted   *expvar.Int
	buildsCancelled   *expvar.Int
	buildsFailed      *expvar.Int
	analysisRebuilds  *expvar.Int
	analysisCompleted *expvar.Int
)

func initBuildStats() {
	buildStatsOnce.Do(func() {
		buildsCompleted = expvar.NewInt("nexustrace_builds_completed_total")
		buildsCancelled = expvar.NewInt("nexustrace_builds_cancelled_total")
		buildsFailed = expvar.NewInt("nexustrace_builds_failed_total")
		analysisRebuilds = expvar.NewInt("nexustrace_analysis_rebuilds_total")
		analysisCompleted = expvar.NewInt("nexustrace_analysis_completed_total")
		// Share of analyses that had to be rebuilt rather than reopened.
		expvar.Publish("nexustrace_analysis_rebuild_ratio", expvar.Func(func() interface{} {
			done := analysisCompleted.Value()
			if done == 0 {
				return 0.0
			}
			return float64(analysisRebuilds.Value()) / float64(done)
		}))
	})
}

// BuildStatsListener counts build outcomes and analysis rebuilds in expvar.
type BuildStatsListener struct {
	logger *slog.Logger
}

// NewBuildStatsListener creates a new listener.
func NewBuildStatsListener(logger *slog.Logger) *BuildStatsListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initBuildStats()
	return &BuildStatsListener{logger: logger.With("component", "BuildStatsListener")}
}

// Register attaches the listener to every event it counts.
func (l *BuildStatsListener) Register(m hooks.HookManager) {
	for _, et := range []hooks.EventType{
		hooks.EventPostBuildComplete,
		hooks.EventPostBuildCancel,
		hooks.EventPostBuildFail,
		hooks.EventPreAnalysisRebuild,
		hooks.EventPostAnalysisComplete,
	} {
		m.Register(et, l)
	}
}

// OnEvent increments the counter matching the event.
func (l *BuildStatsListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch event.Type() {
	case hooks.EventPostBuildComplete:
		buildsCompleted.Add(1)
	case hooks.EventPostBuildCancel:
		buildsCancelled.Add(1)
	case hooks.EventPostBuildFail:
		buildsFailed.Add(1)
	case hooks.EventPreAnalysisRebuild:
		analysisRebuilds.Add(1)
		if p, ok := event.Payload().(hooks.AnalysisRebuildPayload); ok {
			l.logger.Info("Rebuilding analysis results", "analysis", p.Analysis, "dir", p.Dir, "reason", p.Reason)
		}
	case hooks.EventPostAnalysisComplete:
		analysisCompleted.Add(1)
	}
	return nil
}

// Priority defines the execution order.
func (l *BuildStatsListener) Priority() int { return 50 }

// IsAsync is false so counters are up to date when Trigger returns.
func (l *BuildStatsListener) IsAsync() bool { return false }
