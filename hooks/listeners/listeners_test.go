package listeners

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLoggerListener_OnEvent(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	listener := NewProgressLoggerListener(logger)

	t.Run("Logs page checkpoints", func(t *testing.T) {
		logBuf.Reset()
		event := hooks.NewPostPageCheckpointEvent(hooks.PageCheckpointPayload{RequestID: "r1", Page: 2, First: 10, Last: 99})
		require.NoError(t, listener.OnEvent(context.Background(), event))
		assert.Contains(t, logBuf.String(), "Page checkpoint recorded")
		assert.Contains(t, logBuf.String(), `"last":99`)
	})

	t.Run("Logs store flushes", func(t *testing.T) {
		logBuf.Reset()
		event := hooks.NewPostStoreFlushEvent(hooks.StoreFlushPayload{Checkpoint: core.Checkpoint{Committed: 10000}})
		require.NoError(t, listener.OnEvent(context.Background(), event))
		assert.Contains(t, logBuf.String(), `"committed":10000`)
	})

	t.Run("Logs failures at error level", func(t *testing.T) {
		logBuf.Reset()
		event := hooks.NewPostBuildFailEvent(hooks.BuildResultPayload{RequestID: "r1", Error: errors.New("source lost")})
		require.NoError(t, listener.OnEvent(context.Background(), event))
		assert.Contains(t, logBuf.String(), `"level":"ERROR"`)
		assert.Contains(t, logBuf.String(), "source lost")
	})

	t.Run("Registers for build events", func(t *testing.T) {
		manager := hooks.NewHookManager(nil)
		listener.Register(manager)
		logBuf.Reset()
		require.NoError(t, manager.Trigger(context.Background(), hooks.NewPostBuildCompleteEvent(hooks.BuildResultPayload{Intervals: 3})))
		manager.Stop()
		assert.Contains(t, logBuf.String(), "Build completed")
	})
}

func TestLatencyAlerterListener_OnEvent(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	listener := NewLatencyAlerterListener(logger, []LatencyRule{
		{Name: "read", MaxP99: 100},
		{Name: "write", MaxDuration: 50},
	})

	payload := hooks.AnalysisCompletePayload{
		Analysis: "latency",
		Summaries: []hooks.DurationSummary{
			{Name: "read", Count: 10, Max: 500, P99: 450},
			{Name: "write", Count: 3, Max: 40, P99: 39},
			{Name: "open", Count: 1, Max: 1 << 40, P99: 1 << 40},
		},
	}
	require.NoError(t, listener.OnEvent(context.Background(), hooks.NewPostAnalysisCompleteEvent(payload)))

	out := logBuf.String()
	assert.Contains(t, out, "Latency p99 above limit")
	assert.Contains(t, out, `"name":"read"`)
	assert.NotContains(t, out, `"name":"write"`)
	assert.NotContains(t, out, `"name":"open"`, "names without a rule are ignored")

	logBuf.Reset()
	require.NoError(t, listener.OnEvent(context.Background(), hooks.NewPostBuildCompleteEvent(hooks.BuildResultPayload{})))
	assert.Empty(t, logBuf.String())
}

func TestBuildStatsListener_Counts(t *testing.T) {
	listener := NewBuildStatsListener(nil)
	manager := hooks.NewHookManager(nil)
	listener.Register(manager)

	completed := buildsCompleted.Value()
	rebuilds := analysisRebuilds.Value()

	ctx := context.Background()
	require.NoError(t, manager.Trigger(ctx, hooks.NewPostBuildCompleteEvent(hooks.BuildResultPayload{})))
	require.NoError(t, manager.Trigger(ctx, hooks.NewPreAnalysisRebuildEvent(hooks.AnalysisRebuildPayload{Analysis: "latency"})))
	require.NoError(t, manager.Trigger(ctx, hooks.NewPostAnalysisCompleteEvent(hooks.AnalysisCompletePayload{})))

	assert.Equal(t, completed+1, buildsCompleted.Value())
	assert.Equal(t, rebuilds+1, analysisRebuilds.Value())
}
