package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/INLOpen/nexustrace/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDebugServer_Endpoints(t *testing.T) {
	t.Run("AllEnabled", func(t *testing.T) {
		s := NewDebugServer(config.DebugConfig{
			PProfEnabled:     true,
			MetricsEnabled:   true,
			MonitorUIEnabled: true,
		}, discardLogger())
		h := s.Handler()

		assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
		assert.Equal(t, http.StatusOK, get(t, h, "/debug/vars").Code)
		assert.Equal(t, http.StatusOK, get(t, h, "/debug/pprof/").Code)
		assert.Contains(t, get(t, h, "/metrics").Body.String(), "go_goroutines")
	})

	t.Run("Disabled", func(t *testing.T) {
		s := NewDebugServer(config.DebugConfig{}, discardLogger())
		h := s.Handler()

		assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/pprof/").Code)
	})
}

func TestDebugServer_StopWithoutStart(t *testing.T) {
	s := NewDebugServer(config.DebugConfig{}, discardLogger())
	assert.NotPanics(t, s.Stop)
}

func TestSystemCollector(t *testing.T) {
	sc := NewSystemCollector(t.TempDir(), 10*time.Millisecond, discardLogger())
	sc.collect()
	assert.GreaterOrEqual(t, sc.memUsagePercent.Value(), 0.0)

	sc.Start()
	time.Sleep(30 * time.Millisecond)
	sc.Stop()
	require.NotPanics(t, sc.Stop, "stop must be idempotent")

	// Registering a second collector reuses the published variables.
	again := NewSystemCollector(t.TempDir(), time.Second, discardLogger())
	assert.Same(t, sc.memUsagePercent, again.memUsagePercent)
}
