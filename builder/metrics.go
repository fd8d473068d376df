package builder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_events_processed_total",
		Help: "Total number of trace events consumed by history builders.",
	})
	intervalsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_intervals_emitted_total",
		Help: "Total number of intervals emitted into stores.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_misses_total",
		Help: "Total number of end events without an open begin.",
	})
	malformedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_malformed_events_total",
		Help: "Total number of events skipped because they could not be interpreted.",
	})
	duplicateBeginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_duplicate_begins_total",
		Help: "Total number of begin events for an already open key.",
	})
	outOfOrderEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_builder_out_of_order_events_total",
		Help: "Total number of events whose timestamp went backwards.",
	})
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexustrace_builder_builds_total",
		Help: "Total number of finished builds by terminal status.",
	}, []string{"status"})
)
