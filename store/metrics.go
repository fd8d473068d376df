package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_appends_total",
		Help: "Total number of intervals appended to interval stores.",
	})
	checkpointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_checkpoints_total",
		Help: "Total number of durability checkpoints written.",
	})
	diskReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_disk_reads_total",
		Help: "Total number of intervals read back from the record log.",
	})
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_cache_hits_total",
		Help: "Total number of interval cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_cache_misses_total",
		Help: "Total number of interval cache misses.",
	})
	rebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_index_rebuilds_total",
		Help: "Total number of stores whose indexes were rebuilt on open.",
	})
	abandonsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexustrace_store_abandons_total",
		Help: "Total number of stores closed without a final checkpoint.",
	})
)
