package cache

import "github.com/prometheus/client_golang/prometheus"

// Interface defines the public API for a generic cache.
type Interface[K comparable, V any] interface {
	Put(key K, value V)
	Get(key K) (value V, ok bool)
	Clear()
	GetHitRate() float64
	SetMetrics(hits, misses prometheus.Counter)
	Len() int
}

var _ Interface[uint64, int] = (*LRUCache[uint64, int])(nil)
