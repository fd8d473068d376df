package store

import (
	"log/slog"

	"github.com/INLOpen/nexustrace/core"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a store.
type Options struct {
	// Dir holds the record log and the checkpoint file.
	Dir string
	// BatchSize is the number of appends between durability checkpoints.
	BatchSize int
	// Compression is applied to every record. Only used by Create; Open
	// takes it from the log header.
	Compression core.CompressionType
	// CacheSize bounds the number of decoded intervals kept for disk reads.
	CacheSize int
	// OnFlush, if set, is called after each durability checkpoint while the
	// writer lock is held. It must not call back into the store.
	OnFlush func(cp core.Checkpoint)

	Logger *slog.Logger
	Tracer trace.Tracer
}

const defaultCacheSize = 4096

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = core.DefaultBatchSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
