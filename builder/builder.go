// Package builder turns a stream of begin/end trace events into intervals
// in an interval store.
package builder

import (
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ActionKind classifies an event for one analysis.
type ActionKind int

const (
	Ignore ActionKind = iota
	Begin
	End
)

func (k ActionKind) String() string {
	switch k {
	case Ignore:
		return "ignore"
	case Begin:
		return "begin"
	case End:
		return "end"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is the outcome of classifying one event. Partial is only
// meaningful for Begin.
type Action[K comparable, V any] struct {
	Kind    ActionKind
	Key     K
	Partial V
}

// Handler holds the analysis-specific part of a build. An error returned
// by either method marks the event as malformed; it is counted and skipped.
type Handler[K comparable, V, P any] interface {
	Classify(ev trace.Event) (Action[K, V], error)
	Merge(entry tracker.Entry[K, V], end trace.Event) (P, error)
}

// Truncator is implemented by handlers that can close an entry displaced
// by a duplicate begin. Without it, displaced entries are dropped.
type Truncator[K comparable, V, P any] interface {
	Truncate(entry tracker.Entry[K, V], at trace.Event) (P, error)
}

// Checkpoint describes one page of closed intervals. Every interval in the
// page lies within [First, Last]: First is the earliest start and Last the
// latest end.
type Checkpoint struct {
	First int64
	Last  int64
}

// Status is the lifecycle state of a request.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Result is the terminal outcome of a request.
type Result struct {
	Status Status
	// Err is set only when Status is StatusFailed.
	Err error

	EventsProcessed uint64
	Intervals       uint64
	Misses          uint64
	Malformed       uint64
	Duplicates      uint64
	OutOfOrder      uint64
	Abandoned       int
}

// Options configures a request.
type Options struct {
	// RequestID names the request in logs, spans and hook payloads. A
	// random ID is used when empty.
	RequestID string
	// PageSize is the number of closed intervals per page checkpoint.
	PageSize int
	// DuplicatePolicy applies when a key is begun while already open.
	DuplicatePolicy tracker.DuplicatePolicy

	Hooks  hooks.HookManager
	Logger *slog.Logger
	Tracer oteltrace.Tracer
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = core.DefaultPageSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
