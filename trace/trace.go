// Package trace defines the event stream consumed by history builders.
package trace

import (
	"context"
	"io"

	"github.com/INLOpen/nexustrace/core"
)

// Event is a single timestamped trace event.
type Event interface {
	Timestamp() int64
	Name() string
	Field(name string) (core.FieldValue, bool)
	Fields() core.Fields
}

// Source delivers events in non-decreasing timestamp order. Next returns
// io.EOF once the stream is exhausted. An error matching
// core.IsValidationError concerns a single event and the stream may be
// continued; any other error means the source is lost.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// Record is the plain Event implementation.
type Record struct {
	Time   int64
	Type   string
	Values core.Fields
}

func (r *Record) Timestamp() int64    { return r.Time }
func (r *Record) Name() string        { return r.Type }
func (r *Record) Fields() core.Fields { return r.Values }

func (r *Record) Field(name string) (core.FieldValue, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// FuncSource adapts a function to Source.
type FuncSource func(ctx context.Context) (Event, error)

func (f FuncSource) Next(ctx context.Context) (Event, error) { return f(ctx) }
