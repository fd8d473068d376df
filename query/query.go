// Package query answers state questions over a built interval store.
package query

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/store"
	"golang.org/x/sync/errgroup"
)

// Facade reads a store on behalf of a view. The store may still be under
// construction; every call sees the intervals committed when it starts.
type Facade[K comparable, P any] struct {
	store  *store.Store[P]
	keyOf  func(P) K
	logger *slog.Logger
	// parallelism bounds StatesAt.
	parallelism int
}

// Option configures a Facade.
type Option func(*facadeOptions)

type facadeOptions struct {
	logger      *slog.Logger
	parallelism int
}

// WithLogger sets the logger used by the facade.
func WithLogger(l *slog.Logger) Option {
	return func(o *facadeOptions) { o.logger = l }
}

// WithParallelism bounds the number of instants StatesAt evaluates at once.
func WithParallelism(n int) Option {
	return func(o *facadeOptions) { o.parallelism = n }
}

// New returns a facade over st. keyOf extracts the attribute key from a payload.
func New[K comparable, P any](st *store.Store[P], keyOf func(P) K, opts ...Option) *Facade[K, P] {
	o := facadeOptions{parallelism: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.parallelism <= 0 {
		o.parallelism = 1
	}
	return &Facade[K, P]{
		store:       st,
		keyOf:       keyOf,
		logger:      o.logger.With("component", "QueryFacade"),
		parallelism: o.parallelism,
	}
}

// StateAt returns, for each key, the interval covering t. When several
// intervals of one key cover t (nested, or touching at t) the one with the
// greatest start wins, then the one inserted last.
func (f *Facade[K, P]) StateAt(t int64) (map[K]core.Interval[P], error) {
	out := make(map[K]core.Interval[P])
	for iv, err := range f.store.IntersectingElements(t) {
		if err != nil {
			return nil, fmt.Errorf("state at %d: %w", t, err)
		}
		key := f.keyOf(iv.Payload)
		// Intersecting elements arrive in insertion order, so a later one
		// with the same start replaces an earlier one.
		if cur, ok := out[key]; !ok || iv.Start >= cur.Start {
			out[key] = iv
		}
	}
	return out, nil
}

// ValueAt returns the interval of key covering t, if any.
func (f *Facade[K, P]) ValueAt(key K, t int64) (core.Interval[P], bool, error) {
	var (
		found core.Interval[P]
		ok    bool
	)
	for iv, err := range f.store.IntersectingElements(t) {
		if err != nil {
			return core.Interval[P]{}, false, fmt.Errorf("value at %d: %w", t, err)
		}
		if f.keyOf(iv.Payload) != key {
			continue
		}
		if !ok || iv.Start >= found.Start {
			found, ok = iv, true
		}
	}
	return found, ok, nil
}

// RangeQuery returns every interval of key overlapping [t0, t1], ordered
// by start time and then by insertion.
func (f *Facade[K, P]) RangeQuery(key K, t0, t1 int64) ([]core.Interval[P], error) {
	if t0 > t1 {
		return nil, &core.ValidationError{Message: "range start after range end", Field: "range", Value: fmt.Sprintf("[%d, %d]", t0, t1)}
	}
	var out []core.Interval[P]
	for iv, err := range f.store.Overlapping(t0, t1) {
		if err != nil {
			return nil, fmt.Errorf("range query [%d, %d]: %w", t0, t1, err)
		}
		if f.keyOf(iv.Payload) == key {
			out = append(out, iv)
		}
	}
	// Stable sort keeps insertion order among equal starts.
	slices.SortStableFunc(out, func(a, b core.Interval[P]) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return out, nil
}

// Intersecting passes through to the store for views that virtualise the
// list of intervals covering t.
func (f *Facade[K, P]) Intersecting(t int64) iter.Seq2[core.Interval[P], error] {
	return f.store.IntersectingElements(t)
}

// NbElements returns the number of committed intervals.
func (f *Facade[K, P]) NbElements() uint64 {
	return f.store.NbElements()
}

// ElementAt returns the interval at insertion index i.
func (f *Facade[K, P]) ElementAt(i uint64) (core.Interval[P], error) {
	return f.store.ElementAt(i)
}

// StatesAt evaluates StateAt for several instants concurrently. Results
// are in the order of times.
func (f *Facade[K, P]) StatesAt(ctx context.Context, times []int64) ([]map[K]core.Interval[P], error) {
	out := make([]map[K]core.Interval[P], len(times))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i, t := range times {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state, err := f.StateAt(t)
			if err != nil {
				return err
			}
			out[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Debug("StatesAt failed", "instants", len(times), "error", err)
		return nil, err
	}
	return out, nil
}
