package core

import "fmt"

// Interval is a closed time range [Start, End] carrying an analysis payload.
// Intervals are values: once handed to a store they are never mutated, and
// readers always receive copies.
type Interval[P any] struct {
	Start   int64
	End     int64
	Payload P
}

// NewInterval validates the Start <= End invariant.
func NewInterval[P any](start, end int64, payload P) (Interval[P], error) {
	if start > end {
		return Interval[P]{}, fmt.Errorf("%w: start %d is after end %d", ErrInvalidInterval, start, end)
	}
	return Interval[P]{Start: start, End: end, Payload: payload}, nil
}

// Duration returns End - Start.
func (iv Interval[P]) Duration() int64 {
	return iv.End - iv.Start
}

// Contains reports whether t lies inside the closed range.
func (iv Interval[P]) Contains(t int64) bool {
	return iv.Start <= t && t <= iv.End
}

// Overlaps reports whether the interval shares at least one instant with [t0, t1].
func (iv Interval[P]) Overlaps(t0, t1 int64) bool {
	return iv.Start <= t1 && iv.End >= t0
}

func (iv Interval[P]) String() string {
	return fmt.Sprintf("[%d, %d] (%d) %v", iv.Start, iv.End, iv.Duration(), iv.Payload)
}
