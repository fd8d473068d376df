// Package tracker keeps the open begin events of an analysis, at most one
// per key, until their matching end arrives.
package tracker

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides what happens when a key is begun while it is
// already open.
type DuplicatePolicy int

const (
	// Overwrite replaces the open entry; the earlier begin is lost.
	Overwrite DuplicatePolicy = iota
	// RejectDuplicate keeps the open entry and drops the new begin.
	RejectDuplicate
	// EmitTruncated replaces the open entry and hands the displaced one back
	// so that the caller can close it at the new begin's timestamp.
	EmitTruncated
)

func (p DuplicatePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case RejectDuplicate:
		return "reject"
	case EmitTruncated:
		return "truncate"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy converts a configuration string to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return Overwrite, nil
	case "reject":
		return RejectDuplicate, nil
	case "truncate":
		return EmitTruncated, nil
	default:
		return Overwrite, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Entry is an open begin event.
type Entry[K comparable, V any] struct {
	Key     K
	Start   int64
	Partial V
}

// Stats counts the irregularities seen by a tracker.
type Stats struct {
	Misses     uint64
	Duplicates uint64
	Abandoned  uint64
}

// Tracker maps keys to their open entry. It belongs to a single builder
// and is not safe for concurrent use.
type Tracker[K comparable, V any] struct {
	policy DuplicatePolicy
	open   map[K]Entry[K, V]
	stats  Stats
}

func New[K comparable, V any](policy DuplicatePolicy) *Tracker[K, V] {
	return &Tracker[K, V]{
		policy: policy,
		open:   make(map[K]Entry[K, V]),
	}
}

// Begin opens key at time t. If key is already open the policy applies;
// displaced is set only under EmitTruncated.
func (t *Tracker[K, V]) Begin(key K, ts int64, partial V) (displaced Entry[K, V], ok bool) {
	prev, exists := t.open[key]
	if exists {
		t.stats.Duplicates++
		switch t.policy {
		case RejectDuplicate:
			return displaced, false
		case EmitTruncated:
			displaced, ok = prev, true
		}
	}
	t.open[key] = Entry[K, V]{Key: key, Start: ts, Partial: partial}
	return displaced, ok
}

// End closes key and returns its entry. A key with no open entry is a
// counted miss.
func (t *Tracker[K, V]) End(key K) (Entry[K, V], bool) {
	e, ok := t.open[key]
	if !ok {
		t.stats.Misses++
		return e, false
	}
	delete(t.open, key)
	return e, true
}

// Peek returns the open entry for key without closing it.
func (t *Tracker[K, V]) Peek(key K) (Entry[K, V], bool) {
	e, ok := t.open[key]
	return e, ok
}

// Len returns the number of open entries.
func (t *Tracker[K, V]) Len() int {
	return len(t.open)
}

// Discard drops every open entry and returns how many there were.
func (t *Tracker[K, V]) Discard() int {
	n := len(t.open)
	t.stats.Abandoned += uint64(n)
	clear(t.open)
	return n
}

// Stats returns the counters accumulated so far.
func (t *Tracker[K, V]) Stats() Stats {
	return t.stats
}

// Policy returns the duplicate policy in effect.
func (t *Tracker[K, V]) Policy() DuplicatePolicy {
	return t.policy
}
