// Package hooks lets callers observe the lifecycle of history builds and
// analyses. Observers are registered explicitly on a HookManager; there is
// no process-wide signal bus.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/nexustrace/core"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Build Lifecycle Events
	EventPreBuildStart      EventType = "PreBuildStart"
	EventPostBuildStart     EventType = "PostBuildStart"
	EventPostPageCheckpoint EventType = "PostPageCheckpoint"
	EventPostStoreFlush     EventType = "PostStoreFlush"
	EventPostBuildComplete  EventType = "PostBuildComplete"
	EventPostBuildCancel    EventType = "PostBuildCancel"
	EventPostBuildFail      EventType = "PostBuildFail"

	// Analysis Lifecycle Events
	EventPreAnalysisRebuild   EventType = "PreAnalysisRebuild"
	EventPostAnalysisComplete EventType = "PostAnalysisComplete"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type. Listeners run in
	// ascending priority; equal priorities run in registration order.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	// Type returns the type of the event.
	Type() EventType
	// Payload returns the data associated with the event.
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// HookListener is implemented by observers.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook (e.g., PreBuildStart) aborts the operation.
	// Errors from "Post" hooks are logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// BuildPayload identifies a build request. It is carried by start events.
type BuildPayload struct {
	RequestID string
	StoreDir  string
}

// NewPreBuildStartEvent creates an event for before a build consumes its first event.
// A listener error aborts the build.
func NewPreBuildStartEvent(payload BuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPreBuildStart, payload: payload}
}

// NewPostBuildStartEvent creates an event for after a build has started.
func NewPostBuildStartEvent(payload BuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBuildStart, payload: payload}
}

// PageCheckpointPayload describes a page of closed intervals.
type PageCheckpointPayload struct {
	RequestID string
	Page      int
	First     int64
	Last      int64
}

// NewPostPageCheckpointEvent creates an event for after a page checkpoint is recorded.
func NewPostPageCheckpointEvent(payload PageCheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPostPageCheckpoint, payload: payload}
}

// StoreFlushPayload describes a durability checkpoint of an interval store.
type StoreFlushPayload struct {
	RequestID  string
	Checkpoint core.Checkpoint
}

// NewPostStoreFlushEvent creates an event for after a store checkpoint is written.
func NewPostStoreFlushEvent(payload StoreFlushPayload) HookEvent {
	return &BaseEvent{eventType: EventPostStoreFlush, payload: payload}
}

// BuildResultPayload summarises a finished build.
type BuildResultPayload struct {
	RequestID       string
	StoreDir        string
	EventsProcessed uint64
	Intervals       uint64
	Misses          uint64
	Malformed       uint64
	Abandoned       int
	Duration        time.Duration
	Error           error
}

// NewPostBuildCompleteEvent creates an event for after a build finished normally.
func NewPostBuildCompleteEvent(payload BuildResultPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBuildComplete, payload: payload}
}

// NewPostBuildCancelEvent creates an event for after a build was cancelled.
func NewPostBuildCancelEvent(payload BuildResultPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBuildCancel, payload: payload}
}

// NewPostBuildFailEvent creates an event for after a build failed.
func NewPostBuildFailEvent(payload BuildResultPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBuildFail, payload: payload}
}

// AnalysisRebuildPayload explains why persisted results are being rebuilt.
type AnalysisRebuildPayload struct {
	Analysis string
	Dir      string
	Reason   string
}

// NewPreAnalysisRebuildEvent creates an event for before persisted results are discarded.
func NewPreAnalysisRebuildEvent(payload AnalysisRebuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPreAnalysisRebuild, payload: payload}
}

// DurationSummary condenses the durations of one group of intervals.
type DurationSummary struct {
	Name  string
	Count uint64
	Max   int64
	P99   float64
}

// AnalysisCompletePayload is delivered to observers once analysis results are available.
type AnalysisCompletePayload struct {
	Analysis  string
	Dir       string
	Intervals uint64
	Reopened  bool
	Summaries []DurationSummary
}

// NewPostAnalysisCompleteEvent creates an event for after analysis results become available.
func NewPostAnalysisCompleteEvent(payload AnalysisCompletePayload) HookEvent {
	return &BaseEvent{eventType: EventPostAnalysisComplete, payload: payload}
}

// listenerWithPriority wraps a listener with its priority for heap management.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// The map stores slices of listeners, kept sorted by priority.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // For tracking async listeners
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		// Default to a discard logger to prevent nil panics if no logger is provided.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register inserts the listener after every listener of lower or equal
// priority.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	m.listeners[eventType] = slices.Insert(l, idx, item)
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks MUST be synchronous to allow for cancellation.
		// Post-hooks can be sync or async based on the listener's preference.
		if isPreHook || !isListenerAsync {
			// --- Synchronous Execution ---
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					// For Pre-hooks, the error is critical and cancels the operation.
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				// For synchronous Post-hooks, we just log the error and continue.
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			// --- Asynchronous Execution --- (Only for Post-hooks that return IsAsync() == true)
			m.wg.Add(1)
			// Pass item as an argument to the closure to capture its current value.
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
