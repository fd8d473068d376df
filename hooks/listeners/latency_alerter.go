package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexustrace/hooks"
)

// LatencyRule sets the highest acceptable durations for one group of intervals.
type LatencyRule struct {
	Name string
	// MaxP99 and MaxDuration are in trace time units. Zero disables the check.
	MaxP99      float64
	MaxDuration int64
}

// LatencyAlerterListener warns when an analysis reports durations above
// configured limits.
type LatencyAlerterListener struct {
	logger *slog.Logger
	rules  map[string]LatencyRule
}

// NewLatencyAlerterListener creates a new listener. Rules are matched by
// summary name; names without a rule are ignored.
func NewLatencyAlerterListener(logger *slog.Logger, rules []LatencyRule) *LatencyAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ruleMap := make(map[string]LatencyRule, len(rules))
	for _, rule := range rules {
		ruleMap[rule.Name] = rule
	}
	return &LatencyAlerterListener{
		logger: logger.With("component", "LatencyAlerterListener"),
		rules:  ruleMap,
	}
}

// OnEvent handles PostAnalysisComplete events.
func (l *LatencyAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostAnalysisComplete {
		return nil
	}
	payload, ok := event.Payload().(hooks.AnalysisCompletePayload)
	if !ok {
		l.logger.Error("Received PostAnalysisComplete event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	for _, summary := range payload.Summaries {
		rule, ok := l.rules[summary.Name]
		if !ok {
			continue
		}
		if rule.MaxP99 > 0 && summary.P99 > rule.MaxP99 {
			l.logger.Warn("Latency p99 above limit",
				"analysis", payload.Analysis,
				"name", summary.Name,
				"p99", summary.P99,
				"limit", rule.MaxP99,
				"count", summary.Count,
			)
		}
		if rule.MaxDuration > 0 && summary.Max > rule.MaxDuration {
			l.logger.Warn("Latency maximum above limit",
				"analysis", payload.Analysis,
				"name", summary.Name,
				"max", summary.Max,
				"limit", rule.MaxDuration,
			)
		}
	}
	return nil
}

// Priority defines the execution order.
func (l *LatencyAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *LatencyAlerterListener) IsAsync() bool { return true }
