package builder

import (
	"fmt"
	"maps"

	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/schema"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
)

// StateHandlerConfig declares a begin/end pairing by event name.
type StateHandlerConfig struct {
	BeginEvent string
	EndEvent   string
	// KeyField identifies the attribute; it must be declared in both schemas.
	KeyField    string
	BeginSchema *schema.Schema
	EndSchema   *schema.Schema
}

// StateHandler pairs events by name and key field and stores the merged
// begin and end fields as the interval payload. End fields win on
// conflicting names.
type StateHandler struct {
	cfg StateHandlerConfig
}

// NewStateHandler validates cfg and returns the handler.
func NewStateHandler(cfg StateHandlerConfig) (*StateHandler, error) {
	if cfg.BeginEvent == "" || cfg.EndEvent == "" {
		return nil, &core.ValidationError{Message: "begin and end event names are required", Field: "events"}
	}
	if cfg.BeginEvent == cfg.EndEvent {
		return nil, &core.ValidationError{Message: "begin and end events must differ", Field: "events", Value: cfg.BeginEvent}
	}
	if cfg.BeginSchema == nil || cfg.EndSchema == nil {
		return nil, &core.ValidationError{Message: "begin and end schemas are required", Field: "schema"}
	}
	for _, s := range []*schema.Schema{cfg.BeginSchema, cfg.EndSchema} {
		if !declaresRequired(s, cfg.KeyField) {
			return nil, &core.ValidationError{Message: fmt.Sprintf("key field must be a required field of schema %s", s.Name()), Field: "key", Value: cfg.KeyField}
		}
	}
	return &StateHandler{cfg: cfg}, nil
}

func declaresRequired(s *schema.Schema, name string) bool {
	for _, f := range s.Fields() {
		if f.Name == name {
			return f.Required
		}
	}
	return false
}

func (h *StateHandler) Classify(ev trace.Event) (Action[string, core.Fields], error) {
	var sch *schema.Schema
	var kind ActionKind
	switch ev.Name() {
	case h.cfg.BeginEvent:
		sch, kind = h.cfg.BeginSchema, Begin
	case h.cfg.EndEvent:
		sch, kind = h.cfg.EndSchema, End
	default:
		return Action[string, core.Fields]{Kind: Ignore}, nil
	}
	fields, err := sch.Extract(ev)
	if err != nil {
		return Action[string, core.Fields]{}, err
	}
	key := fields[h.cfg.KeyField].String()
	if kind == End {
		return Action[string, core.Fields]{Kind: End, Key: key}, nil
	}
	return Action[string, core.Fields]{Kind: Begin, Key: key, Partial: fields}, nil
}

func (h *StateHandler) Merge(entry tracker.Entry[string, core.Fields], end trace.Event) (core.Fields, error) {
	endFields, err := h.cfg.EndSchema.Extract(end)
	if err != nil {
		return nil, err
	}
	merged := make(core.Fields, len(entry.Partial)+len(endFields))
	maps.Copy(merged, entry.Partial)
	maps.Copy(merged, endFields)
	return merged, nil
}

// Truncate closes a displaced entry with its begin fields only.
func (h *StateHandler) Truncate(entry tracker.Entry[string, core.Fields], _ trace.Event) (core.Fields, error) {
	return maps.Clone(entry.Partial), nil
}

// KeyOf returns the key of a payload produced by this handler.
func (h *StateHandler) KeyOf(p core.Fields) string {
	return p[h.cfg.KeyField].String()
}
