package latency

import (
	"github.com/INLOpen/nexustrace/builder"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/schema"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/INLOpen/nexustrace/tracker"
)

// pending is what an entry event contributes to a system call.
type pending struct {
	Name string
	Args map[string]string
}

// handler pairs syscall entry and exit events by thread id.
type handler struct {
	layout      Layout
	entrySchema *schema.Schema
	exitSchema  *schema.Schema
}

var _ builder.Handler[int64, pending, SystemCall] = (*handler)(nil)

func newHandler(layout Layout) (*handler, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	entry, err := schema.New("syscall_entry",
		schema.Field{Name: layout.TidField, Type: core.FieldTypeInt, Required: true},
	)
	if err != nil {
		return nil, err
	}
	exit, err := schema.New("syscall_exit",
		schema.Field{Name: layout.TidField, Type: core.FieldTypeInt, Required: true},
		schema.Field{Name: layout.RetField, Type: core.FieldTypeInt, Required: true},
	)
	if err != nil {
		return nil, err
	}
	return &handler{layout: layout, entrySchema: entry, exitSchema: exit}, nil
}

func (h *handler) Classify(ev trace.Event) (builder.Action[int64, pending], error) {
	if name, ok := h.layout.entryName(ev.Name()); ok {
		fields, err := h.entrySchema.Extract(ev)
		if err != nil {
			return builder.Action[int64, pending]{}, err
		}
		tid, _ := fields[h.layout.TidField].Int64()
		return builder.Action[int64, pending]{
			Kind:    builder.Begin,
			Key:     tid,
			Partial: pending{Name: name, Args: h.args(ev)},
		}, nil
	}
	if h.layout.isExit(ev.Name()) {
		fields, err := h.exitSchema.Extract(ev)
		if err != nil {
			return builder.Action[int64, pending]{}, err
		}
		tid, _ := fields[h.layout.TidField].Int64()
		return builder.Action[int64, pending]{Kind: builder.End, Key: tid}, nil
	}
	return builder.Action[int64, pending]{Kind: builder.Ignore}, nil
}

func (h *handler) Merge(entry tracker.Entry[int64, pending], end trace.Event) (SystemCall, error) {
	fields, err := h.exitSchema.Extract(end)
	if err != nil {
		return SystemCall{}, err
	}
	ret, _ := fields[h.layout.RetField].Int64()
	return SystemCall{Name: entry.Partial.Name, Args: entry.Partial.Args, Ret: ret}, nil
}

// args renders every entry field except the thread id.
func (h *handler) args(ev trace.Event) map[string]string {
	fields := ev.Fields()
	if len(fields) <= 1 {
		return nil
	}
	args := make(map[string]string, len(fields)-1)
	for name, v := range fields {
		if name == h.layout.TidField {
			continue
		}
		args[name] = v.String()
	}
	return args
}

// KeyOf returns the payload's syscall name, for grouping in queries.
func KeyOf(sc SystemCall) string {
	return sc.Name
}
