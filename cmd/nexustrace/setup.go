package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/INLOpen/nexustrace/builder"
	"github.com/INLOpen/nexustrace/config"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/hooks/listeners"
	"github.com/INLOpen/nexustrace/latency"
	"github.com/INLOpen/nexustrace/query"
	"github.com/INLOpen/nexustrace/schema"
	"github.com/INLOpen/nexustrace/store"
	"github.com/INLOpen/nexustrace/tracker"
)

// stateDirName is the store directory of the generic state analysis.
const stateDirName = "state-history"

func (o *rootOptions) stateDir() string {
	return filepath.Join(o.cfg.Store.DataDir, stateDirName)
}

func (o *rootOptions) latencyDir() string {
	return filepath.Join(o.cfg.Store.DataDir, latency.DataDirName)
}

func (o *rootOptions) storeOptions(dir string) (store.Options, error) {
	compression, err := core.ParseCompressionType(o.cfg.Store.Compression)
	if err != nil {
		return store.Options{}, fmt.Errorf("invalid store.compression: %w", err)
	}
	return store.Options{
		Dir:         dir,
		BatchSize:   o.cfg.Store.BatchSize,
		Compression: compression,
		CacheSize:   o.cfg.Store.CacheSize,
		Logger:      o.logger,
		Tracer:      o.tracer,
	}, nil
}

func (o *rootOptions) builderOptions(manager hooks.HookManager) (builder.Options, error) {
	policy, err := tracker.ParseDuplicatePolicy(o.cfg.Builder.DuplicatePolicy)
	if err != nil {
		return builder.Options{}, fmt.Errorf("invalid builder.duplicate_policy: %w", err)
	}
	return builder.Options{
		PageSize:        o.cfg.Builder.PageSize,
		DuplicatePolicy: policy,
		Hooks:           manager,
		Logger:          o.logger,
		Tracer:          o.tracer,
	}, nil
}

func buildSchema(name string, fields []config.FieldConfig) (*schema.Schema, error) {
	out := make([]schema.Field, 0, len(fields))
	for _, f := range fields {
		ft, err := schema.ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("schema %s field %s: %w", name, f.Name, err)
		}
		out = append(out, schema.Field{Name: f.Name, Type: ft, Required: f.Required})
	}
	return schema.New(name, out...)
}

// stateHandler builds the generic begin/end handler described by cfg.
func stateHandler(cfg config.StateConfig) (*builder.StateHandler, error) {
	begin, err := buildSchema(cfg.BeginEvent, cfg.BeginFields)
	if err != nil {
		return nil, err
	}
	end, err := buildSchema(cfg.EndEvent, cfg.EndFields)
	if err != nil {
		return nil, err
	}
	return builder.NewStateHandler(builder.StateHandlerConfig{
		BeginEvent:  cfg.BeginEvent,
		EndEvent:    cfg.EndEvent,
		KeyField:    cfg.KeyField,
		BeginSchema: begin,
		EndSchema:   end,
	})
}

func latencyLayout(cfg config.LatencyConfig) latency.Layout {
	return latency.Layout{
		SyscallEntryPrefix:       cfg.SyscallEntryPrefix,
		CompatSyscallEntryPrefix: cfg.CompatSyscallEntryPrefix,
		SyscallExitPrefix:        cfg.SyscallExitPrefix,
		TidField:                 cfg.TidField,
		RetField:                 cfg.RetField,
	}
}

func latencyRules(cfg config.LatencyConfig) []listeners.LatencyRule {
	rules := make([]listeners.LatencyRule, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		rules = append(rules, listeners.LatencyRule{Name: a.Name, MaxP99: a.MaxP99, MaxDuration: a.MaxDuration})
	}
	return rules
}

// newHookManager wires the listeners every build reports to.
func (o *rootOptions) newHookManager() hooks.HookManager {
	manager := hooks.NewHookManager(o.logger)
	listeners.NewProgressLoggerListener(o.logger).Register(manager)
	listeners.NewBuildStatsListener(o.logger).Register(manager)
	manager.Register(hooks.EventPostAnalysisComplete, listeners.NewLatencyAlerterListener(o.logger, latencyRules(o.cfg.Latency)))
	return manager
}

// view is an opened result store with a query facade over it.
type view[P any] struct {
	st     *store.Store[P]
	facade *query.Facade[string, P]
	render func(P) string
}

func (v *view[P]) Close() error {
	return v.st.Dispose()
}

func (o *rootOptions) openState(ctx context.Context) (*view[core.Fields], error) {
	h, err := stateHandler(o.cfg.State)
	if err != nil {
		return nil, err
	}
	so, err := o.storeOptions(o.stateDir())
	if err != nil {
		return nil, err
	}
	st, err := store.Open[core.Fields](ctx, so, store.FieldsCodec{})
	if err != nil {
		return nil, fmt.Errorf("failed to open state history in %s: %w", so.Dir, err)
	}
	return &view[core.Fields]{
		st:     st,
		facade: query.New(st, h.KeyOf, query.WithLogger(o.logger)),
		render: renderFields,
	}, nil
}

func (o *rootOptions) openLatency(ctx context.Context) (*view[latency.SystemCall], error) {
	so, err := o.storeOptions(o.latencyDir())
	if err != nil {
		return nil, err
	}
	st, err := store.Open[latency.SystemCall](ctx, so, latency.Codec{})
	if err != nil {
		return nil, fmt.Errorf("failed to open latency results in %s: %w", so.Dir, err)
	}
	return &view[latency.SystemCall]{
		st:     st,
		facade: query.New(st, latency.KeyOf, query.WithLogger(o.logger)),
		render: latency.SystemCall.String,
	}, nil
}
