package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/INLOpen/nexustrace/builder"
	"github.com/INLOpen/nexustrace/config"
	"github.com/INLOpen/nexustrace/core"
	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/latency"
	"github.com/INLOpen/nexustrace/server"
	"github.com/INLOpen/nexustrace/store"
	"github.com/INLOpen/nexustrace/trace"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// buildSummary is printed once a build stops.
type buildSummary struct {
	Analysis        string `json:"analysis"`
	Dir             string `json:"dir"`
	Status          string `json:"status"`
	Reopened        bool   `json:"reopened,omitempty"`
	Intervals       uint64 `json:"intervals"`
	EventsProcessed uint64 `json:"events_processed"`
	Misses          uint64 `json:"misses"`
	Malformed       uint64 `json:"malformed"`
	Duplicates      uint64 `json:"duplicates"`
	OutOfOrder      uint64 `json:"out_of_order"`
	Abandoned       int    `json:"abandoned"`
}

func summaryFrom(analysis, dir string, res builder.Result, intervals uint64) buildSummary {
	return buildSummary{
		Analysis:        analysis,
		Dir:             dir,
		Status:          res.Status.String(),
		Intervals:       intervals,
		EventsProcessed: res.EventsProcessed,
		Misses:          res.Misses,
		Malformed:       res.Malformed,
		Duplicates:      res.Duplicates,
		OutOfOrder:      res.OutOfOrder,
		Abandoned:       res.Abandoned,
	}
}

func writeSummary(w io.Writer, format string, s buildSummary) error {
	if format == "json" {
		return writeJSON(w, s)
	}
	if s.Reopened {
		_, err := fmt.Fprintf(w, "%s: reopened %d intervals from %s\n", s.Analysis, s.Intervals, s.Dir)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s, %d intervals from %d events (misses %d, malformed %d, duplicates %d, out of order %d, abandoned %d) in %s\n",
		s.Analysis, s.Status, s.Intervals, s.EventsProcessed, s.Misses, s.Malformed, s.Duplicates, s.OutOfOrder, s.Abandoned, s.Dir)
	return err
}

func newBuildCommand(root *rootOptions) *cobra.Command {
	var tracePath string
	var force bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the interval store of an analysis from a JSON-lines trace",
		Long: `Read a JSON-lines trace and build the interval store of the selected
analysis. Each line holds one event:

  {"ts": 1200, "name": "syscall_entry_read", "fields": {"tid": 7, "fd": 3}}

The latency analysis reuses complete results persisted by an earlier
build unless --force is given.

Examples:
  nexustrace build --trace kernel.jsonl
  nexustrace build --trace kernel.jsonl --analysis latency --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(tracePath)
			if err != nil {
				return fmt.Errorf("failed to open trace: %w", err)
			}
			defer f.Close()
			return root.runBuild(cmd.Context(), cmd.OutOrStdout(), trace.NewJSONLSource(f), force)
		},
	}
	cmd.Flags().StringVarP(&tracePath, "trace", "t", "", "path to the JSON-lines trace (required)")
	cmd.Flags().BoolVar(&force, "force", false, "discard persisted results and rebuild")
	_ = cmd.MarkFlagRequired("trace")
	return cmd
}

// runBuild runs the build and, when enabled, the debug server next to it.
func (o *rootOptions) runBuild(ctx context.Context, w io.Writer, src trace.Source, force bool) error {
	if timeout := config.ParseDuration(o.cfg.Builder.Timeout, 0, o.logger); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	manager := o.newHookManager()
	defer manager.Stop()

	g, gctx := errgroup.WithContext(ctx)
	var debug *server.DebugServer
	if o.cfg.Debug.Enabled {
		debug = server.NewDebugServer(o.cfg.Debug, o.logger)
		collector := server.NewSystemCollector(o.cfg.Store.DataDir, 5*time.Second, o.logger)
		collector.Start()
		defer collector.Stop()
		g.Go(debug.Start)
	}
	g.Go(func() error {
		if debug != nil {
			defer debug.Stop()
		}
		summary, err := o.build(gctx, manager, src, force)
		if err != nil && summary.Status == "" {
			return err
		}
		if werr := writeSummary(w, o.format, summary); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	})
	return g.Wait()
}

func (o *rootOptions) build(ctx context.Context, manager hooks.HookManager, src trace.Source, force bool) (buildSummary, error) {
	if o.analysis == analysisLatency {
		return o.buildLatency(ctx, manager, src, force)
	}
	return o.buildState(ctx, manager, src)
}

func (o *rootOptions) buildState(ctx context.Context, manager hooks.HookManager, src trace.Source) (buildSummary, error) {
	h, err := stateHandler(o.cfg.State)
	if err != nil {
		return buildSummary{}, fmt.Errorf("invalid state analysis: %w", err)
	}
	so, err := o.storeOptions(o.stateDir())
	if err != nil {
		return buildSummary{}, err
	}
	bo, err := o.builderOptions(manager)
	if err != nil {
		return buildSummary{}, err
	}
	st, err := store.Create[core.Fields](so, store.FieldsCodec{})
	if err != nil {
		return buildSummary{}, err
	}
	defer st.Dispose()

	req, err := builder.New[string, core.Fields, core.Fields](st, h, bo)
	if err != nil {
		return buildSummary{}, err
	}
	runErr := req.Run(ctx, src)
	res, _ := req.WaitForCompletion(context.WithoutCancel(ctx))
	return summaryFrom(analysisState, so.Dir, res, st.NbElements()), runErr
}

func (o *rootOptions) buildLatency(ctx context.Context, manager hooks.HookManager, src trace.Source, force bool) (buildSummary, error) {
	so, err := o.storeOptions("")
	if err != nil {
		return buildSummary{}, err
	}
	bo, err := o.builderOptions(manager)
	if err != nil {
		return buildSummary{}, err
	}
	a, err := latency.New(latency.Options{
		Dir:             o.cfg.Store.DataDir,
		Layout:          latencyLayout(o.cfg.Latency),
		Store:           so,
		PageSize:        bo.PageSize,
		DuplicatePolicy: bo.DuplicatePolicy,
		Hooks:           manager,
		Logger:          o.logger,
		Tracer:          o.tracer,
	})
	if err != nil {
		return buildSummary{}, err
	}
	defer a.Close()

	if force {
		if err := store.Remove(a.DataDir()); err != nil {
			return buildSummary{}, err
		}
	}

	execErr := a.Execute(ctx, src)
	res, built := a.LastBuild()
	var intervals uint64
	if st := a.Results(); st != nil {
		intervals = st.NbElements()
	}
	switch {
	case built:
		return summaryFrom(analysisLatency, a.DataDir(), res, intervals), execErr
	case execErr == nil:
		return buildSummary{
			Analysis:  analysisLatency,
			Dir:       a.DataDir(),
			Status:    builder.StatusCompleted.String(),
			Reopened:  true,
			Intervals: intervals,
		}, nil
	default:
		return buildSummary{}, execErr
	}
}
