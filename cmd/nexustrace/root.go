package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/INLOpen/nexustrace/config"
	"github.com/spf13/cobra"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	analysisState   = "state"
	analysisLatency = "latency"
)

var (
	validFormats  = []string{"text", "json"}
	validAnalyses = []string{analysisState, analysisLatency}
)

// rootOptions holds global flags and the resources set up from them.
type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	format     string
	analysis   string

	cfg     *config.Config
	logger  *slog.Logger
	tracer  oteltrace.Tracer
	closers []func()
}

func (o *rootOptions) setup() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.dataDir != "" {
		cfg.Store.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger, closer, err := createLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if closer != nil {
		o.closers = append(o.closers, func() { closer.Close() })
	}
	tp, shutdown, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		return err
	}
	o.closers = append(o.closers, shutdown)

	o.cfg = cfg
	o.logger = logger
	o.tracer = tp.Tracer("github.com/INLOpen/nexustrace")
	return nil
}

// close releases resources in reverse order of setup.
func (o *rootOptions) close() {
	for _, fn := range slices.Backward(o.closers) {
		fn()
	}
	o.closers = nil
}

// newRootCommand returns the CLI and a function releasing whatever the
// executed command set up.
func newRootCommand() (*cobra.Command, func()) {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nexustrace",
		Short: "Build and query interval histories of execution traces",
		Long: `nexustrace turns a trace of begin/end events into a persisted
interval store and answers time-range questions against it: which states
held at an instant, which intervals of one attribute overlap a range, and
how long system calls took.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			if !slices.Contains(validAnalyses, opts.analysis) {
				return fmt.Errorf("invalid analysis %q: must be one of %v", opts.analysis, validAnalyses)
			}
			return opts.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "nexustrace.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override store.data_dir")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVarP(&opts.analysis, "analysis", "a", analysisState, "analysis to use (state|latency)")

	cmd.AddCommand(newBuildCommand(opts))
	cmd.AddCommand(newAtCommand(opts))
	cmd.AddCommand(newRangeCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd, opts.close
}
