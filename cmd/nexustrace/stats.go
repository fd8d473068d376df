package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/INLOpen/nexustrace/latency"
	"github.com/spf13/cobra"
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise system call durations of the latency analysis",
		Long: `Print count, minimum, maximum, mean and percentiles of the durations
of every system call in the latency results.

Examples:
  nexustrace stats
  nexustrace stats --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := root.openLatency(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			summaries, err := latency.Statistics(v.st)
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), root.format, summaries)
		},
	}
}

func writeStats(w io.Writer, format string, summaries []latency.Summary) error {
	if format == "json" {
		if summaries == nil {
			summaries = []latency.Summary{}
		}
		return writeJSON(w, summaries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOUNT\tMIN\tMAX\tMEAN\tP50\tP90\tP99")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.1f\n", s.Name, s.Count, s.Min, s.Max, s.Mean, s.P50, s.P90, s.P99)
	}
	return tw.Flush()
}
