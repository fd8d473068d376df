package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

func parseTimes(args []string) ([]int64, error) {
	times := make([]int64, len(args))
	for i, a := range args {
		t, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", a, err)
		}
		times[i] = t
	}
	return times, nil
}

func newAtCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "at <timestamp>...",
		Short: "Show the state of every key at one or more instants",
		Long: `Show, for every key, the interval covering each given instant.

Examples:
  nexustrace at 1500
  nexustrace at 1500 2500 3500 --analysis latency`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			times, err := parseTimes(args)
			if err != nil {
				return err
			}
			ctx, w := cmd.Context(), cmd.OutOrStdout()
			if root.analysis == analysisLatency {
				v, err := root.openLatency(ctx)
				if err != nil {
					return err
				}
				defer v.Close()
				return runAt(ctx, w, root.format, v, times)
			}
			v, err := root.openState(ctx)
			if err != nil {
				return err
			}
			defer v.Close()
			return runAt(ctx, w, root.format, v, times)
		},
	}
}

// stateRows is the printed state at one instant.
type stateRows struct {
	Time      int64         `json:"time"`
	Intervals []intervalRow `json:"intervals"`
}

func runAt[P any](ctx context.Context, w io.Writer, format string, v *view[P], times []int64) error {
	states, err := v.facade.StatesAt(ctx, times)
	if err != nil {
		return err
	}
	out := make([]stateRows, len(times))
	for i, state := range states {
		rows := make([]intervalRow, 0, len(state))
		for _, key := range slices.Sorted(maps.Keys(state)) {
			rows = append(rows, newRow(key, state[key], v.render))
		}
		out[i] = stateRows{Time: times[i], Intervals: rows}
	}
	if format == "json" {
		return writeJSON(w, out)
	}
	for _, s := range out {
		fmt.Fprintf(w, "@%d\n", s.Time)
		if err := writeRows(w, format, s.Intervals); err != nil {
			return err
		}
	}
	return nil
}

func newRangeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "range <key> <from> <to>",
		Short: "List the intervals of one key overlapping a time range",
		Long: `List the intervals of one key that overlap [from, to], ordered by start.

Examples:
  nexustrace range 7 1000 2000
  nexustrace range read 0 5000 --analysis latency`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bounds, err := parseTimes(args[1:])
			if err != nil {
				return err
			}
			ctx, w := cmd.Context(), cmd.OutOrStdout()
			if root.analysis == analysisLatency {
				v, err := root.openLatency(ctx)
				if err != nil {
					return err
				}
				defer v.Close()
				return runRange(w, root.format, v, args[0], bounds[0], bounds[1])
			}
			v, err := root.openState(ctx)
			if err != nil {
				return err
			}
			defer v.Close()
			return runRange(w, root.format, v, args[0], bounds[0], bounds[1])
		},
	}
}

func runRange[P any](w io.Writer, format string, v *view[P], key string, t0, t1 int64) error {
	ivs, err := v.facade.RangeQuery(key, t0, t1)
	if err != nil {
		return err
	}
	rows := make([]intervalRow, 0, len(ivs))
	for _, iv := range ivs {
		rows = append(rows, newRow(key, iv, v.render))
	}
	return writeRows(w, format, rows)
}
