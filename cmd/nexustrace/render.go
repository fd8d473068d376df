package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/INLOpen/nexustrace/core"
)

// intervalRow is the printed form of one interval.
type intervalRow struct {
	Key      string `json:"key"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Duration int64  `json:"duration"`
	Payload  string `json:"payload"`
}

func newRow[P any](key string, iv core.Interval[P], render func(P) string) intervalRow {
	return intervalRow{Key: key, Start: iv.Start, End: iv.End, Duration: iv.Duration(), Payload: render(iv.Payload)}
}

func renderFields(f core.Fields) string {
	var b strings.Builder
	for i, name := range f.Names() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", name, f[name].String())
	}
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRows(w io.Writer, format string, rows []intervalRow) error {
	if format == "json" {
		if rows == nil {
			rows = []intervalRow{}
		}
		return writeJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTART\tEND\tDURATION\tPAYLOAD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", r.Key, r.Start, r.End, r.Duration, r.Payload)
	}
	return tw.Flush()
}
