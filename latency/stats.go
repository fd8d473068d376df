package latency

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/INLOpen/nexustrace/hooks"
	"github.com/INLOpen/nexustrace/store"
	"github.com/caio/go-tdigest/v4"
)

// Summary condenses the durations of every call to one syscall.
type Summary struct {
	Name  string
	Count uint64
	Min   int64
	Max   int64
	Mean  float64
	P50   float64
	P90   float64
	P99   float64
}

type accumulator struct {
	count uint64
	min   int64
	max   int64
	sum   float64
	td    *tdigest.TDigest
}

func (a *accumulator) add(d int64) error {
	if a.count == 0 || d < a.min {
		a.min = d
	}
	if a.count == 0 || d > a.max {
		a.max = d
	}
	a.count++
	a.sum += float64(d)
	return a.td.AddWeighted(float64(d), 1)
}

// Statistics summarises durations per syscall name, ordered by name.
func Statistics(st *store.Store[SystemCall]) ([]Summary, error) {
	accs := make(map[string]*accumulator)
	for iv, err := range st.All() {
		if err != nil {
			return nil, err
		}
		acc, ok := accs[iv.Payload.Name]
		if !ok {
			td, err := tdigest.New()
			if err != nil {
				return nil, fmt.Errorf("tdigest.New failed: %w", err)
			}
			acc = &accumulator{td: td}
			accs[iv.Payload.Name] = acc
		}
		if err := acc.add(iv.Duration()); err != nil {
			return nil, fmt.Errorf("failed to record duration of %s: %w", iv.Payload.Name, err)
		}
	}

	out := make([]Summary, 0, len(accs))
	for name, acc := range accs {
		out = append(out, Summary{
			Name:  name,
			Count: acc.count,
			Min:   acc.min,
			Max:   acc.max,
			Mean:  acc.sum / float64(acc.count),
			P50:   acc.td.Quantile(0.50),
			P90:   acc.td.Quantile(0.90),
			P99:   acc.td.Quantile(0.99),
		})
	}
	slices.SortFunc(out, func(a, b Summary) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func hookSummaries(in []Summary) []hooks.DurationSummary {
	out := make([]hooks.DurationSummary, len(in))
	for i, s := range in {
		out[i] = hooks.DurationSummary{Name: s.Name, Count: s.Count, Max: s.Max, P99: s.P99}
	}
	return out
}
