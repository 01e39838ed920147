package tracker

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
)

// Pair is one problem's instantiation count at baseline and now.
type Pair struct {
	Name     string
	Baseline int
	Current  int
}

// Compare pairs problems, keyed by the name their logs report, that were
// solved with a non-zero instantiation count both at baseline and now.
// ok is false when either side is empty and there is nothing to compare.
func Compare(baseline, current []batch.Attempt) (pairs []Pair, ok bool) {
	if len(baseline) == 0 || len(current) == 0 {
		return nil, false
	}
	before := counts(baseline)
	after := counts(current)
	for name, b := range before {
		if c, found := after[name]; found {
			pairs = append(pairs, Pair{Name: name, Baseline: b, Current: c})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, true
}

func counts(attempts []batch.Attempt) map[string]int {
	m := make(map[string]int, len(attempts))
	for _, a := range attempts {
		if a.ProblemName == "" || !a.HasInstantiations || a.Instantiations == 0 {
			continue
		}
		m[a.ProblemName] = a.Instantiations
	}
	return m
}

// WriteCSV writes pairs as headerless "baseline,current" rows.
func WriteCSV(path string, pairs []Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create comparison csv: %w", err)
	}
	w := csv.NewWriter(f)
	for _, p := range pairs {
		if err := w.Write([]string{strconv.Itoa(p.Baseline), strconv.Itoa(p.Current)}); err != nil {
			f.Close()
			return fmt.Errorf("write comparison csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write comparison csv: %w", err)
	}
	return f.Close()
}
