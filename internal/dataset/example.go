// Package dataset holds the labeled examples mined from proof logs and the
// deduplicating sets they are accumulated in.
package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// #region pool

// Pool names one of the two independently mined and trained example pools.
type Pool string

const (
	PoolUnit  Pool = "unit"
	PoolTuple Pool = "tuple"
)

// Pools lists both pools in the order the loop processes them.
var Pools = []Pool{PoolUnit, PoolTuple}

// Tuples reports whether the pool is mined from the tuple region of a log.
func (p Pool) Tuples() bool { return p == PoolTuple }

// #endregion pool

// #region example

var exampleLine = regexp.MustCompile(`^[01] [0-9]+:.+`)

// ErrNotExample is returned for lines outside the labeled-example grammar.
var ErrNotExample = errors.New("not a labeled example line")

// Feature is one index:value entry of a sparse feature vector.
type Feature struct {
	Index int
	Value float64
}

// Example is a labeled sparse feature vector. Two examples are the same
// example iff their lines are byte-identical.
type Example struct {
	line     string
	Label    int
	Features []Feature
}

// IsExampleLine reports whether line matches `^[01] <digits>:...`.
func IsExampleLine(line string) bool {
	return exampleLine.MatchString(line)
}

// ParseExample parses a labeled example line. Feature entries that are not
// index:value pairs make the whole line invalid.
func ParseExample(line string) (Example, error) {
	if !IsExampleLine(line) {
		return Example{}, ErrNotExample
	}
	fields := strings.Fields(line)
	ex := Example{line: line, Label: int(fields[0][0] - '0')}
	ex.Features = make([]Feature, 0, len(fields)-1)
	for _, f := range fields[1:] {
		idx, val, ok := strings.Cut(f, ":")
		if !ok {
			return Example{}, fmt.Errorf("feature %q: %w", f, ErrNotExample)
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return Example{}, fmt.Errorf("feature index %q: %w", idx, ErrNotExample)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Example{}, fmt.Errorf("feature value %q: %w", val, ErrNotExample)
		}
		ex.Features = append(ex.Features, Feature{Index: i, Value: v})
	}
	return ex, nil
}

// MustParse is ParseExample for literals; it panics on invalid input.
func MustParse(line string) Example {
	ex, err := ParseExample(line)
	if err != nil {
		panic(err)
	}
	return ex
}

// Line returns the example's canonical text.
func (e Example) Line() string { return e.line }

// Positive reports whether the example is labeled 1.
func (e Example) Positive() bool { return e.Label == 1 }

// MaxIndex returns the largest feature index, or -1 for an empty vector.
func (e Example) MaxIndex() int {
	m := -1
	for _, f := range e.Features {
		if f.Index > m {
			m = f.Index
		}
	}
	return m
}

// Dense expands the sparse vector to n columns. Indices at or beyond n are
// dropped; missing indices are zero.
func (e Example) Dense(n int) []float64 {
	out := make([]float64, n)
	for _, f := range e.Features {
		if f.Index < n {
			out[f.Index] = f.Value
		}
	}
	return out
}

// #endregion example
