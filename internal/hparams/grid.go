package hparams

import (
	"fmt"
	"strconv"
	"strings"
)

// #region grid

// Axis is one searched hyperparameter and its candidate values.
type Axis struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

// Grid is an ordered list of axes; its points are their cross product.
type Grid []Axis

// DefaultGrid is the 81-point learning-rate × trees × leaves × bins grid.
func DefaultGrid() Grid {
	return Grid{
		{Name: "eta", Values: []float64{0.01, 0.05, 0.1}},
		{Name: "num_trees", Values: []float64{10, 50, 100}},
		{Name: "num_leaves", Values: []float64{8, 32, 256}},
		{Name: "max_bin", Values: []float64{8, 32, 256}},
	}
}

// Size returns the number of grid points.
func (g Grid) Size() int {
	n := 1
	for _, a := range g {
		n *= len(a.Values)
	}
	return n
}

// Points enumerates the cross product with the last axis varying fastest.
// A grid without axes has exactly one, empty, point.
func (g Grid) Points() []Params {
	points := []Params{{}}
	for _, axis := range g {
		next := make([]Params, 0, len(points)*len(axis.Values))
		for _, p := range points {
			for _, v := range axis.Values {
				q := make(Params, len(p), len(p)+1)
				copy(q, p)
				next = append(next, append(q, Param{Name: axis.Name, Value: FormatValue(v)}))
			}
		}
		points = next
	}
	return points
}

// Validate rejects axes without a name or without values, and duplicates.
func (g Grid) Validate() error {
	seen := make(map[string]bool, len(g))
	for i, a := range g {
		if a.Name == "" {
			return fmt.Errorf("grid axis %d: empty name", i)
		}
		if len(a.Values) == 0 {
			return fmt.Errorf("grid axis %q: no values", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("grid axis %q: duplicated", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// ParseGrid reads the compact form "name:v1,v2;name2:v3".
func ParseGrid(s string) (Grid, error) {
	var g Grid
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, vals, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("grid axis %q: missing ':'", part)
		}
		axis := Axis{Name: strings.TrimSpace(name)}
		for _, v := range strings.Split(vals, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("grid axis %q value %q: %w", axis.Name, v, err)
			}
			axis.Values = append(axis.Values, f)
		}
		g = append(g, axis)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// FormatValue prints integers without a fractional part and other values
// in their shortest form, e.g. 10 -> "10", 0.05 -> "0.05".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// #endregion grid
