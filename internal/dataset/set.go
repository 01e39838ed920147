package dataset

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// #region set

// Set is a deduplicating collection of examples keyed by their line. The zero
// value is not usable; use NewSet.
type Set struct {
	items map[string]Example
}

// NewSet returns a set containing examples.
func NewSet(examples ...Example) *Set {
	s := &Set{items: make(map[string]Example, len(examples))}
	for _, e := range examples {
		s.Add(e)
	}
	return s
}

// Add inserts e and reports whether it was new.
func (s *Set) Add(e Example) bool {
	if _, ok := s.items[e.line]; ok {
		return false
	}
	s.items[e.line] = e
	return true
}

// Contains reports whether an example with e's line is present.
func (s *Set) Contains(e Example) bool {
	_, ok := s.items[e.line]
	return ok
}

// Len returns the number of distinct examples.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Union adds every example of other to s and returns the number added.
func (s *Set) Union(other *Set) int {
	if other == nil {
		return 0
	}
	added := 0
	for _, e := range other.items {
		if s.Add(e) {
			added++
		}
	}
	return added
}

// Sorted returns the examples ordered by line, giving set contents a
// reproducible order independent of map iteration.
func (s *Set) Sorted() []Example {
	if s == nil {
		return nil
	}
	out := make([]Example, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].line < out[j].line })
	return out
}

// Split partitions the set by label; both slices are sorted.
func (s *Set) Split() (positives, negatives []Example) {
	for _, e := range s.Sorted() {
		if e.Positive() {
			positives = append(positives, e)
		} else {
			negatives = append(negatives, e)
		}
	}
	return positives, negatives
}

// #endregion set

// #region files

// WriteFile writes examples one per line, each terminated by a newline.
func WriteFile(path string, examples []Example) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create examples file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range examples {
		if _, err := w.WriteString(e.line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("write examples file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush examples file: %w", err)
	}
	return f.Close()
}

// ReadFile loads an examples file, skipping lines that are not examples.
func ReadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open examples file: %w", err)
	}
	defer f.Close()

	s := NewSet()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 64<<20)
	for sc.Scan() {
		ex, err := ParseExample(sc.Text())
		if err != nil {
			continue
		}
		s.Add(ex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read examples file: %w", err)
	}
	return s, nil
}

// #endregion files
