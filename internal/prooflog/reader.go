// Package prooflog extracts the fields the loop needs from a prover log.
//
// A log is plain text. The reader looks for three independent markers:
//
//	unsat
//	filename = <canonical problem name>
//	Instantiations_Total = <int>
//
// and, for mining, an optional "; TUPLE SAMPLES" line that separates the
// unit-example region from the tuple-example region. Missing markers are
// reported as absent values, never as errors.
package prooflog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// #region markers
const (
	UnsatMarker          = "unsat"
	TupleSectionMarker   = "; TUPLE SAMPLES"
	InstantiationsKey    = "Instantiations_Total"
	ProblemNameKey       = "filename"
	keyValueSeparator    = " = "
	maxLineBytes         = 64 << 20
	initialScannerBuffer = 64 << 10
)

// #endregion markers

// #region status

// Status is what a single log says about its attempt.
type Status struct {
	Solved            bool
	Instantiations    int
	HasInstantiations bool
	ProblemName       string
}

// ReadStatus scans the log at path once. An error is returned only when the
// file cannot be read; its content never causes one.
func ReadStatus(path string) (Status, error) {
	f, err := os.Open(path)
	if err != nil {
		return Status{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	st, err := ParseStatus(f)
	if err != nil {
		return Status{}, fmt.Errorf("read log %s: %w", path, err)
	}
	return st, nil
}

// ParseStatus reads a log from r. Only the first occurrence of each key
// counts; a key whose value does not parse is treated as absent.
func ParseStatus(r io.Reader) (Status, error) {
	var st Status
	seenInst, seenName := false, false

	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !st.Solved && strings.TrimSpace(line) == UnsatMarker {
			st.Solved = true
			continue
		}
		if !seenInst && strings.Contains(line, InstantiationsKey) {
			seenInst = true
			if v, ok := value(line); ok {
				if n, err := strconv.Atoi(v); err == nil && n >= 0 {
					st.Instantiations = n
					st.HasInstantiations = true
				}
			}
			continue
		}
		if !seenName && strings.Contains(line, ProblemNameKey) {
			seenName = true
			if v, ok := value(line); ok && v != "" {
				st.ProblemName = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return st, err
	}
	return st, nil
}

// #endregion status

// #region regions

// Region returns the lines of one region of the log. With tuples set it is
// everything from the tuple marker on; otherwise everything before it. A log
// without the marker has no tuple region.
func Region(path string, tuples bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	lines, err := ParseRegion(f, tuples)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return lines, nil
}

// ParseRegion is Region over an arbitrary reader.
func ParseRegion(r io.Reader, tuples bool) ([]string, error) {
	var before, after []string
	inTuples := false

	sc := newScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !inTuples && line == TupleSectionMarker {
			inTuples = true
		}
		if inTuples {
			after = append(after, line)
		} else {
			before = append(before, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if tuples {
		return after, nil
	}
	return before, nil
}

// #endregion regions

// #region helpers
func value(line string) (string, bool) {
	_, v, ok := strings.Cut(line, keyValueSeparator)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialScannerBuffer), maxLineBytes)
	return sc
}

// #endregion helpers
