package prooflog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solvedLog = `; cvc5 run
filename = problem_a.smt2
1 0:1 3:2
0 0:1 4:1
unsat
Instantiations_Total = 120
; TUPLE SAMPLES
; Q : (forall ((x Int)) (P x))
1 2:1 7:1
; FEATURE_NAMES up to 1 vars
 0:depth 1:size
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attempt.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadStatus_Solved(t *testing.T) {
	st, err := ReadStatus(writeLog(t, solvedLog))
	require.NoError(t, err)
	assert.True(t, st.Solved)
	assert.True(t, st.HasInstantiations)
	assert.Equal(t, 120, st.Instantiations)
	assert.Equal(t, "problem_a.smt2", st.ProblemName)
}

func TestParseStatus_MissingMarkers(t *testing.T) {
	st, err := ParseStatus(strings.NewReader("sat\nunknown\n"))
	require.NoError(t, err)
	assert.False(t, st.Solved)
	assert.False(t, st.HasInstantiations)
	assert.Empty(t, st.ProblemName)
}

func TestParseStatus_UnsatMustBeWholeLine(t *testing.T) {
	st, err := ParseStatus(strings.NewReader("; expected status unsat-core\n"))
	require.NoError(t, err)
	assert.False(t, st.Solved)

	st, err = ParseStatus(strings.NewReader("  unsat  \n"))
	require.NoError(t, err)
	assert.True(t, st.Solved)
}

func TestParseStatus_MalformedCount(t *testing.T) {
	st, err := ParseStatus(strings.NewReader("unsat\nInstantiations_Total = many\nInstantiations_Total = 5\n"))
	require.NoError(t, err)
	assert.True(t, st.Solved)
	assert.False(t, st.HasInstantiations, "only the first occurrence counts")
}

func TestParseStatus_Truncated(t *testing.T) {
	st, err := ParseStatus(strings.NewReader("filename = x\nInstantiations_Tot"))
	require.NoError(t, err)
	assert.False(t, st.Solved)
	assert.False(t, st.HasInstantiations)
	assert.Equal(t, "x", st.ProblemName)
}

func TestReadStatus_MissingFile(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "nope.log"))
	assert.Error(t, err)
}

func TestRegion(t *testing.T) {
	path := writeLog(t, solvedLog)

	unit, err := Region(path, false)
	require.NoError(t, err)
	assert.Contains(t, unit, "1 0:1 3:2")
	assert.NotContains(t, unit, "1 2:1 7:1")

	tuples, err := Region(path, true)
	require.NoError(t, err)
	assert.Equal(t, TupleSectionMarker, tuples[0])
	assert.Contains(t, tuples, "1 2:1 7:1")
	assert.NotContains(t, tuples, "1 0:1 3:2")
}

func TestRegion_NoMarker(t *testing.T) {
	path := writeLog(t, "1 0:1\n0 1:1\nunsat\n")

	unit, err := Region(path, false)
	require.NoError(t, err)
	assert.Len(t, unit, 3)

	tuples, err := Region(path, true)
	require.NoError(t, err)
	assert.Empty(t, tuples)
}
