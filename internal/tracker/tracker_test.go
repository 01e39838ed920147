package tracker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
)

func solved(problem, log, name string, inst int) batch.Attempt {
	return batch.Attempt{Problem: problem, LogPath: log, Solved: true,
		ProblemName: name, Instantiations: inst, HasInstantiations: inst >= 0}
}

func TestObserve_ScenarioAverage(t *testing.T) {
	tr := New()
	st := tr.Observe(SplitTrain, 1, []batch.Attempt{
		solved("A", "a.log", "A", 120),
		{Problem: "B", LogPath: "b.log"},
		solved("C", "c.log", "C", 80),
		{Problem: "D", LogPath: "d.log", Err: errors.New("exit status 1")},
	})
	assert.Equal(t, 4, st.Attempted)
	assert.Equal(t, 2, st.SolvedNow)
	assert.Equal(t, 2, st.NewlySolved)
	assert.Equal(t, 2, st.SolvedAllTime)
	assert.Equal(t, 1, st.Failed)
	assert.True(t, st.HasAvgInst)
	assert.InDelta(t, 100.0, st.AvgInst, 1e-9)
}

func TestObserve_AverageUndefinedWithoutCounts(t *testing.T) {
	st := New().Observe(SplitTest, 1, []batch.Attempt{solved("A", "a.log", "A", -1)})
	assert.Equal(t, 1, st.SolvedNow)
	assert.False(t, st.HasAvgInst)
}

func TestObserve_AllTimeIsMonotone(t *testing.T) {
	tr := New()
	iterations := [][]batch.Attempt{
		{solved("A", "a1", "A", 1), solved("B", "b1", "B", 1)},
		{solved("A", "a2", "A", 1)},
		{},
		{solved("C", "c4", "C", 1), solved("B", "b4", "B", 1)},
	}
	prev := 0
	for i, attempts := range iterations {
		st := tr.Observe(SplitTrain, i+1, attempts)
		assert.GreaterOrEqual(t, st.SolvedAllTime, prev)
		prev = st.SolvedAllTime
	}
	assert.Equal(t, 3, tr.SolvedAllTime(SplitTrain))
	assert.Zero(t, tr.SolvedAllTime(SplitTest))
}

func TestObserve_BaselineIsFirstIteration(t *testing.T) {
	tr := New()
	tr.Observe(SplitTrain, 1, []batch.Attempt{solved("A", "a1", "A", 5), {Problem: "B"}})
	tr.Observe(SplitTrain, 2, []batch.Attempt{solved("B", "b2", "B", 5)})

	base := tr.Baseline(SplitTrain)
	require.Len(t, base, 1)
	assert.Equal(t, "A", base[0].Problem)
	assert.Nil(t, tr.Baseline(SplitTest))
}

func TestCompare(t *testing.T) {
	baseline := []batch.Attempt{
		solved("p1", "l1", "one", 100),
		solved("p2", "l2", "two", 0),
		solved("p3", "l3", "", 40),
		solved("p4", "l4", "four", 30),
	}
	current := []batch.Attempt{
		solved("p4", "l5", "four", 10),
		solved("p1", "l6", "one", 60),
		solved("p2", "l7", "two", 9),
	}
	pairs, ok := Compare(baseline, current)
	require.True(t, ok)
	assert.Equal(t, []Pair{
		{Name: "four", Baseline: 30, Current: 10},
		{Name: "one", Baseline: 100, Current: 60},
	}, pairs)

	_, ok = Compare(nil, current)
	assert.False(t, ok)
	_, ok = Compare(baseline, nil)
	assert.False(t, ok)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insts_train_2.csv")
	require.NoError(t, WriteCSV(path, []Pair{{Name: "a", Baseline: 3, Current: 1}, {Name: "b", Baseline: 7, Current: 7}}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3,1\n7,7\n", string(raw))
}
