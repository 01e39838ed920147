package hparams

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseAndMerge(t *testing.T) {
	p := Base(4).Merge(Params{{Name: "eta", Value: "0.1"}, {Name: "verbose", Value: "0"}})
	assert.Equal(t, []string{
		"objective=binary",
		"boosting=gbdt",
		"verbose=0",
		"n_jobs=4",
		"eta=0.1",
	}, p.ConfigLines())

	v, ok := p.Get("n_jobs")
	assert.True(t, ok)
	assert.Equal(t, "4", v)
	_, ok = p.Get("missing")
	assert.False(t, ok)
}

func TestMerge_DoesNotMutateReceiver(t *testing.T) {
	base := Base(1)
	_ = base.Merge(Params{{Name: "objective", Value: "lambdarank"}})
	v, _ := base.Get("objective")
	assert.Equal(t, "binary", v)
}

func TestDefaultGridPoints(t *testing.T) {
	g := DefaultGrid()
	points := g.Points()
	require.Len(t, points, 81)
	assert.Equal(t, 81, g.Size())
	assert.Equal(t, "eta: 0.01 num_trees: 10 num_leaves: 8 max_bin: 8", points[0].String())
	assert.Equal(t, "eta: 0.01 num_trees: 10 num_leaves: 8 max_bin: 32", points[1].String())
	assert.Equal(t, "eta: 0.1 num_trees: 100 num_leaves: 256 max_bin: 256", points[80].String())
}

func TestEmptyGridHasOnePoint(t *testing.T) {
	points := Grid{}.Points()
	require.Len(t, points, 1)
	assert.Empty(t, points[0])
}

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid("eta:0.01,0.1; num_trees:50")
	require.NoError(t, err)
	assert.Equal(t, Grid{
		{Name: "eta", Values: []float64{0.01, 0.1}},
		{Name: "num_trees", Values: []float64{50}},
	}, g)

	_, err = ParseGrid("eta")
	assert.Error(t, err)
	_, err = ParseGrid("eta:x")
	assert.Error(t, err)
	_, err = ParseGrid("eta:1;eta:2")
	assert.Error(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training.config")
	p := Base(2).Merge(Params{{Name: "num_leaves", Value: FormatValue(32)}})
	require.NoError(t, WriteConfig(path, p))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "objective=binary\nboosting=gbdt\nverbose=-1\nn_jobs=2\nnum_leaves=32\n", string(raw))

	back, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestReadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.config")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\nobjective binary\n"), 0o644))
	_, err := ReadConfig(path)
	assert.Error(t, err)
}
