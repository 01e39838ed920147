package trainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/process"
)

// fakeGateway writes a model unless told otherwise.
type fakeGateway struct {
	writeModel bool
	err        error
	calls      [][3]string
}

func (f *fakeGateway) Train(_ context.Context, examples, model, config string) error {
	f.calls = append(f.calls, [3]string{examples, model, config})
	if f.writeModel {
		if err := os.WriteFile(model, []byte("tree\n"), 0o644); err != nil {
			return err
		}
	}
	return f.err
}

func sampleSet() *dataset.Set {
	return dataset.NewSet(
		dataset.MustParse("1 0:1 2:1"),
		dataset.MustParse("0 0:1 3:1"),
	)
}

func TestArtifactsFor(t *testing.T) {
	unit := ArtifactsFor("/d", dataset.PoolUnit, 3)
	assert.Equal(t, Artifacts{
		Examples: "/d/training_examples_3",
		Config:   "/d/training_3.config",
		Model:    "/d/model_3",
	}, unit)

	tup := ArtifactsFor("/d", dataset.PoolTuple, 3)
	assert.Equal(t, Artifacts{
		Examples: "/d/training_examples_tuples_3",
		Config:   "/d/training_tuples_3.config",
		Model:    "/d/model_tuples_3",
	}, tup)
}

func TestScriptGateway_Args(t *testing.T) {
	runner := &process.MockRunner{}
	gw := NewScriptGateway("./train.sh", runner, nil)
	require.NoError(t, gw.Train(context.Background(), "ex", "model", "cfg"))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "./train.sh", calls[0].Name)
	assert.Equal(t, []string{"ex", "model", "cfg"}, calls[0].Args)
}

func TestTrain_WritesInputsAndReturnsModel(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{writeModel: true}
	tr := New(gw, Options{Dir: dir, Base: hparams.Base(1)})

	params := hparams.Base(2).Merge(hparams.Params{{Name: "eta", Value: "0.1"}})
	model, err := tr.Train(context.Background(), sampleSet(), params, dataset.PoolUnit, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_1"), model)

	raw, err := os.ReadFile(filepath.Join(dir, "training_examples_1"))
	require.NoError(t, err)
	assert.Equal(t, "0 0:1 3:1\n1 0:1 2:1\n", string(raw))

	cfg, err := hparams.ReadConfig(filepath.Join(dir, "training_1.config"))
	require.NoError(t, err)
	assert.Equal(t, params, cfg)
}

func TestTrain_DefaultConfigCopied(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.config")
	require.NoError(t, os.WriteFile(def, []byte("objective=binary\nnum_trees=7\n"), 0o644))

	tr := New(&fakeGateway{writeModel: true}, Options{Dir: dir, DefaultConfig: def})
	_, err := tr.Train(context.Background(), sampleSet(), nil, dataset.PoolTuple, 2)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "training_tuples_2.config"))
	require.NoError(t, err)
	assert.Equal(t, "objective=binary\nnum_trees=7\n", string(raw))
}

func TestTrain_BaseConfigWhenNoDefault(t *testing.T) {
	dir := t.TempDir()
	tr := New(&fakeGateway{writeModel: true}, Options{Dir: dir, Base: hparams.Base(3)})
	_, err := tr.Train(context.Background(), sampleSet(), nil, dataset.PoolUnit, 1)
	require.NoError(t, err)

	cfg, err := hparams.ReadConfig(filepath.Join(dir, "training_1.config"))
	require.NoError(t, err)
	assert.Equal(t, hparams.Base(3), cfg)
}

func TestTrain_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	tr := New(&fakeGateway{err: errors.New("exit status 1")}, Options{Dir: dir})
	_, err := tr.Train(context.Background(), sampleSet(), nil, dataset.PoolUnit, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoArtifact))
}

func TestTrain_StaleModelRemoved(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_1"), []byte("old"), 0o644))

	tr := New(&fakeGateway{}, Options{Dir: dir})
	_, err := tr.Train(context.Background(), sampleSet(), nil, dataset.PoolUnit, 1)
	assert.True(t, errors.Is(err, ErrNoArtifact))
	_, statErr := os.Stat(filepath.Join(dir, "model_1"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestTrain_ExitErrorWithArtifactIsAccepted(t *testing.T) {
	dir := t.TempDir()
	tr := New(&fakeGateway{writeModel: true, err: errors.New("exit status 2")}, Options{Dir: dir})
	model, err := tr.Train(context.Background(), sampleSet(), nil, dataset.PoolUnit, 4)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_4"), model)
}
