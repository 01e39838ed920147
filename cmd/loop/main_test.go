package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsed(t *testing.T, args ...string) (*options, *cobra.Command) {
	t.Helper()
	o := &options{}
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "")
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", filepath.Join(t.TempDir(), "missing.env"), "")
	o.bind(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return o, cmd
}

func TestResolve_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("iterations: 3\ndata_dir: from-file\nneg_pos_ratio: 2\n"), 0o644))
	t.Setenv("PREMSEL_DATA_DIR", "from-env")
	t.Setenv("PREMSEL_NEG_POS_RATIO", "5")

	o, cmd := parsed(t, "--config", path, "--neg-pos-ratio", "7", "--solving-time-limit", "30s")
	cfg, err := o.resolve(cmd)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Iterations, "file over default")
	assert.Equal(t, "from-env", cfg.DataDir, "env over file")
	assert.Equal(t, 7.0, cfg.NegPosRatio, "flag over env")
	assert.Equal(t, 30*time.Second, cfg.SolvingTimeLimit)
	assert.Equal(t, 10, cfg.Workers, "flag defaults do not override")
}

func TestResolve_Grid(t *testing.T) {
	o, cmd := parsed(t, "--grid", "eta:0.1,0.2;num_trees:10")
	cfg, err := o.resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Grid.Size())

	o, cmd = parsed(t, "--grid", "eta")
	_, err = o.resolve(cmd)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "k", 1)
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["grid"])
}
