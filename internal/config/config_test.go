package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Runs)
	assert.Equal(t, 2.0, cfg.TR)
	assert.Equal(t, 3, cfg.Trim)
	assert.Equal(t, 197, cfg.TSize)
	assert.True(t, cfg.FilmSmoothAutocorr)
	assert.Len(t, cfg.Subjects, 20)
	assert.Equal(t, "/home/data/madlab/data/mri/wmaze/scanner_behav/WMAZE_001/model_GLM2", cfg.EVDir("WMAZE_001", "model_GLM2"))
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wmaze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
behav_dir: /data/behav
t_size: 0
workers: 2
film_smooth_autocorr: false
subjects: [WMAZE_001, WMAZE_002]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/behav", cfg.BehavDir)
	assert.Equal(t, 0, cfg.TSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"WMAZE_001", "WMAZE_002"}, cfg.Subjects)
	assert.False(t, cfg.FilmSmoothAutocorr)
	// untouched keys keep their defaults
	assert.Equal(t, 5000, cfg.Permutations)
}

func TestLoad_HCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wmaze.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
preproc_dir = "/data/preproc"
tr          = 1.5
sbatch_args = "-p short"
subjects    = ["WMAZE_010"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/preproc", cfg.PreprocDir)
	assert.Equal(t, 1.5, cfg.TR)
	assert.Equal(t, "-p short", cfg.SbatchArgs)
	assert.Equal(t, []string{"WMAZE_010"}, cfg.Subjects)
	assert.Equal(t, 6, cfg.Runs)
	assert.True(t, cfg.FilmSmoothAutocorr)
}

func TestLoad_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wmaze.yml")
	require.NoError(t, os.WriteFile(path, []byte("runs: 4\n"), 0o644))
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Runs)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "wmaze.ini")
	require.NoError(t, os.WriteFile(ini, []byte("runs=1"), 0o644))
	_, err = Load(ini)
	assert.ErrorContains(t, err, "unsupported config format")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tr: -2\nworkers: 0\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "tr must be positive")
	assert.ErrorContains(t, err, "workers must be positive")
}
