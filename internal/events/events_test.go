package events

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var glm2Categories = []Category{
	{Label: "fixed", Paired: true},
	{Label: "cond", Paired: true},
	{Label: "all_BL"},
}

// writeRun writes the event files of one run; "" writes an empty file.
func writeRun(t *testing.T, dir string, run int, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, FileName(run, name))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func fullRun() map[string]string {
	return map[string]string{
		"fixed_corr":   "2 3 1\n40 3 1\n",
		"fixed_incorr": "",
		"cond_corr":    "10 3 1\n50 3 1\n90 3 1\n",
		"cond_incorr":  "70 3 1\n",
		"all_BL":       "20 3 1\n30 3 1\n",
	}
}

func TestLoad_IncorrectOnlyWhenPresent(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, fullRun())

	runs, err := Load(dir, glm2Categories, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, []string{"fixed_corr", "cond_corr", "cond_incorr", "all_BL"}, runs[0].Names())
	assert.True(t, runs[0].Has("cond_incorr"))
	assert.False(t, runs[0].Has("fixed_incorr"))
}

func TestLoad_SingleTrialFiles(t *testing.T) {
	dir := t.TempDir()
	files := fullRun()
	files["fixed_corr"] = "4 3 0.5\n"
	files["fixed_incorr"] = "8 3 1\n"
	writeRun(t, dir, 1, files)

	runs, err := Load(dir, glm2Categories, 1)
	require.NoError(t, err)

	fixed := runs[0].Conditions[0]
	assert.Equal(t, "fixed_corr", fixed.Name)
	assert.Equal(t, []float64{4}, fixed.Onsets)
	assert.Equal(t, []float64{3}, fixed.Durations)
	assert.Equal(t, []float64{0.5}, fixed.Amplitudes)

	incorr := runs[0].Conditions[1]
	assert.Equal(t, "fixed_incorr", incorr.Name)
	assert.Equal(t, 1, incorr.Len())
}

func TestLoad_ConditionSequencesHaveEqualLength(t *testing.T) {
	dir := t.TempDir()
	for run := 1; run <= 6; run++ {
		writeRun(t, dir, run, fullRun())
	}

	runs, err := Load(dir, glm2Categories, 6)
	require.NoError(t, err)
	require.Len(t, runs, 6)

	for _, run := range runs {
		for _, c := range run.Conditions {
			assert.Len(t, c.Durations, c.Len())
			assert.Len(t, c.Amplitudes, c.Len())
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		files := fullRun()
		delete(files, "all_BL")
		writeRun(t, dir, 1, files)

		_, err := Load(dir, glm2Categories, 1)
		assert.Error(t, err)
	})

	t.Run("wrong column count", func(t *testing.T) {
		dir := t.TempDir()
		files := fullRun()
		files["cond_incorr"] = "70 3\n"
		writeRun(t, dir, 1, files)

		_, err := Load(dir, glm2Categories, 1)
		assert.True(t, errors.Is(err, ErrColumns))
	})

	t.Run("empty correct file", func(t *testing.T) {
		dir := t.TempDir()
		files := fullRun()
		files["fixed_corr"] = ""
		writeRun(t, dir, 1, files)

		_, err := Load(dir, glm2Categories, 1)
		assert.True(t, errors.Is(err, ErrEmptyCondition))
	})
}

func TestClone_IsDeep(t *testing.T) {
	b := RunBundle{
		Conditions:     []Condition{{Name: "a", Onsets: []float64{1}, Durations: []float64{2}, Amplitudes: []float64{1}}},
		RegressorNames: []string{"x"},
		Regressors:     [][]float64{{1, 2}},
	}

	c := b.Clone()
	c.Conditions[0].Onsets[0] = 99
	c.Regressors[0][0] = 99
	c.RegressorNames = append(c.RegressorNames, "y")

	assert.Equal(t, 1.0, b.Conditions[0].Onsets[0])
	assert.Equal(t, 1.0, b.Regressors[0][0])
	assert.Len(t, b.RegressorNames, 1)
}
