package motion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KyungWonPark/wmaze/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noiseFile writes rows x cols values where cell (r, c) is r*100 + c.
func noiseFile(t *testing.T, dir string, run, rows, cols int) string {
	t.Helper()
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		vals := make([]string, cols)
		for c := 0; c < cols; c++ {
			vals[c] = fmt.Sprint(r*100 + c)
		}
		sb.WriteString(strings.Join(vals, " ") + "\n")
	}
	path := filepath.Join(dir, fmt.Sprintf("filter_regressor%02d.txt", run))
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func runs(n int) []events.RunBundle {
	out := make([]events.RunBundle, n)
	for i := range out {
		out[i] = events.RunBundle{Conditions: []events.Condition{{Name: "all_BL", Onsets: []float64{0}, Durations: []float64{1}, Amplitudes: []float64{1}}}}
	}
	return out
}

func TestMerge_DropsTrailingRows(t *testing.T) {
	dir := t.TempDir()
	files := []string{noiseFile(t, dir, 1, 10, 17), noiseFile(t, dir, 2, 8, 17)}

	merged, err := Merge(runs(2), files, 3)
	require.NoError(t, err)

	assert.Equal(t, Names, merged[0].RegressorNames)
	for _, reg := range merged[0].Regressors {
		assert.Len(t, reg, 7)
	}
	for _, reg := range merged[1].Regressors {
		assert.Len(t, reg, 5)
	}
	// last kept row of run 1 is row 6
	assert.Equal(t, 602.0, merged[0].Regressors[2][6])
}

func TestMerge_ExtraChannelsGetOutlierNames(t *testing.T) {
	dir := t.TempDir()
	files := []string{noiseFile(t, dir, 1, 6, 19)}

	merged, err := Merge(runs(1), files, 3)
	require.NoError(t, err)

	names := merged[0].RegressorNames
	require.Len(t, names, 19)
	assert.Equal(t, "LG_4thOrd", names[16])
	assert.Equal(t, "out_1", names[17])
	assert.Equal(t, "out_2", names[18])
	assert.Equal(t, []float64{18, 118, 218}, merged[0].Regressors[18])
}

func TestMerge_DoesNotTouchInput(t *testing.T) {
	dir := t.TempDir()
	in := runs(1)

	_, err := Merge(in, []string{noiseFile(t, dir, 1, 5, 17)}, 3)
	require.NoError(t, err)
	assert.Empty(t, in[0].RegressorNames)
	assert.Empty(t, in[0].Regressors)
}

func TestMerge_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Merge(runs(2), []string{noiseFile(t, dir, 1, 5, 17)}, 3)
	assert.True(t, errors.Is(err, ErrRunCount))

	_, err = Merge(runs(1), []string{noiseFile(t, dir, 1, 3, 17)}, 3)
	assert.Error(t, err)

	_, err = Merge(runs(1), []string{filepath.Join(dir, "missing.txt")}, 3)
	assert.Error(t, err)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, []string{"Pitch (rad)", "Roll (rad)"}, ChannelNames(2))
	assert.Equal(t, "out_3", ChannelNames(20)[19])
}
