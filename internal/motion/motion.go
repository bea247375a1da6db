// Package motion appends motion and noise regressors to the run designs.
package motion

import (
	"errors"
	"fmt"

	"github.com/KyungWonPark/wmaze/internal/events"
	"github.com/KyungWonPark/wmaze/internal/io"
)

// ErrRunCount is returned when there is not exactly one noise file per run
var ErrRunCount = errors.New("number of noise files does not match number of runs")

// Names of the first 17 channels of a filter_regressor file
var Names = []string{
	"Pitch (rad)", "Roll (rad)", "Yaw (rad)", "Tx (mm)", "Ty (mm)", "Tz (mm)",
	"Pitch_1d", "Roll_1d", "Yaw_1d", "Tx_1d", "Ty_1d", "Tz_1d",
	"Norm (mm)", "LG_1stOrd", "LG_2ndOrd", "LG_3rdOrd", "LG_4thOrd",
}

// ChannelNames names n regressor channels. Channels past the canonical names
// are outliers, named out_1, out_2, ...
func ChannelNames(n int) []string {
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if i < len(Names) {
			names = append(names, Names[i])
		} else {
			names = append(names, fmt.Sprintf("out_%d", i-len(Names)+1))
		}
	}
	return names
}

// Merge returns copies of runs with the columns of the matching noise file
// appended as regressors. The final trim rows of every file are dropped so the
// regressors line up with the trimmed functional runs.
func Merge(runs []events.RunBundle, files []string, trim int) ([]events.RunBundle, error) {
	if len(files) != len(runs) {
		return nil, fmt.Errorf("%w: %d files for %d runs", ErrRunCount, len(files), len(runs))
	}

	merged := make([]events.RunBundle, len(runs))
	for i, path := range files {
		table, err := io.ReadTable(path)
		if err != nil {
			return nil, err
		}

		points := io.Rows(table) - trim
		if points < 1 {
			return nil, fmt.Errorf("[Merge] %s has %d rows, cannot drop %d", path, io.Rows(table), trim)
		}

		run := runs[i].Clone()
		channels := io.Cols(table)
		for j, name := range ChannelNames(channels) {
			run.RegressorNames = append(run.RegressorNames, name)
			run.Regressors = append(run.Regressors, io.Column(table, j)[:points])
		}
		merged[i] = run
	}

	return merged, nil
}
