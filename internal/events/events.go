// Package events loads the per-run behavioral event files of the wmaze task
// into condition records for the first-level design.
package events

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/KyungWonPark/wmaze/internal/io"
	"github.com/gonum/matrix/mat64"
)

var (
	// ErrColumns is returned when an event file is not onset/duration/amplitude.
	ErrColumns = errors.New("event file must have 3 columns")
	// ErrEmptyCondition is returned when a condition that is always modeled has no trials.
	ErrEmptyCondition = errors.New("condition has no trials")
)

// Category is one trial type of a model. A paired category is split into
// correct and incorrect trials, read from two files.
type Category struct {
	Label  string
	Paired bool
}

// Condition holds timing of one condition within a run
type Condition struct {
	Name       string
	Onsets     []float64
	Durations  []float64
	Amplitudes []float64
}

// Len returns the number of trials
func (c Condition) Len() int {
	return len(c.Onsets)
}

// RunBundle is everything the design of a single run needs
type RunBundle struct {
	Conditions     []Condition
	RegressorNames []string
	Regressors     [][]float64
}

// Names returns the condition names in order
func (b RunBundle) Names() []string {
	names := make([]string, len(b.Conditions))
	for i, c := range b.Conditions {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the run models the named condition
func (b RunBundle) Has(name string) bool {
	for _, c := range b.Conditions {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that regressors can be appended without
// touching the original bundle.
func (b RunBundle) Clone() RunBundle {
	out := RunBundle{
		Conditions:     make([]Condition, len(b.Conditions)),
		RegressorNames: append([]string(nil), b.RegressorNames...),
		Regressors:     make([][]float64, len(b.Regressors)),
	}
	for i, c := range b.Conditions {
		out.Conditions[i] = Condition{
			Name:       c.Name,
			Onsets:     append([]float64(nil), c.Onsets...),
			Durations:  append([]float64(nil), c.Durations...),
			Amplitudes: append([]float64(nil), c.Amplitudes...),
		}
	}
	for i, r := range b.Regressors {
		out.Regressors[i] = append([]float64(nil), r...)
	}
	return out
}

// FromTable builds a condition from an onset/duration/amplitude table
func FromTable(name string, table *mat64.Dense) (Condition, error) {
	if io.Rows(table) == 0 {
		return Condition{}, fmt.Errorf("%s: %w", name, ErrEmptyCondition)
	}
	if io.Cols(table) != 3 {
		return Condition{}, fmt.Errorf("%s: got %d columns: %w", name, io.Cols(table), ErrColumns)
	}

	return Condition{
		Name:       name,
		Onsets:     io.Column(table, 0),
		Durations:  io.Column(table, 1),
		Amplitudes: io.Column(table, 2),
	}, nil
}

// FileName returns the event file of a condition in a run, e.g. run3_fixed_corr.txt
func FileName(run int, condition string) string {
	return fmt.Sprintf("run%d_%s.txt", run, condition)
}

// Load reads the event files of runs 1..runs from dir.
func Load(dir string, categories []Category, runs int) ([]RunBundle, error) {
	output := make([]RunBundle, 0, runs)

	for run := 1; run <= runs; run++ {
		tables := make(map[string]*mat64.Dense)
		for _, cat := range categories {
			for _, name := range fileConditions(cat) {
				table, err := io.ReadTable(filepath.Join(dir, FileName(run, name)))
				if err != nil {
					return nil, fmt.Errorf("run %d: %w", run, err)
				}
				tables[name] = table
			}
		}

		bundle, err := assemble(categories, tables)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		output = append(output, bundle)
	}

	return output, nil
}

func fileConditions(cat Category) []string {
	if cat.Paired {
		return []string{cat.Label + "_corr", cat.Label + "_incorr"}
	}
	return []string{cat.Label}
}

func assemble(categories []Category, tables map[string]*mat64.Dense) (RunBundle, error) {
	var bundle RunBundle

	for _, cat := range categories {
		if !cat.Paired {
			c, err := FromTable(cat.Label, tables[cat.Label])
			if err != nil {
				return RunBundle{}, err
			}
			bundle.Conditions = append(bundle.Conditions, c)
			continue
		}

		corrName, incorrName := cat.Label+"_corr", cat.Label+"_incorr"
		corr, err := FromTable(corrName, tables[corrName])
		if err != nil {
			return RunBundle{}, err
		}
		bundle.Conditions = append(bundle.Conditions, corr)

		// incorrect trials are modeled only when at least one error was made
		if io.Rows(tables[incorrName]) > 0 {
			incorr, err := FromTable(incorrName, tables[incorrName])
			if err != nil {
				return RunBundle{}, err
			}
			bundle.Conditions = append(bundle.Conditions, incorr)
		}
	}

	return bundle, nil
}
