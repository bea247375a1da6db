package glm

import (
	"github.com/KyungWonPark/wmaze/internal/events"
)

// Stat is the statistic a contrast is tested with
type Stat string

// T is a t-test contrast, the only kind the wmaze designs use
const T Stat = "T"

// AllVsBase is the name of the omnibus contrast leading every run
const AllVsBase = "AllVsBase"

// Contrast is a linear combination of condition effects
type Contrast struct {
	Name       string
	Stat       Stat
	Conditions []string
	Weights    []float64
}

// BuildContrasts returns the contrasts of each run. Contrasts depend on which
// conditions the run models, so runs of one subject may differ.
func BuildContrasts(runs []events.RunBundle, model Model) [][]Contrast {
	contrasts := make([][]Contrast, 0, len(runs))

	for _, run := range runs {
		names := run.Names()
		n := len(names)

		weights := make([]float64, n)
		for i := range weights {
			weights[i] = 1 / float64(n)
		}

		cons := []Contrast{{Name: AllVsBase, Stat: T, Conditions: names, Weights: weights}}
		for _, name := range names {
			cons = append(cons, Contrast{Name: name, Stat: T, Conditions: []string{name}, Weights: []float64{1}})
		}

		for _, rule := range model.Rules {
			if !hasAll(run, rule.Conditions) {
				continue
			}
			for _, term := range rule.Terms {
				cons = append(cons, Contrast{
					Name:       term.Name,
					Stat:       T,
					Conditions: append([]string(nil), rule.Conditions...),
					Weights:    append([]float64(nil), term.Weights...),
				})
			}
		}

		contrasts = append(contrasts, cons)
	}

	return contrasts
}

func hasAll(run events.RunBundle, conditions []string) bool {
	for _, c := range conditions {
		if !run.Has(c) {
			return false
		}
	}
	return true
}
