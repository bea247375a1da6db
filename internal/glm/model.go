// Package glm describes the wmaze general linear models and derives their
// contrasts and output names.
package glm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KyungWonPark/wmaze/internal/events"
)

// ErrUnknownModel is returned by Lookup for a model that is not registered
var ErrUnknownModel = errors.New("unknown model")

// Term is one contrast a rule contributes
type Term struct {
	Name    string
	Weights []float64
}

// Rule adds its terms to a run only if every condition it names is modeled in
// that run. All terms share the rule's condition list.
type Rule struct {
	Conditions []string
	Terms      []Term
}

// Model is one first-level design of the wmaze task
type Model struct {
	Name string
	// EVDir is the per-subject directory of event files under the behavioral root.
	EVDir      string
	Categories []events.Category
	Rules      []Rule
	// GroupContrasts are the first-level contrasts tested at the group level.
	GroupContrasts []string
	MergeVarcopes  bool
	// NoiseGlob matches the noise regressor files in a subject's noise directory.
	NoiseGlob string
}

func pair(a, b, aMinusB, bMinusA, mean string) Rule {
	terms := []Term{
		{Name: aMinusB, Weights: []float64{1, -1}},
		{Name: bMinusA, Weights: []float64{-1, 1}},
	}
	if mean != "" {
		terms = append(terms, Term{Name: mean, Weights: []float64{0.5, 0.5}})
	}
	return Rule{Conditions: []string{a, b}, Terms: terms}
}

var allBeforeB = Model{
	Categories: []events.Category{
		{Label: "all_before_B", Paired: true},
		{Label: "all_remaining"},
	},
	Rules: []Rule{
		pair("all_before_B_corr", "all_before_B_incorr", "all_corr_minus_all_incorr", "all_incorr_minus_all_corr", ""),
	},
	GroupContrasts: []string{
		"all_before_B_corr", "all_before_B_incorr",
		"all_corr_minus_all_incorr", "all_incorr_minus_all_corr",
		"all_remaining",
	},
}

var models = map[string]Model{}

func register(m Model) {
	models[m.Name] = m
}

func init() {
	glm1 := allBeforeB
	glm1.Name, glm1.EVDir, glm1.MergeVarcopes = "GLM1", "model_GLM1", true
	glm1.NoiseGlob = "filter_regressor*.txt"
	register(glm1)

	glm12 := allBeforeB
	glm12.Name, glm12.EVDir = "GLM1.2", "model_GLM1.2"
	glm12.NoiseGlob = "filter_regressor*.txt"
	register(glm12)

	register(Model{
		Name:      "GLM2",
		EVDir:     "model_GLM2",
		NoiseGlob: "filter_regressor??.txt",
		Categories: []events.Category{
			{Label: "fixed", Paired: true},
			{Label: "cond", Paired: true},
			{Label: "all_BL"},
		},
		Rules: []Rule{
			pair("fixed_corr", "fixed_incorr", "fixedCorr_minus_fixedIncorr", "fixedIncorr_minus_fixedCorr", "all_fixed"),
			pair("cond_corr", "cond_incorr", "condCorr_minus_condIncorr", "condIncorr_minus_condCorr", "all_cond"),
			pair("fixed_corr", "cond_corr", "fixedCorr_minus_condCorr", "condCorr_minus_fixedCorr", "all_corr"),
			pair("fixed_incorr", "cond_incorr", "fixedIncorr_minus_condIncorr", "condIncorr_minus_fixedIncorr", "all_incorr"),
			{
				Conditions: []string{"fixed_corr", "cond_corr", "fixed_incorr", "cond_incorr"},
				Terms: []Term{
					{Name: "allCorr_minus_allIncorr", Weights: []float64{0.5, 0.5, -0.5, -0.5}},
					{Name: "allIncorr_minus_allCorr", Weights: []float64{-0.5, -0.5, 0.5, 0.5}},
					{Name: "allFixed_minus_allCond", Weights: []float64{0.5, -0.5, 0.5, -0.5}},
					{Name: "allCond_minus_allFixed", Weights: []float64{-0.5, 0.5, -0.5, 0.5}},
				},
			},
		},
		GroupContrasts: []string{"fixedCorr_minus_condCorr", "condCorr_minus_fixedCorr"},
	})
}

// Lookup returns a registered model by name
func Lookup(name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownModel, name, Names())
	}
	return m, nil
}

// Names lists the registered models
func Names() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
