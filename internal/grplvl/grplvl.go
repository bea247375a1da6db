// Package grplvl is the group-level workflow: a one-sample permutation test
// across subjects for every group contrast of a model.
package grplvl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/KyungWonPark/wmaze/internal/config"
	"github.com/KyungWonPark/wmaze/internal/fsl"
	"github.com/KyungWonPark/wmaze/internal/glm"
	"github.com/KyungWonPark/wmaze/internal/pipeline"
	"github.com/KyungWonPark/wmaze/internal/sink"
)

// ErrMissingInput is returned when a subject lacks a normalized cope
var ErrMissingInput = errors.New("missing normalized input")

// BaseName prefixes the randomise outputs
const BaseName = "oneSampT"

// Workflow is the group analysis of one model
type Workflow struct {
	Model    glm.Model
	Config   *config.Config
	Subjects []string
	// OutputDir is the sink base; each contrast gets its own container.
	OutputDir string
	WorkDir   string
	PipeLine  *pipeline.PipeLine
	Executor  *pipeline.Executor
	Log       *logrus.Entry
}

// Name returns the workflow name used in the ledger and crash records
func (w *Workflow) Name() string {
	return w.Model.Name + "_grplvl"
}

// Inputs are the normalized first-level images of one contrast, one per subject
type Inputs struct {
	Copes    []string
	Varcopes []string
}

// Datasource finds the normalized copes and varcopes of contrast for every subject
func (w *Workflow) Datasource(contrast string) (Inputs, error) {
	var in Inputs
	var errs []error

	for _, sid := range w.Subjects {
		dir := filepath.Join(w.Config.ProjectDir, "norm_stats", w.Model.EVDir, sid)
		cope := filepath.Join(dir, "norm_copes", fmt.Sprintf("cope_%s_trans.nii.gz", contrast))
		varcope := filepath.Join(dir, "norm_varcopes", fmt.Sprintf("varcope_%s_trans.nii.gz", contrast))

		for _, path := range []string{cope, varcope} {
			if _, err := os.Stat(path); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s", ErrMissingInput, path))
			}
		}
		in.Copes = append(in.Copes, cope)
		in.Varcopes = append(in.Varcopes, varcope)
	}

	return in, errors.Join(errs...)
}

// Run tests every group contrast of the model
func (w *Workflow) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("model", w.Model.Name)

	if len(w.Subjects) == 0 {
		return errors.New("[grplvl] no subjects")
	}

	contrasts := w.Model.GroupContrasts
	err := w.PipeLine.Map(len(contrasts), func(i int) error {
		if err := w.contrast(ctx, i, contrasts[i], log.WithField("contrast", contrasts[i])); err != nil {
			return fmt.Errorf("%s: %w", contrasts[i], err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[grplvl] %w", err)
	}

	log.WithField("contrasts", len(contrasts)).Info("group level done")
	return nil
}

func (w *Workflow) contrast(ctx context.Context, i int, contrast string, log *logrus.Entry) error {
	in, err := w.Datasource(contrast)
	if err != nil && !w.Executor.DryRun {
		return err
	}

	dir := filepath.Join(w.WorkDir, w.Name(), "_contrast_"+contrast)

	merged := fsl.Image(filepath.Join(dir, "grp_merge_copes", "cope_merged"))
	if err := os.MkdirAll(filepath.Dir(merged), 0o755); err != nil {
		return err
	}
	err = w.Executor.Exec(ctx, pipeline.Node{
		Name:    "grp_merge_copes",
		Index:   i,
		Command: fsl.Merge(fmt.Sprintf("grp_merge_copes.%d", i), merged, in.Copes),
		Inputs:  in.Copes,
		Outputs: []string{merged},
	})
	if err != nil {
		return err
	}

	if w.Model.MergeVarcopes {
		mergedVar := fsl.Image(filepath.Join(dir, "grp_merge_varcopes", "varcope_merged"))
		if err := os.MkdirAll(filepath.Dir(mergedVar), 0o755); err != nil {
			return err
		}
		err = w.Executor.Exec(ctx, pipeline.Node{
			Name:    "grp_merge_varcopes",
			Index:   i,
			Command: fsl.Merge(fmt.Sprintf("grp_merge_varcopes.%d", i), mergedVar, in.Varcopes),
			Inputs:  in.Varcopes,
			Outputs: []string{mergedVar},
		})
		if err != nil {
			return err
		}
	}

	design, err := fsl.L2Model(filepath.Join(dir, "grp_l2model"), len(in.Copes))
	if err != nil {
		return err
	}

	base := filepath.Join(dir, "grp_randomise", BaseName)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}
	err = w.Executor.Exec(ctx, pipeline.Node{
		Name:  "grp_randomise",
		Index: i,
		Command: fsl.Randomise(fmt.Sprintf("grp_randomise.%d", i), merged, base, design, fsl.RandomiseOptions{
			Mask:         w.Config.GroupMask,
			Permutations: w.Config.Permutations,
			TFCE:         true,
		}),
		Inputs:  []string{merged, design.DesignMat, design.DesignCon, w.Config.GroupMask},
		Outputs: []string{fsl.Image(base + "_tstat1"), fsl.Image(base + "_tfce_corrp_tstat1")},
	})
	if err != nil {
		return err
	}

	if w.Executor.DryRun {
		return nil
	}

	tstats, corrected, err := fsl.RandomiseOutputs(base)
	if err != nil {
		return err
	}

	s := sink.Sink{Base: w.OutputDir, Container: contrast}
	subs := glm.GroupSubstitutions(contrast)
	if _, err := s.Put("output.corrected", corrected, subs); err != nil {
		return err
	}
	if _, err := s.Put("output", tstats, subs); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"subjects": len(in.Copes), "tstats": len(tstats)}).Info("randomise done")
	return nil
}
