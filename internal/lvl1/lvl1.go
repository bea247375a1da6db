// Package lvl1 is the first-level workflow: one GLM per functional run of a
// subject, estimated with FSL and archived with contrast-named outputs.
package lvl1

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/KyungWonPark/wmaze/internal/config"
	"github.com/KyungWonPark/wmaze/internal/events"
	"github.com/KyungWonPark/wmaze/internal/fsl"
	"github.com/KyungWonPark/wmaze/internal/glm"
	wio "github.com/KyungWonPark/wmaze/internal/io"
	"github.com/KyungWonPark/wmaze/internal/motion"
	"github.com/KyungWonPark/wmaze/internal/pipeline"
	"github.com/KyungWonPark/wmaze/internal/sink"
)

// ErrNoInputs is returned when a datasource pattern matches nothing
var ErrNoInputs = errors.New("no input files")

// ErrRunMismatch is returned when the functional runs do not match the event runs
var ErrRunMismatch = errors.New("number of functional runs does not match number of event runs")

// Workflow is the first-level analysis of one subject
type Workflow struct {
	Subject string
	Model   glm.Model
	Config  *config.Config
	// OutputDir is the sink base; results go to OutputDir/Subject.
	OutputDir string
	// WorkDir holds the intermediate files of this subject.
	WorkDir  string
	PipeLine *pipeline.PipeLine
	Executor *pipeline.Executor
	Log      *logrus.Entry
}

// Name returns the workflow name used in the ledger and crash records
func (w *Workflow) Name() string {
	return w.Model.Name + "_frstlvl"
}

// Inputs are the datasource matches of a subject
type Inputs struct {
	Funcs []string
	Noise []string
}

// Datasource finds the functional runs and noise regressor files of the subject
func (w *Workflow) Datasource() (Inputs, error) {
	base := filepath.Join(w.Config.PreprocDir, w.Subject)

	funcs, err := fsl.Glob(filepath.Join(base, "func", "smoothed_fullspectrum", "_maskfunc2*", "*wmaze*.nii.gz"))
	if err != nil {
		return Inputs{}, err
	}
	if len(funcs) == 0 {
		return Inputs{}, fmt.Errorf("%w: functional runs of %s", ErrNoInputs, w.Subject)
	}

	noise, err := fsl.Glob(filepath.Join(base, "noise", w.Model.NoiseGlob))
	if err != nil {
		return Inputs{}, err
	}
	if len(noise) == 0 {
		return Inputs{}, fmt.Errorf("%w: noise regressors of %s", ErrNoInputs, w.Subject)
	}

	return Inputs{Funcs: funcs, Noise: noise}, nil
}

type runState struct {
	roi     string
	volumes int
	design  fsl.L1Design
	model   fsl.FeatModel
	results fsl.FilmResults
	pvals   []string
	npy     string
}

// Run executes every stage for the subject
func (w *Workflow) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"subject": w.Subject, "model": w.Model.Name})

	// subject_info
	runs, err := events.Load(w.Config.EVDir(w.Subject, w.Model.EVDir), w.Model.Categories, w.Config.Runs)
	if err != nil {
		return fmt.Errorf("[subject_info] %w", err)
	}
	log.WithField("runs", len(runs)).Info("loaded events")

	// getcontrasts, getsubs
	contrasts := glm.BuildContrasts(runs, w.Model)
	subs := glm.Substitutions(contrasts)

	inputs, err := w.Datasource()
	if err != nil {
		return fmt.Errorf("[datasource] %w", err)
	}
	if len(inputs.Funcs) != len(runs) {
		return fmt.Errorf("[datasource] %w: %d images for %d runs", ErrRunMismatch, len(inputs.Funcs), len(runs))
	}

	state := make([]runState, len(runs))
	dir := filepath.Join(w.WorkDir, w.Name())

	// fslroi_epi
	err = w.PipeLine.Map(len(runs), func(i int) error {
		volumes, err := fsl.KeptVolumes(inputs.Funcs[i], w.Config.TSize, w.Config.Trim)
		if err != nil {
			return err
		}
		out := filepath.Join(dir, "fslroi_epi", fmt.Sprintf("mapflow/_fslroi_epi%d", i))
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		roi := fsl.Image(filepath.Join(out, filepath.Base(fsl.StripExt(inputs.Funcs[i]))+"_roi"))
		state[i].roi, state[i].volumes = roi, volumes

		return w.Executor.Exec(ctx, pipeline.Node{
			Name:    "fslroi_epi",
			Index:   i,
			Command: fsl.ExtractROI(fmt.Sprintf("fslroi_epi.%d", i), inputs.Funcs[i], roi, 0, volumes),
			Inputs:  []string{inputs.Funcs[i]},
			Outputs: []string{roi},
		})
	})
	if err != nil {
		return fmt.Errorf("[fslroi_epi] %w", err)
	}

	// motionnoise
	merged, err := motion.Merge(runs, inputs.Noise, w.Config.Trim)
	if err != nil {
		return fmt.Errorf("[motionnoise] %w", err)
	}

	// level1_design
	err = w.PipeLine.Map(len(runs), func(i int) error {
		design, err := fsl.Level1Design(
			filepath.Join(dir, "level1_design", fmt.Sprintf("run%d", i+1)),
			state[i].roi, merged[i], contrasts[i],
			fsl.DesignOptions{
				TR:                 w.Config.TR,
				Volumes:            state[i].volumes,
				HighPass:           w.Config.HighPass,
				SerialCorrelations: true,
			})
		state[i].design = design
		return err
	})
	if err != nil {
		return fmt.Errorf("[level1_design] %w", err)
	}

	// generate_model
	err = w.PipeLine.Map(len(runs), func(i int) error {
		cmd, model := fsl.FEATModel(fmt.Sprintf("generate_model.%d", i), state[i].design.FSF)
		state[i].model = model
		return w.Executor.Exec(ctx, pipeline.Node{
			Name:    "generate_model",
			Index:   i,
			Command: cmd,
			Inputs:  state[i].design.Files(),
			Outputs: []string{model.DesignFile, model.ConFile},
		})
	})
	if err != nil {
		return fmt.Errorf("[generate_model] %w", err)
	}

	// estimate_model
	err = w.PipeLine.Map(len(runs), func(i int) error {
		out := filepath.Join(dir, "estimate_model", fmt.Sprintf("mapflow/_estimate_model%d", i))
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		results := fsl.Results(filepath.Join(out, "results"), len(merged[i].Conditions)+len(merged[i].Regressors), len(contrasts[i]))
		state[i].results = results

		return w.Executor.Exec(ctx, pipeline.Node{
			Name:  "estimate_model",
			Index: i,
			Command: fsl.FILMGLS(fmt.Sprintf("estimate_model.%d", i), out, state[i].roi, state[i].model, fsl.FilmOptions{
				Threshold:      w.Config.FilmThreshold,
				MaskSize:       w.Config.FilmMaskSize,
				SmoothAutocorr: w.Config.FilmSmoothAutocorr,
			}),
			Inputs:  []string{state[i].roi, state[i].model.DesignFile, state[i].model.ConFile},
			Outputs: append(append([]string{results.DOF}, results.Copes...), results.Varcopes...),
			// film_gls picks a new name if the results directory exists
			Pre: func() error { return os.RemoveAll(results.Dir) },
		})
	})
	if err != nil {
		return fmt.Errorf("[estimate_model] %w", err)
	}

	// z2pval
	type zstat struct{ run, idx int }
	var zstats []zstat
	for i := range state {
		state[i].pvals = make([]string, len(state[i].results.Zstats))
		for j := range state[i].results.Zstats {
			zstats = append(zstats, zstat{run: i, idx: j})
		}
	}
	err = w.PipeLine.Map(len(zstats), func(k int) error {
		z := zstats[k]
		cmd, out := fsl.ZtoP(fmt.Sprintf("z2pval.%d", k), state[z.run].results.Zstats[z.idx])
		state[z.run].pvals[z.idx] = out
		return w.Executor.Exec(ctx, pipeline.Node{
			Name:    "z2pval",
			Index:   k,
			Command: cmd,
			Inputs:  []string{state[z.run].results.Zstats[z.idx]},
			Outputs: []string{out},
		})
	})
	if err != nil {
		return fmt.Errorf("[z2pval] %w", err)
	}

	if w.Executor.DryRun {
		log.Info("dry run, nothing to export or sink")
		return nil
	}

	// design matrix export
	err = w.PipeLine.Map(len(runs), func(i int) error {
		design, err := wio.ReadVEST(state[i].model.DesignFile)
		if err != nil {
			return err
		}
		state[i].npy = fsl.StripFsf(state[i].design.FSF) + ".npy"
		return wio.Mat64toNpy(state[i].npy, design)
	})
	if err != nil {
		return fmt.Errorf("[design_npy] %w", err)
	}

	// sinkd
	s := sink.Sink{Base: w.OutputDir, Container: w.Subject}
	err = w.PipeLine.Map(len(runs), func(i int) error {
		return w.sink(s, i, state[i], subs[i])
	})
	if err != nil {
		return fmt.Errorf("[sinkd] %w", err)
	}

	log.Info("first level done")
	return nil
}

func (w *Workflow) sink(s sink.Sink, i int, st runState, subs []glm.Substitution) error {
	run := fmt.Sprintf("run%d", i+1)
	res := st.results

	puts := []struct {
		dest  string
		files []string
	}{
		{"modelfit.estimates." + run, append(append([]string{}, res.ParameterEstimates...), res.SigmaSquareds)},
		{"modelfit.dofs." + run, []string{res.DOF}},
		{"modelfit.contrasts." + run, concat(res.Copes, res.Varcopes, res.Zstats, st.pvals)},
		{"modelfit.design." + run, []string{st.model.DesignImage, st.model.DesignCov, st.model.DesignFile, st.npy}},
	}

	for _, p := range puts {
		if _, err := s.Put(p.dest, p.files, subs); err != nil {
			return err
		}
	}
	return nil
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
