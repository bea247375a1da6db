package fsl

import (
	"fmt"
	"path/filepath"

	"github.com/KyungWonPark/wmaze/internal/sched"
)

// FeatModel is the design produced by feat_model for one run
type FeatModel struct {
	DesignFile  string
	ConFile     string
	DesignImage string
	DesignCov   string
}

// FEATModel builds the design matrix from an fsf file
func FEATModel(name, fsf string) (sched.Command, FeatModel) {
	dir := filepath.Dir(fsf)
	base := StripFsf(filepath.Base(fsf))
	out := FeatModel{
		DesignFile:  filepath.Join(dir, base+".mat"),
		ConFile:     filepath.Join(dir, base+".con"),
		DesignImage: filepath.Join(dir, base+".png"),
		DesignCov:   filepath.Join(dir, base+"_cov.png"),
	}
	return sched.Command{Name: name, Args: []string{"feat_model", base}, Dir: dir, Env: env()}, out
}

// StripFsf removes the .fsf extension
func StripFsf(name string) string {
	if ext := filepath.Ext(name); ext == ".fsf" {
		return name[:len(name)-len(ext)]
	}
	return name
}

// FilmOptions are the model estimation settings
type FilmOptions struct {
	Threshold      float64
	MaskSize       int
	SmoothAutocorr bool
}

// FilmResults are the images film_gls writes for a design with the given
// number of explanatory variables and contrasts.
type FilmResults struct {
	Dir                string
	ParameterEstimates []string
	Copes              []string
	Varcopes           []string
	Zstats             []string
	Tstats             []string
	SigmaSquareds      string
	DOF                string
}

// Results lists the outputs of film_gls in dir
func Results(dir string, pes, contrasts int) FilmResults {
	res := FilmResults{
		Dir:           dir,
		SigmaSquareds: Image(filepath.Join(dir, "sigmasquareds")),
		DOF:           filepath.Join(dir, "dof"),
	}
	for i := 1; i <= pes; i++ {
		res.ParameterEstimates = append(res.ParameterEstimates, Image(filepath.Join(dir, fmt.Sprintf("pe%d", i))))
	}
	for i := 1; i <= contrasts; i++ {
		res.Copes = append(res.Copes, Image(filepath.Join(dir, fmt.Sprintf("cope%d", i))))
		res.Varcopes = append(res.Varcopes, Image(filepath.Join(dir, fmt.Sprintf("varcope%d", i))))
		res.Zstats = append(res.Zstats, Image(filepath.Join(dir, fmt.Sprintf("zstat%d", i))))
		res.Tstats = append(res.Tstats, Image(filepath.Join(dir, fmt.Sprintf("tstat%d", i))))
	}
	return res
}

// FILMGLS fits the design to the functional data of a run. Results go to
// dir/results.
func FILMGLS(name, dir, in string, model FeatModel, opts FilmOptions) sched.Command {
	args := []string{
		"film_gls",
		"--in=" + in,
		"--rn=results",
		"--pd=" + model.DesignFile,
		"--con=" + model.ConFile,
		fmt.Sprintf("--thr=%g", opts.Threshold),
	}
	if opts.SmoothAutocorr {
		args = append(args, "--sa")
	}
	if opts.MaskSize > 0 {
		args = append(args, fmt.Sprintf("--ms=%d", opts.MaskSize))
	}
	return sched.Command{Name: name, Args: args, Dir: dir, Env: env()}
}
