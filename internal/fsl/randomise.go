package fsl

import (
	"fmt"
	"path/filepath"

	"github.com/KyungWonPark/wmaze/internal/sched"
)

// RandomiseOptions are the permutation test settings
type RandomiseOptions struct {
	Mask         string
	Permutations int
	TFCE         bool
}

// Randomise runs a permutation test of the merged copes against design.
// Outputs are prefixed with base.
func Randomise(name, in, base string, design L2Design, opts RandomiseOptions) sched.Command {
	args := []string{
		"randomise",
		"-i", in,
		"-o", base,
		"-d", design.DesignMat,
		"-t", design.DesignCon,
	}
	if opts.Mask != "" {
		args = append(args, "-m", opts.Mask)
	}
	if opts.Permutations > 0 {
		args = append(args, "-n", fmt.Sprint(opts.Permutations))
	}
	if opts.TFCE {
		args = append(args, "-T")
	}
	return sched.Command{Name: name, Args: args, Dir: filepath.Dir(base), Env: env()}
}

// RandomiseOutputs lists the raw and TFCE corrected t-statistic images
// randomise wrote for base.
func RandomiseOutputs(base string) (tstats, corrected []string, err error) {
	if tstats, err = Glob(base + "_tstat*"); err != nil {
		return nil, nil, err
	}
	if corrected, err = Glob(base + "_tfce_corrp_tstat*"); err != nil {
		return nil, nil, err
	}
	return tstats, corrected, nil
}
