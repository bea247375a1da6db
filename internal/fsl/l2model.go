package fsl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gonum/matrix/mat64"

	wio "github.com/KyungWonPark/wmaze/internal/io"
)

// L2Design is the one-sample group design written for randomise
type L2Design struct {
	DesignMat string
	DesignCon string
	DesignGrp string
}

// L2Model writes a one-sample t-test design for n inputs into dir: a
// column of ones, a single contrast, and one variance group.
func L2Model(dir string, n int) (L2Design, error) {
	if n < 1 {
		return L2Design{}, fmt.Errorf("[L2Model] need at least one input, got %d", n)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return L2Design{}, fmt.Errorf("[L2Model] %w", err)
	}

	out := L2Design{
		DesignMat: filepath.Join(dir, "design.mat"),
		DesignCon: filepath.Join(dir, "design.con"),
		DesignGrp: filepath.Join(dir, "design.grp"),
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	column := mat64.NewDense(n, 1, ones)

	if err := wio.WriteVEST(out.DesignMat, column, "/NumPoints"); err != nil {
		return L2Design{}, err
	}
	if err := wio.WriteVEST(out.DesignCon, mat64.NewDense(1, 1, []float64{1}), "/NumContrasts"); err != nil {
		return L2Design{}, err
	}
	if err := wio.WriteVEST(out.DesignGrp, column, "/NumPoints"); err != nil {
		return L2Design{}, err
	}

	return out, nil
}
