package grplvl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/wmaze/internal/config"
	"github.com/KyungWonPark/wmaze/internal/glm"
	"github.com/KyungWonPark/wmaze/internal/pipeline"
	"github.com/KyungWonPark/wmaze/internal/sched"
)

type fslStub struct {
	mu    sync.Mutex
	calls []sched.Command
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func arg(args []string, flag string) string {
	for i, a := range args[:len(args)-1] {
		if a == flag {
			return args[i+1]
		}
	}
	return ""
}

func (f *fslStub) Run(_ context.Context, cmd sched.Command) (sched.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	switch cmd.Args[0] {
	case "fslmerge":
		return sched.Result{}, touch(cmd.Args[2])
	case "randomise":
		base := arg(cmd.Args, "-o")
		for _, suffix := range []string{"_tstat1.nii.gz", "_tfce_corrp_tstat1.nii.gz"} {
			if err := touch(base + suffix); err != nil {
				return sched.Result{}, err
			}
		}
		return sched.Result{}, nil
	}
	return sched.Result{}, fmt.Errorf("unexpected tool %s", cmd.Args[0])
}

func (f *fslStub) count(tool string) int {
	n := 0
	for _, c := range f.calls {
		if c.Args[0] == tool {
			n++
		}
	}
	return n
}

func setup(t *testing.T, modelName string, subjects []string) (*Workflow, *fslStub, string) {
	t.Helper()
	root := t.TempDir()

	model, err := glm.Lookup(modelName)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ProjectDir = filepath.Join(root, "proj")
	cfg.GroupMask = filepath.Join(root, "mask.nii.gz")
	cfg.Permutations = 10

	for _, sid := range subjects {
		dir := filepath.Join(cfg.ProjectDir, "norm_stats", model.EVDir, sid)
		for _, con := range model.GroupContrasts {
			require.NoError(t, touch(filepath.Join(dir, "norm_copes", fmt.Sprintf("cope_%s_trans.nii.gz", con))))
			require.NoError(t, touch(filepath.Join(dir, "norm_varcopes", fmt.Sprintf("varcope_%s_trans.nii.gz", con))))
		}
	}

	pl := pipeline.Init(2, false)
	t.Cleanup(pl.Quit)

	stub := &fslStub{}
	w := &Workflow{
		Model:     model,
		Config:    cfg,
		Subjects:  subjects,
		OutputDir: filepath.Join(root, "out"),
		WorkDir:   filepath.Join(root, "work"),
		PipeLine:  pl,
	}
	w.Executor = &pipeline.Executor{Workflow: w.Name(), Runner: stub, Overwrite: true}
	return w, stub, root
}

func TestRun_GLM2(t *testing.T) {
	w, stub, root := setup(t, "GLM2", []string{"WMAZE_001", "WMAZE_002", "WMAZE_004"})
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 2, stub.count("fslmerge"))
	assert.Equal(t, 2, stub.count("randomise"))

	for _, c := range stub.calls {
		if c.Args[0] == "fslmerge" {
			assert.Len(t, c.Args, 6)
		}
		if c.Args[0] == "randomise" {
			assert.Equal(t, "10", arg(c.Args, "-n"))
			assert.Equal(t, filepath.Join(root, "mask.nii.gz"), arg(c.Args, "-m"))
			assert.Equal(t, "-T", c.Args[len(c.Args)-1])
		}
	}

	for _, con := range []string{"fixedCorr_minus_condCorr", "condCorr_minus_fixedCorr"} {
		assert.FileExists(t, filepath.Join(root, "out", con, "corrected", "oneSampT_tfce_corrp_tstat1.nii.gz"))
		assert.FileExists(t, filepath.Join(root, "out", con, "oneSampT_tstat1.nii.gz"))

		design, err := os.ReadFile(filepath.Join(w.WorkDir, w.Name(), "_contrast_"+con, "grp_l2model", "design.mat"))
		require.NoError(t, err)
		assert.Contains(t, string(design), "/NumPoints\t3")
	}
}

func TestRun_MergesVarcopes(t *testing.T) {
	w, stub, _ := setup(t, "GLM1", []string{"WMAZE_001", "WMAZE_002"})
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, 2*len(w.Model.GroupContrasts), stub.count("fslmerge"))
	assert.Equal(t, len(w.Model.GroupContrasts), stub.count("randomise"))
}

func TestRun_MissingSubject(t *testing.T) {
	w, stub, _ := setup(t, "GLM2", []string{"WMAZE_001"})
	w.Subjects = append(w.Subjects, "WMAZE_099")

	assert.ErrorIs(t, w.Run(context.Background()), ErrMissingInput)
	assert.Empty(t, stub.calls)
}

func TestRun_DryRun(t *testing.T) {
	w, stub, root := setup(t, "GLM2", []string{"WMAZE_001"})
	var buf bytes.Buffer
	w.Executor.DryRun, w.Executor.Out = true, &buf

	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, stub.calls)
	assert.Contains(t, buf.String(), "randomise -i")
	assert.NoDirExists(t, filepath.Join(root, "out"))
}
