package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KyungWonPark/wmaze/internal/config"
	"github.com/KyungWonPark/wmaze/internal/glm"
	"github.com/KyungWonPark/wmaze/internal/grplvl"
	"github.com/KyungWonPark/wmaze/internal/ledger"
	"github.com/KyungWonPark/wmaze/internal/pipeline"
	"github.com/KyungWonPark/wmaze/internal/sched"
)

type options struct {
	outputDir  string
	workDir    string
	model      string
	configPath string
	plugin     string
	subjects   []string
	overwrite  bool
	workers    int
	debug      bool
	dryRun     bool
}

func main() {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:   "grplvl",
		Short: "Group-level randomise of the wmaze task",
		Long:  "grplvl merges the normalized copes of all subjects and runs a one-sample permutation test per group contrast.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.outputDir, "output_dir", "o", "", "Output directory base (default: <group_sink_dir>/model_<model>_randomise)")
	flags.StringVarP(&opts.workDir, "work_dir", "w", "", "Working directory base (default: current directory)")
	flags.StringVarP(&opts.model, "model", "m", "GLM2", fmt.Sprintf("Model, one of %v", glm.Names()))
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML or HCL config file (default: $"+config.EnvConfig+")")
	flags.StringVar(&opts.plugin, "plugin", "slurm", "Execution plugin: slurm or linear")
	flags.StringSliceVar(&opts.subjects, "subjects", nil, "Subjects to include (default: from config)")
	flags.BoolVar(&opts.overwrite, "overwrite", true, "Rerun nodes that already completed")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent contrasts (default: from config)")
	flags.BoolVar(&opts.debug, "debug", false, "Debug logging")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the commands without running them")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if len(opts.subjects) > 0 {
		cfg.Subjects = opts.subjects
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("[Config] %w", err)
	}

	model, err := glm.Lookup(opts.model)
	if err != nil {
		return err
	}

	workDir := opts.workDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return err
		}
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = filepath.Join(cfg.GroupSinkDir, model.EVDir+"_randomise")
	}
	if outputDir, err = filepath.Abs(outputDir); err != nil {
		return err
	}

	logDir := filepath.Join(workDir, "slurm")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	runner, err := sched.New(opts.plugin, cfg.SbatchArgs, logDir)
	if err != nil {
		return err
	}

	l, err := ledger.Open(filepath.Join(workDir, "ledger.db"))
	if err != nil {
		return fmt.Errorf("[Ledger] %w", err)
	}
	defer l.Close()

	pl := pipeline.Init(cfg.Workers, opts.debug)
	defer pl.Quit()

	log := logrus.WithField("model", model.Name)

	wf := &grplvl.Workflow{
		Model:     model,
		Config:    cfg,
		Subjects:  cfg.Subjects,
		OutputDir: outputDir,
		WorkDir:   workDir,
		PipeLine:  pl,
		Log:       log,
	}
	wf.Executor = &pipeline.Executor{
		Workflow:  wf.Name(),
		Runner:    runner,
		Ledger:    l,
		CrashDir:  filepath.Join(cfg.CrashDir, model.EVDir, "grplvl"),
		Overwrite: opts.overwrite,
		DryRun:    opts.dryRun,
		Log:       log,
	}

	log.WithFields(logrus.Fields{"subjects": len(cfg.Subjects), "output_dir": outputDir}).Info("starting group level")
	return wf.Run(ctx)
}
