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
	"github.com/KyungWonPark/wmaze/internal/ledger"
	"github.com/KyungWonPark/wmaze/internal/lvl1"
	"github.com/KyungWonPark/wmaze/internal/pipeline"
	"github.com/KyungWonPark/wmaze/internal/sched"
)

type options struct {
	subject    string
	outputDir  string
	workDir    string
	model      string
	configPath string
	plugin     string
	overwrite  bool
	workers    int
	debug      bool
	dryRun     bool
}

func main() {
	rootCmd, err := newRootCmd(run)
	if err != nil {
		logrus.Fatalf("[Flags] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(runE func(context.Context, options) error) (*cobra.Command, error) {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:   "lvl1",
		Short: "First-level GLM of the wmaze task",
		Long:  "lvl1 fits one FSL GLM per functional run of a subject and archives the contrast images.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.subject, "subject_id", "s", "", "Current subject id")
	flags.StringVarP(&opts.outputDir, "output_dir", "o", "", "Output directory base")
	flags.StringVarP(&opts.workDir, "work_dir", "w", "", "Working directory base (default: current directory)")
	flags.StringVarP(&opts.model, "model", "m", "GLM2", fmt.Sprintf("Model, one of %v", glm.Names()))
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML or HCL config file (default: $"+config.EnvConfig+")")
	flags.StringVar(&opts.plugin, "plugin", "slurm", "Execution plugin: slurm or linear")
	flags.BoolVar(&opts.overwrite, "overwrite", true, "Rerun nodes that already completed")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent nodes (default: from config)")
	flags.BoolVar(&opts.debug, "debug", false, "Debug logging")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the commands without running them")
	if err := rootCmd.MarkFlagRequired("subject_id"); err != nil {
		return nil, err
	}

	return rootCmd, nil
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
	workDir, err = filepath.Abs(filepath.Join(workDir, opts.subject))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = filepath.Join(cfg.ProjectDir, "frstlvl", model.EVDir)
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

	log := logrus.WithFields(logrus.Fields{"subject": opts.subject, "model": model.Name})

	wf := &lvl1.Workflow{
		Subject:   opts.subject,
		Model:     model,
		Config:    cfg,
		OutputDir: outputDir,
		WorkDir:   workDir,
		PipeLine:  pl,
		Log:       log,
	}
	wf.Executor = &pipeline.Executor{
		Workflow:  wf.Name(),
		Runner:    runner,
		Ledger:    l,
		CrashDir:  filepath.Join(cfg.CrashDir, model.EVDir, "lvl1"),
		Overwrite: opts.overwrite,
		DryRun:    opts.dryRun,
		Log:       log,
	}

	log.WithFields(logrus.Fields{"plugin": opts.plugin, "work_dir": workDir, "output_dir": outputDir}).Info("starting first level")
	return wf.Run(ctx)
}
