// Package config holds the paths and constants of the wmaze pipelines.
// Defaults match the madlab cluster layout; a YAML or HCL file overrides them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// EnvConfig names a config file used when no --config flag is given
const EnvConfig = "WMAZE_CONFIG"

// Config represents pipeline configuration
type Config struct {
	BehavDir     string `yaml:"behav_dir" hcl:"behav_dir,optional"`
	PreprocDir   string `yaml:"preproc_dir" hcl:"preproc_dir,optional"`
	ProjectDir   string `yaml:"project_dir" hcl:"project_dir,optional"`
	GroupMask    string `yaml:"group_mask" hcl:"group_mask,optional"`
	GroupSinkDir string `yaml:"group_sink_dir" hcl:"group_sink_dir,optional"`
	CrashDir     string `yaml:"crash_dir" hcl:"crash_dir,optional"`

	Runs int `yaml:"runs" hcl:"runs,optional"`
	// TR is the repetition time in seconds
	TR float64 `yaml:"tr" hcl:"tr,optional"`
	// Trim is the number of trailing volumes removed from every run
	Trim int `yaml:"trim" hcl:"trim,optional"`
	// TSize is the number of volumes kept; 0 reads it from the image header
	TSize         int      `yaml:"t_size" hcl:"t_size,optional"`
	HighPass      float64  `yaml:"high_pass" hcl:"high_pass,optional"`
	FilmThreshold float64  `yaml:"film_threshold" hcl:"film_threshold,optional"`
	FilmMaskSize  int      `yaml:"film_mask_size" hcl:"film_mask_size,optional"`
	Permutations  int      `yaml:"permutations" hcl:"permutations,optional"`
	SbatchArgs    string   `yaml:"sbatch_args" hcl:"sbatch_args,optional"`
	Workers       int      `yaml:"workers" hcl:"workers,optional"`
	Subjects      []string `yaml:"subjects" hcl:"subjects,optional"`

	// FilmSmoothAutocorr smooths the autocorrelation estimates of film_gls
	FilmSmoothAutocorr bool `yaml:"film_smooth_autocorr" hcl:"film_smooth_autocorr,optional"`
}

// Default returns the configuration the wmaze scripts were written against
func Default() *Config {
	return &Config{
		BehavDir:     "/home/data/madlab/data/mri/wmaze/scanner_behav",
		PreprocDir:   "/home/data/madlab/data/mri/wmaze/preproc",
		ProjectDir:   "/home/data/madlab/data/mri/wmaze",
		GroupMask:    "/home/data/madlab/data/mri/wmaze/wmaze_T1_template/wmaze_grptemplate_mask.nii.gz",
		GroupSinkDir: "/home/data/madlab/data/mri/wmaze/grplvl",
		CrashDir:     "/scratch/madlab/crash/wmaze",

		Runs:          6,
		TR:            2.0,
		Trim:          3,
		TSize:         197,
		HighPass:      -1,
		FilmThreshold: 0,
		FilmMaskSize:  5,
		Permutations:  5000,
		SbatchArgs:    "-p investor --qos pq_madlab -N 1 -n 1",
		Workers:       6,
		Subjects: []string{
			"WMAZE_001", "WMAZE_002", "WMAZE_004", "WMAZE_005", "WMAZE_006",
			"WMAZE_007", "WMAZE_008", "WMAZE_009", "WMAZE_010", "WMAZE_012",
			"WMAZE_017", "WMAZE_018", "WMAZE_019", "WMAZE_020", "WMAZE_021",
			"WMAZE_022", "WMAZE_023", "WMAZE_024", "WMAZE_026", "WMAZE_027",
		},
		FilmSmoothAutocorr: true,
	}
}

// Load returns the defaults overlaid with the file at path. An empty path
// falls back to $WMAZE_CONFIG, and to the defaults alone if that is unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".hcl":
		if err := decodeHCL(path, data, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	return cfg, cfg.Validate()
}

func decodeHCL(path string, data []byte, cfg *Config) error {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse config HCL: %w", diags)
	}

	if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
		return fmt.Errorf("failed to decode config HCL: %w", diags)
	}
	return nil
}

// Validate checks the values the pipelines cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.Runs < 1 {
		errs = append(errs, fmt.Errorf("runs must be positive, got %d", c.Runs))
	}
	if c.TR <= 0 {
		errs = append(errs, fmt.Errorf("tr must be positive, got %g", c.TR))
	}
	if c.Trim < 0 {
		errs = append(errs, fmt.Errorf("trim must not be negative, got %d", c.Trim))
	}
	if c.TSize < 0 {
		errs = append(errs, fmt.Errorf("t_size must not be negative, got %d", c.TSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// EVDir returns the event file directory of a subject for a model
func (c *Config) EVDir(subject, modelDir string) string {
	return filepath.Join(c.BehavDir, subject, modelDir)
}
