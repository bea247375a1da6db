// Package sched runs external commands on the local machine or through SLURM.
package sched

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Command is one external tool invocation
type Command struct {
	// Name identifies the invocation in logs and job names.
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

// String renders the command as a shell line
func (c Command) String() string {
	quoted := make([]string, len(c.Args))
	for i, a := range c.Args {
		quoted[i] = Quote(a)
	}
	line := strings.Join(quoted, " ")

	if len(c.Env) > 0 {
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := make([]string, len(keys))
		for i, k := range keys {
			env[i] = k + "=" + Quote(c.Env[k])
		}
		line = strings.Join(env, " ") + " " + line
	}
	if c.Dir != "" {
		line = "cd " + Quote(c.Dir) + " && " + line
	}
	return line
}

// Fingerprint identifies what the command does, independent of its name
func (c Command) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.String()))
	return hex.EncodeToString(sum[:])
}

// Quote quotes s for a POSIX shell when needed
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is the outcome of a finished command
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExitError reports a command that ran but exited non-zero
type ExitError struct {
	Command Command
	Result  Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Command.Name, e.Result.ExitCode, strings.TrimSpace(string(e.Result.Stderr)))
}

// Runner executes commands
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Local runs commands as child processes
type Local struct{}

// Run implements Runner
func (Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, errors.New("empty command")
	}
	return run(ctx, cmd, exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...))
}

func run(ctx context.Context, cmd Command, c *exec.Cmd) (Result, error) {
	var stdout, stderr bytes.Buffer
	c.Dir = cmd.Dir
	c.Stdout = &stdout
	c.Stderr = &stderr
	if len(cmd.Env) > 0 {
		c.Env = os.Environ()
		for k, v := range cmd.Env {
			c.Env = append(c.Env, k+"="+v)
		}
	}

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Command: cmd, Result: res}
	default:
		return res, fmt.Errorf("failed to start %s: %w", cmd.Name, err)
	}
}

// Slurm submits every command as a batch job and waits for it to finish
type Slurm struct {
	// Args are extra sbatch arguments, e.g. partition and QoS.
	Args []string
	// LogDir receives the job output files; empty uses the command directory.
	LogDir string
}

// SubmitArgs returns the sbatch invocation for cmd
func (s Slurm) SubmitArgs(cmd Command) []string {
	args := []string{"sbatch", "--wait", "--parsable", "-J", jobName(cmd.Name)}
	if s.LogDir != "" {
		args = append(args, "-o", s.LogDir+"/"+jobName(cmd.Name)+"-%j.out")
	}
	args = append(args, s.Args...)
	return append(args, "--wrap", cmd.String())
}

// Run implements Runner
func (s Slurm) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, errors.New("empty command")
	}
	args := s.SubmitArgs(cmd)
	submit := Command{Name: cmd.Name, Args: args, Dir: cmd.Dir}
	return run(ctx, submit, exec.CommandContext(ctx, args[0], args[1:]...))
}

func jobName(name string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(name)
}

// New returns the runner for a plugin name: "linear" runs locally, "slurm"
// submits through sbatch.
func New(plugin, sbatchArgs, logDir string) (Runner, error) {
	switch plugin {
	case "linear", "local":
		return Local{}, nil
	case "slurm", "SLURM":
		return Slurm{Args: strings.Fields(sbatchArgs), LogDir: logDir}, nil
	default:
		return nil, fmt.Errorf("unknown plugin %q", plugin)
	}
}
