package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/wmaze/internal/ledger"
	"github.com/KyungWonPark/wmaze/internal/sched"
)

// Node is one command of a workflow stage. Index distinguishes the
// iterations of a stage that fans out over runs or contrasts.
type Node struct {
	Name    string
	Index   int
	Command sched.Command
	// Inputs are files whose content is part of the fingerprint.
	Inputs []string
	// Outputs must all exist for a cached execution to be reused.
	Outputs []string
	// Pre runs before the command whenever the command runs.
	Pre func() error
}

func (n Node) id() string {
	return fmt.Sprintf("%s.%d", n.Name, n.Index)
}

// Fingerprint identifies the command together with the content of its
// inputs. A missing input hashes as absent.
func (n Node) Fingerprint() (string, error) {
	h := sha256.New()
	fmt.Fprintln(h, n.Command.String())

	for _, path := range n.Inputs {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(h, "%s absent\n", path)
			continue
		}
		if err != nil {
			return "", err
		}

		fmt.Fprintf(h, "%s ", path)
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
		fmt.Fprintln(h)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Executor runs nodes of one workflow
type Executor struct {
	Workflow string
	Runner   sched.Runner
	// Ledger may be nil, then nothing is cached.
	Ledger    *ledger.Ledger
	CrashDir  string
	Overwrite bool
	// DryRun prints every command to Out instead of running it.
	DryRun bool
	Out    io.Writer
	Log    *logrus.Entry
}

// Crash is the record written when a node fails
type Crash struct {
	Workflow string    `yaml:"workflow"`
	Node     string    `yaml:"node"`
	Index    int       `yaml:"index"`
	Command  string    `yaml:"command"`
	Dir      string    `yaml:"dir,omitempty"`
	ExitCode int       `yaml:"exit_code"`
	Error    string    `yaml:"error"`
	Stdout   string    `yaml:"stdout,omitempty"`
	Stderr   string    `yaml:"stderr,omitempty"`
	Time     time.Time `yaml:"time"`
}

func (e *Executor) logger() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Exec runs node unless the ledger shows it already completed with the same
// command and its outputs are still there.
func (e *Executor) Exec(ctx context.Context, node Node) error {
	log := e.logger().WithField("node", node.id())

	if e.DryRun {
		out := e.Out
		if out == nil {
			out = os.Stdout
		}
		_, err := fmt.Fprintf(out, "[%s] %s\n", node.id(), node.Command.String())
		return err
	}

	fp, err := node.Fingerprint()
	if err != nil {
		return fmt.Errorf("[Exec] %s: %w", node.id(), err)
	}

	if !e.Overwrite && e.Ledger != nil {
		done, err := e.Ledger.Done(e.Workflow, node.Name, node.Index, fp)
		if err != nil {
			return fmt.Errorf("[Exec] %s: %w", node.id(), err)
		}
		if done && exists(node.Outputs) {
			log.Info("reusing cached result")
			return nil
		}
	}

	if node.Pre != nil {
		if err := node.Pre(); err != nil {
			return fmt.Errorf("[Exec] %s: %w", node.id(), err)
		}
	}

	if e.Ledger != nil {
		if err := e.Ledger.Begin(e.Workflow, node.Name, node.Index, fp); err != nil {
			return fmt.Errorf("[Exec] %s: %w", node.id(), err)
		}
	}

	log.Debug(node.Command.String())
	start := time.Now()
	res, runErr := e.Runner.Run(ctx, node.Command)

	if runErr != nil {
		exitCode := -1
		var exitErr *sched.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.Result.ExitCode
		}
		if e.Ledger != nil {
			if err := e.Ledger.Fail(e.Workflow, node.Name, node.Index, exitCode); err != nil {
				log.WithError(err).Warn("failed to record failure")
			}
		}

		crash, err := e.writeCrash(node, res, exitCode, runErr)
		if err != nil {
			log.WithError(err).Warn("failed to write crash record")
		} else {
			log = log.WithField("crash", crash)
		}
		log.WithError(runErr).Error("node failed")

		return fmt.Errorf("[Exec] %s: %w", node.id(), runErr)
	}

	if e.Ledger != nil {
		if err := e.Ledger.Complete(e.Workflow, node.Name, node.Index); err != nil {
			return fmt.Errorf("[Exec] %s: %w", node.id(), err)
		}
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("finished")

	return nil
}

func (e *Executor) writeCrash(node Node, res sched.Result, exitCode int, runErr error) (string, error) {
	if e.CrashDir == "" {
		return "", errors.New("no crash directory")
	}
	if err := os.MkdirAll(e.CrashDir, 0o755); err != nil {
		return "", err
	}

	now := time.Now()
	c := Crash{
		Workflow: e.Workflow,
		Node:     node.Name,
		Index:    node.Index,
		Command:  node.Command.String(),
		Dir:      node.Command.Dir,
		ExitCode: exitCode,
		Error:    runErr.Error(),
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		Time:     now.UTC(),
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.CrashDir, fmt.Sprintf("crash-%s-%s-%s.yaml", now.Format("20060102-150405"), e.Workflow, node.id()))
	return path, os.WriteFile(path, data, 0o644)
}

// ReadCrash loads a crash record
func ReadCrash(path string) (*Crash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Crash{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("[ReadCrash] %s: %w", path, err)
	}
	return c, nil
}

func exists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
