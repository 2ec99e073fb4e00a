package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/jmgilman/go/exec"

	"github.com/nobletooth/pixcache/pkg/utils"
)

// ErrNoCommand is returned when a Companion is built without a command to run.
var ErrNoCommand = errors.New("companion command is empty")

// Companion mirrors requests to an external program invoked as `<command...> <action> <path>`. The path is always a
// separate argument and is never interpreted by a shell.
//
// Repeated preloads of the same path are skipped using a bloom filter. A false positive skips a preload that was
// never sent, which only costs the external cache a warm entry. Any invalidation resets the filter.
type Companion struct {
	executor exec.Executor
	program  string
	args     []string
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // Guards preloaded.
	preloaded *bloom.BloomFilter
}

var _ Synchronizer = (*Companion)(nil)

// CompanionConfig configures NewCompanion.
type CompanionConfig struct {
	Command           []string      // Program and leading arguments.
	Timeout           time.Duration // Per invocation; non-positive disables the timeout.
	ExpectedPaths     uint          // Sizing hint for the preload filter.
	FalsePositiveRate float64       // Target false positive rate of the preload filter.
}

// NewCompanion returns a Companion running `config.Command` through `executor`.
func NewCompanion(executor exec.Executor, config CompanionConfig) (*Companion, error) {
	if len(config.Command) == 0 || config.Command[0] == "" {
		return nil, ErrNoCommand
	}
	if config.ExpectedPaths == 0 {
		config.ExpectedPaths = 10_000
	}
	if config.FalsePositiveRate <= 0 || config.FalsePositiveRate >= 1 {
		config.FalsePositiveRate = 0.01
	}
	return &Companion{
		executor:  executor,
		program:   config.Command[0],
		args:      slices.Clone(config.Command[1:]),
		timeout:   config.Timeout,
		logger:    utils.ModuleLogger("mirror").With("program", config.Command[0]),
		preloaded: bloom.NewWithEstimates(config.ExpectedPaths, config.FalsePositiveRate),
	}, nil
}

// Invalidate runs the companion with the invalidate action.
func (c *Companion) Invalidate(ctx context.Context, path string) error {
	c.mu.Lock()
	c.preloaded.ClearAll()
	c.mu.Unlock()
	return c.run(ctx, ActionInvalidate, path)
}

// Preload runs the companion with the preload action unless `path` was preloaded since the last invalidation.
func (c *Companion) Preload(ctx context.Context, path string) error {
	c.mu.Lock()
	seen := c.preloaded.TestAndAddString(path)
	c.mu.Unlock()
	if seen {
		c.logger.Debug("Skipping repeated preload.", "path", path)
		return nil
	}
	if err := c.run(ctx, ActionPreload, path); err != nil {
		c.mu.Lock()
		c.preloaded.ClearAll() // Let the next preload retry.
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Companion) run(ctx context.Context, action Action, path string) error {
	// Executors carry per-run settings, so each run configures its own clone.
	runner := exec.NewWrapper(c.executor.Clone(), c.program).WithContext(ctx)
	if c.timeout > 0 {
		runner = runner.WithTimeout(c.timeout.String())
	}
	args := append(slices.Clone(c.args), string(action), path)
	result, err := runner.Run(args...)
	if err != nil {
		var execErr *exec.ExecError
		if errors.As(err, &execErr) {
			return fmt.Errorf("companion %s of %q exited with %d: %s: %w",
				action, path, execErr.ExitCode, execErr.Stderr, err)
		}
		return fmt.Errorf("failed to run companion %s of %q: %w", action, path, err)
	}
	c.logger.Debug("Companion finished.", "action", action, "path", path, "stdout", result.Stdout)
	return nil
}
