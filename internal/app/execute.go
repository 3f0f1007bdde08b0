package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/cargorun/internal/integration/task"
	"github.com/dshills/cargorun/internal/project/watcher"
)

// clearScreen homes the cursor and erases the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// execute runs t to completion and returns its exit code. A task that ran
// and failed is not an error; failing to start it is.
func (a *Application) execute(ctx context.Context, s *Session, t *task.Task) (int, error) {
	if t.Presentation.Clear && isTerminal(a.opts.Stdout) {
		fmt.Fprint(a.opts.Stdout, clearScreen)
	}

	rep := &reporter{logger: s.Logger}
	var sink io.Writer
	switch t.Presentation.Reveal {
	case task.RevealNever:
	case task.RevealSilent:
		sink = a.opts.Stdout
	default:
		rep.header = a.opts.Stderr
		sink = a.opts.Stdout
	}

	cfg := task.DefaultExecutorConfig()
	cfg.KeepLines = s.Config.Task.KeepLines
	cfg.Output = sink
	executor := task.NewExecutor(cfg, task.WithExecutorLogger(s.Logger.Named("exec")))
	executor.AddListener(rep)

	ex, err := executor.ExecuteSync(ctx, t)
	if err != nil {
		return 1, err
	}
	state, code, runErr := ex.Result()

	switch state {
	case task.ExecutionStateSucceeded:
		return 0, nil
	case task.ExecutionStateCanceled:
		return exitCode(context.Canceled), runErr
	}

	if sink == nil {
		// Output was hidden; show what was kept now that it matters.
		for _, line := range ex.Output() {
			fmt.Fprintln(a.opts.Stderr, line.Content)
		}
	}
	if summary := rep.summary(); summary != "" {
		fmt.Fprintf(a.opts.Stderr, "%s: %s\n", t.Name, summary)
	}
	if code < 0 {
		return 1, componentErr("task", "start", runErr)
	}
	return code, nil
}

// reporter follows one execution: it prints the command header when asked
// to and tallies the problems the matchers report.
type reporter struct {
	logger *zap.Logger
	header io.Writer

	mu       sync.Mutex
	errors   int
	warnings int
}

func (r *reporter) OnExecutionStarted(ex *task.Execution) {
	if r.header != nil {
		fmt.Fprintf(r.header, "> %s\n", ex.Task.Execution.CommandLine())
	}
}

func (r *reporter) OnExecutionOutput(*task.Execution, task.OutputLine) {}

func (r *reporter) OnExecutionProblem(_ *task.Execution, p task.Problem) {
	r.logger.Debug("problem", zap.String("problem", p.String()))
	r.mu.Lock()
	defer r.mu.Unlock()
	switch p.Severity {
	case task.ProblemSeverityError:
		r.errors++
	case task.ProblemSeverityWarning:
		r.warnings++
	}
}

func (r *reporter) OnExecutionCompleted(ex *task.Execution) {
	state, code, _ := ex.Result()
	r.logger.Debug("task completed",
		zap.String("state", string(state)),
		zap.Int("exit_code", code),
		zap.Duration("took", ex.Duration()))
}

// summary describes the problems seen, or returns "" when there were none.
func (r *reporter) summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs, warns := r.errors, r.warnings
	switch {
	case errs == 0 && warns == 0:
		return ""
	case warns == 0:
		return fmt.Sprintf("%d error(s)", errs)
	case errs == 0:
		return fmt.Sprintf("%d warning(s)", warns)
	default:
		return fmt.Sprintf("%d error(s), %d warning(s)", errs, warns)
	}
}

// watch re-runs t after every batch of source changes until ctx is done and
// returns the last exit code.
func (a *Application) watch(ctx context.Context, s *Session, t *task.Task, code int) (int, error) {
	w, err := watcher.New(s.Workspace.Root, watcher.Config{
		Debounce: s.Config.Watch.Debounce,
		Ignore:   s.Config.Watch.Ignore,
		Files:    s.Config.Watch.Files,
	}, watcher.WithLogger(s.Logger.Named("watch")))
	if err != nil {
		return code, componentErr("watch", "start", err)
	}
	defer w.Close()

	fmt.Fprintf(a.opts.Stderr, "watching %s for changes\n", w.Root())
	err = w.Run(ctx, func(b watcher.Batch) {
		s.Logger.Info("rerun", zap.Strings("changed", b.Paths))
		var runErr error
		code, runErr = a.execute(ctx, s, t.Clone())
		if runErr != nil && ctx.Err() == nil {
			fmt.Fprintf(a.opts.Stderr, "error: %v\n", runErr)
		}
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return code, nil
	}
	return code, err
}
