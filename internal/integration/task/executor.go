package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutorConfig configures the task executor.
type ExecutorConfig struct {
	// OutputBufferSize is the longest output line accepted, in bytes.
	OutputBufferSize int

	// KeepLines is how many trailing output lines each execution retains.
	KeepLines int

	// MaxConcurrent is the maximum concurrent task executions.
	MaxConcurrent int

	// Output receives every output line as it arrives. May be nil.
	Output io.Writer
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		OutputBufferSize: 1024 * 1024,
		KeepLines:        1000,
		MaxConcurrent:    1,
	}
}

// ExecutionState represents the state of a task execution.
type ExecutionState string

const (
	ExecutionStatePending   ExecutionState = "pending"
	ExecutionStateRunning   ExecutionState = "running"
	ExecutionStateSucceeded ExecutionState = "succeeded"
	ExecutionStateFailed    ExecutionState = "failed"
	ExecutionStateCanceled  ExecutionState = "canceled"
)

// Execution represents a running or completed task execution.
type Execution struct {
	ID   string
	Task *Task

	State     ExecutionState
	StartTime time.Time
	EndTime   time.Time

	// ExitCode is the process exit code (-1 if not yet finished).
	ExitCode int

	Error    error
	Problems []Problem

	cmd              *osexec.Cmd
	cancel           context.CancelFunc
	output           *OutputProcessor
	done             chan struct{}
	doneOnce         sync.Once
	notifiedComplete bool
	mu               sync.RWMutex
}

// ExecutionListener receives execution events.
type ExecutionListener interface {
	OnExecutionStarted(exec *Execution)
	OnExecutionOutput(exec *Execution, line OutputLine)
	OnExecutionProblem(exec *Execution, problem Problem)
	OnExecutionCompleted(exec *Execution)
}

// Executor runs tasks as child processes.
type Executor struct {
	config ExecutorConfig
	logger *zap.Logger

	sem      chan struct{}
	problems *ProblemMatcher

	listeners   []ExecutionListener
	listenersMu sync.RWMutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a new task executor.
func NewExecutor(config ExecutorConfig, opts ...ExecutorOption) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}

	e := &Executor{
		config:   config,
		logger:   zap.NewNop(),
		sem:      make(chan struct{}, config.MaxConcurrent),
		problems: NewProblemMatcher(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddListener registers listener for every later execution.
func (e *Executor) AddListener(listener ExecutionListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Execute starts a task and returns the execution handle.
func (e *Executor) Execute(ctx context.Context, task *Task) (*Execution, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}
	if task.Execution.Command == "" {
		return nil, errors.New("empty command")
	}

	execCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{
		ID:       uuid.NewString(),
		Task:     task,
		State:    ExecutionStatePending,
		ExitCode: -1,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go e.runExecution(execCtx, exec)

	return exec, nil
}

// ExecuteSync runs a task and waits for completion.
func (e *Executor) ExecuteSync(ctx context.Context, task *Task) (*Execution, error) {
	exec, err := e.Execute(ctx, task)
	if err != nil {
		return nil, err
	}
	<-exec.Done()
	return exec, nil
}

func (e *Executor) runExecution(ctx context.Context, exec *Execution) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		e.setExecutionState(exec, ExecutionStateCanceled, ctx.Err())
		return
	}

	cmd := e.buildCommand(ctx, exec.Task)
	exec.mu.Lock()
	exec.cmd = cmd
	exec.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("stderr pipe: %w", err))
		return
	}

	outputProc := NewOutputProcessor(e.config.OutputBufferSize, e.config.KeepLines, e.config.Output)
	exec.mu.Lock()
	exec.output = outputProc
	exec.mu.Unlock()

	exec.mu.Lock()
	exec.StartTime = time.Now()
	exec.State = ExecutionStateRunning
	exec.mu.Unlock()

	e.logger.Info("task started",
		zap.String("id", exec.ID),
		zap.String("task", exec.Task.Name),
		zap.String("command", exec.Task.Execution.CommandLine()))
	e.notifyStarted(exec)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			e.setExecutionState(exec, ExecutionStateCanceled, ctx.Err())
			return
		}
		e.setExecutionState(exec, ExecutionStateFailed, fmt.Errorf("start: %w", err))
		return
	}

	var outputWg sync.WaitGroup
	outputWg.Add(2)
	go func() {
		defer outputWg.Done()
		e.processOutput(exec, stdout, OutputStreamStdout)
	}()
	go func() {
		defer outputWg.Done()
		e.processOutput(exec, stderr, OutputStreamStderr)
	}()

	outputWg.Wait()
	err = cmd.Wait()

	exec.mu.Lock()
	exec.EndTime = time.Now()
	switch {
	case ctx.Err() != nil:
		exec.State = ExecutionStateCanceled
		exec.Error = ctx.Err()
	case err != nil:
		exec.State = ExecutionStateFailed
		exec.Error = err
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			exec.ExitCode = exitErr.ExitCode()
		}
	default:
		exec.State = ExecutionStateSucceeded
		exec.ExitCode = 0
	}
	state, code := exec.State, exec.ExitCode
	exec.mu.Unlock()

	e.logger.Info("task finished",
		zap.String("id", exec.ID),
		zap.String("state", string(state)),
		zap.Int("exit_code", code),
		zap.Duration("duration", exec.Duration()))
	e.notifyCompleted(exec)
}

func (e *Executor) buildCommand(ctx context.Context, task *Task) *osexec.Cmd {
	x := task.Execution
	cmd := osexec.CommandContext(ctx, x.Command, x.Args...)
	cmd.Dir = x.Cwd
	if len(x.Env) > 0 {
		cmd.Env = x.Environ()
	} else {
		cmd.Env = os.Environ()
	}

	// Own process group so cancellation reaches cargo's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}

// processOutput reads one stream, matching problems with a matcher per stream.
func (e *Executor) processOutput(exec *Execution, r io.Reader, stream OutputStream) {
	var matchers []*LineMatcher
	for _, name := range exec.Task.ProblemMatchers {
		if m := e.problems.NewLineMatcher(name); m != nil {
			matchers = append(matchers, m)
		}
	}

	err := exec.output.Process(r, stream, func(line OutputLine) {
		e.notifyOutput(exec, line)

		for _, m := range matchers {
			if problem, ok := m.Match(line.Content); ok {
				exec.mu.Lock()
				exec.Problems = append(exec.Problems, problem)
				exec.mu.Unlock()
				e.notifyProblem(exec, problem)
			}
		}
	})
	if err != nil {
		e.logger.Debug("output scan stopped", zap.String("stream", stream.String()), zap.Error(err))
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (e *Executor) setExecutionState(exec *Execution, state ExecutionState, err error) {
	exec.mu.Lock()
	exec.State = state
	exec.Error = err
	if exec.EndTime.IsZero() {
		exec.EndTime = time.Now()
	}
	exec.mu.Unlock()

	if err != nil {
		e.logger.Warn("task did not run", zap.String("id", exec.ID), zap.Error(err))
	}
	if state != ExecutionStatePending && state != ExecutionStateRunning {
		e.notifyCompleted(exec)
	}
}

func (e *Executor) snapshotListeners() []ExecutionListener {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	listeners := make([]ExecutionListener, len(e.listeners))
	copy(listeners, e.listeners)
	return listeners
}

func (e *Executor) notifyStarted(exec *Execution) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionStarted(exec)
	}
}

func (e *Executor) notifyOutput(exec *Execution, line OutputLine) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionOutput(exec, line)
	}
}

func (e *Executor) notifyProblem(exec *Execution, problem Problem) {
	for _, l := range e.snapshotListeners() {
		l.OnExecutionProblem(exec, problem)
	}
}

func (e *Executor) notifyCompleted(exec *Execution) {
	exec.mu.Lock()
	if exec.notifiedComplete {
		exec.mu.Unlock()
		return
	}
	exec.notifiedComplete = true
	exec.mu.Unlock()

	// Listeners run before Done is closed so waiters observe their effects.
	for _, l := range e.snapshotListeners() {
		l.OnExecutionCompleted(exec)
	}
	exec.markDone()
}

// Cancel cancels the execution.
func (ex *Execution) Cancel() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.cancel != nil {
		ex.cancel()
	}
}

// Done returns a channel that's closed when execution completes.
func (ex *Execution) Done() <-chan struct{} {
	return ex.done
}

func (ex *Execution) markDone() {
	ex.doneOnce.Do(func() {
		close(ex.done)
	})
}

// IsRunning returns true if the execution is still running.
func (ex *Execution) IsRunning() bool {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.State == ExecutionStateRunning
}

// Result returns the final state, exit code and error.
func (ex *Execution) Result() (ExecutionState, int, error) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.State, ex.ExitCode, ex.Error
}

// ProblemList returns a copy of the problems found so far.
func (ex *Execution) ProblemList() []Problem {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	out := make([]Problem, len(ex.Problems))
	copy(out, ex.Problems)
	return out
}

// Duration returns the execution duration.
func (ex *Execution) Duration() time.Duration {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	if ex.StartTime.IsZero() {
		return 0
	}
	end := ex.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(ex.StartTime)
}

// Output returns the retained output lines.
func (ex *Execution) Output() []OutputLine {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	if ex.output == nil {
		return nil
	}
	return ex.output.Lines()
}
