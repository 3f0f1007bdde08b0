package task

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func shellTask(script string) *Task {
	return &Task{
		Name:   "sh",
		Source: SourceRust,
		Execution: ProcessExecution{
			Command: "/bin/sh",
			Args:    []string{"-c", script},
		},
		ProblemMatchers: []string{MatcherRustc, MatcherRustPanic},
	}
}

type recordingListener struct {
	mu        sync.Mutex
	started   int
	lines     []string
	problems  []Problem
	completed int
}

func (l *recordingListener) OnExecutionStarted(*Execution) {
	l.mu.Lock()
	l.started++
	l.mu.Unlock()
}

func (l *recordingListener) OnExecutionOutput(_ *Execution, line OutputLine) {
	l.mu.Lock()
	l.lines = append(l.lines, line.Content)
	l.mu.Unlock()
}

func (l *recordingListener) OnExecutionProblem(_ *Execution, p Problem) {
	l.mu.Lock()
	l.problems = append(l.problems, p)
	l.mu.Unlock()
}

func (l *recordingListener) OnExecutionCompleted(*Execution) {
	l.mu.Lock()
	l.completed++
	l.mu.Unlock()
}

func TestNewExecutor_Defaults(t *testing.T) {
	e := NewExecutor(ExecutorConfig{})
	if cap(e.sem) != 1 {
		t.Errorf("semaphore capacity = %d, want 1", cap(e.sem))
	}
	if e.problems == nil {
		t.Error("problems matcher is nil")
	}
}

func TestExecutor_ExecuteSync(t *testing.T) {
	var sink bytes.Buffer
	cfg := DefaultExecutorConfig()
	cfg.Output = &sink
	e := NewExecutor(cfg)

	listener := &recordingListener{}
	e.AddListener(listener)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := e.ExecuteSync(ctx, shellTask("echo hello; echo world"))
	if err != nil {
		t.Fatalf("ExecuteSync() error = %v", err)
	}

	state, code, execErr := exec.Result()
	if state != ExecutionStateSucceeded || code != 0 || execErr != nil {
		t.Errorf("Result() = %v, %d, %v", state, code, execErr)
	}
	if exec.ID == "" {
		t.Error("execution ID is empty")
	}
	if got := sink.String(); got != "hello\nworld\n" {
		t.Errorf("sink = %q", got)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if listener.started != 1 || listener.completed != 1 {
		t.Errorf("started=%d completed=%d, want 1/1", listener.started, listener.completed)
	}
	if len(listener.lines) != 2 {
		t.Errorf("lines = %v", listener.lines)
	}
}

func TestExecutor_ExitCode(t *testing.T) {
	e := NewExecutor(DefaultExecutorConfig())
	exec, err := e.ExecuteSync(context.Background(), shellTask("exit 101"))
	if err != nil {
		t.Fatalf("ExecuteSync() error = %v", err)
	}
	state, code, execErr := exec.Result()
	if state != ExecutionStateFailed {
		t.Errorf("state = %v, want failed", state)
	}
	if code != 101 {
		t.Errorf("exit code = %d, want 101", code)
	}
	if execErr == nil {
		t.Error("error is nil")
	}
}

func TestExecutor_StartFailure(t *testing.T) {
	e := NewExecutor(DefaultExecutorConfig())
	task := &Task{Name: "missing", Execution: ProcessExecution{Command: "/nonexistent/cargo"}}

	exec, err := e.ExecuteSync(context.Background(), task)
	if err != nil {
		t.Fatalf("ExecuteSync() error = %v", err)
	}
	if state, _, execErr := exec.Result(); state != ExecutionStateFailed || execErr == nil {
		t.Errorf("Result() = %v, %v", state, execErr)
	}
}

func TestExecutor_RejectsEmptyCommand(t *testing.T) {
	e := NewExecutor(DefaultExecutorConfig())
	if _, err := e.Execute(context.Background(), &Task{}); err == nil {
		t.Error("Execute() with empty command expected error")
	}
	if _, err := e.Execute(context.Background(), nil); err == nil {
		t.Error("Execute(nil) expected error")
	}
}

func TestExecutor_EnvironmentAndCwd(t *testing.T) {
	dir := t.TempDir()
	task := shellTask(`printf '%s|%s\n' "$RUST_BACKTRACE" "$(pwd)"`)
	task.Execution.Cwd = dir
	task.Execution.Env = map[string]string{"RUST_BACKTRACE": "short", "PATH": os.Getenv("PATH")}

	e := NewExecutor(DefaultExecutorConfig())
	exec, err := e.ExecuteSync(context.Background(), task)
	if err != nil {
		t.Fatalf("ExecuteSync() error = %v", err)
	}

	out := exec.Output()
	if len(out) != 1 {
		t.Fatalf("output = %v", out)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	parts := strings.SplitN(out[0].Content, "|", 2)
	if parts[0] != "short" {
		t.Errorf("RUST_BACKTRACE = %q, want short", parts[0])
	}
	if got, _ := filepath.EvalSymlinks(parts[1]); got != resolved {
		t.Errorf("cwd = %q, want %q", parts[1], dir)
	}
}

func TestExecutor_MatchesRustcProblems(t *testing.T) {
	script := `cat >&2 <<'EOF'
error[E0425]: cannot find value ` + "`x`" + ` in this scope
 --> src/main.rs:2:13
  |
warning: unused variable: ` + "`y`" + `
 --> src/lib.rs:7:9
EOF`
	listener := &recordingListener{}
	e := NewExecutor(DefaultExecutorConfig())
	e.AddListener(listener)

	exec, err := e.ExecuteSync(context.Background(), shellTask(script))
	if err != nil {
		t.Fatalf("ExecuteSync() error = %v", err)
	}

	problems := exec.ProblemList()
	if len(problems) != 2 {
		t.Fatalf("problems = %+v, want 2", problems)
	}
	if problems[0].File != "src/main.rs" || problems[0].Line != 2 || problems[0].Code != "E0425" {
		t.Errorf("problems[0] = %+v", problems[0])
	}
	if problems[1].Severity != ProblemSeverityWarning {
		t.Errorf("problems[1].Severity = %v, want warning", problems[1].Severity)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.problems) != 2 {
		t.Errorf("listener saw %d problems, want 2", len(listener.problems))
	}
}

func TestExecutor_Cancel(t *testing.T) {
	e := NewExecutor(DefaultExecutorConfig())
	exec, err := e.Execute(context.Background(), shellTask("sleep 30"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !exec.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	exec.Cancel()

	select {
	case <-exec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("execution not canceled")
	}
	if state, _, _ := exec.Result(); state != ExecutionStateCanceled {
		t.Errorf("state = %v, want canceled", state)
	}
}

func TestExecutor_ConcurrencyLimit(t *testing.T) {
	e := NewExecutor(ExecutorConfig{MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	first, err := e.Execute(ctx, shellTask("sleep 30"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	second, err := e.Execute(ctx, shellTask("echo never"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	cancel()
	for _, exec := range []*Execution{first, second} {
		select {
		case <-exec.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("execution not canceled")
		}
		if state, _, _ := exec.Result(); state != ExecutionStateCanceled {
			t.Errorf("state = %v, want canceled", state)
		}
	}
	if out := second.Output(); len(out) != 0 {
		t.Errorf("queued execution produced output %v", out)
	}
}

func TestExecution_Duration(t *testing.T) {
	ex := &Execution{}
	if ex.Duration() != 0 {
		t.Error("Duration() of unstarted execution != 0")
	}
	ex.StartTime = time.Now().Add(-time.Second)
	ex.EndTime = ex.StartTime.Add(500 * time.Millisecond)
	if ex.Duration() != 500*time.Millisecond {
		t.Errorf("Duration() = %v", ex.Duration())
	}
}
