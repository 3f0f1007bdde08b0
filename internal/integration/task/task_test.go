package task

import (
	"reflect"
	"testing"
)

func TestProcessExecution_CommandLine(t *testing.T) {
	x := ProcessExecution{Command: "/usr/bin/cargo", Args: []string{"test", "--", "it's", ""}}
	want := `/usr/bin/cargo test -- 'it'\''s' ''`
	if got := x.CommandLine(); got != want {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}
}

func TestProcessExecution_Environ(t *testing.T) {
	x := ProcessExecution{Env: map[string]string{"B": "2", "A": "1"}}
	want := []string{"A=1", "B=2"}
	if got := x.Environ(); !reflect.DeepEqual(got, want) {
		t.Errorf("Environ() = %v, want %v", got, want)
	}
}

func TestTask_Clone(t *testing.T) {
	orig := &Task{
		Name:            "run",
		Definition:      Definition{Args: []string{"--release"}, Env: map[string]string{"K": "v"}},
		Execution:       ProcessExecution{Args: []string{"run"}, Env: map[string]string{"K": "v"}},
		ProblemMatchers: []string{MatcherRustc},
	}

	c := orig.Clone()
	c.Definition.Args[0] = "--debug"
	c.Definition.Env["K"] = "x"
	c.Execution.Args[0] = "build"
	c.ProblemMatchers[0] = "$other"

	if orig.Definition.Args[0] != "--release" || orig.Definition.Env["K"] != "v" ||
		orig.Execution.Args[0] != "run" || orig.ProblemMatchers[0] != MatcherRustc {
		t.Errorf("Clone() shares state with original: %+v", orig)
	}
}

func TestShellEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"--flag=value", "--flag=value"},
		{"with space", "'with space'"},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		if got := shellEscape(tt.in); got != tt.want {
			t.Errorf("shellEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
