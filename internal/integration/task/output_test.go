package task

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputStream_String(t *testing.T) {
	tests := []struct {
		stream OutputStream
		want   string
	}{
		{OutputStreamStdout, "stdout"},
		{OutputStreamStderr, "stderr"},
		{OutputStream(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.stream.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestOutputProcessor_Process(t *testing.T) {
	var sink bytes.Buffer
	p := NewOutputProcessor(0, 10, &sink)

	var seen []OutputLine
	err := p.Process(strings.NewReader("one\ntwo\nthree"), OutputStreamStderr, func(l OutputLine) {
		seen = append(seen, l)
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("callback saw %d lines, want 3", len(seen))
	}
	if seen[2].LineNumber != 3 || seen[2].Stream != OutputStreamStderr {
		t.Errorf("last line = %+v", seen[2])
	}
	if sink.String() != "one\ntwo\nthree\n" {
		t.Errorf("sink = %q", sink.String())
	}
	if p.Content() != "one\ntwo\nthree" {
		t.Errorf("Content() = %q", p.Content())
	}
	if p.LineCount() != 3 {
		t.Errorf("LineCount() = %d", p.LineCount())
	}
}

func TestOutputProcessor_KeepsTail(t *testing.T) {
	p := NewOutputProcessor(0, 2, nil)
	_ = p.Process(strings.NewReader("a\nb\nc\n"), OutputStreamStdout, nil)

	lines := p.Lines()
	if len(lines) != 2 || lines[0].Content != "b" || lines[1].Content != "c" {
		t.Errorf("Lines() = %+v", lines)
	}
	if p.LineCount() != 3 {
		t.Errorf("LineCount() = %d, want 3", p.LineCount())
	}
}

func TestOutputProcessor_LineTooLong(t *testing.T) {
	p := NewOutputProcessor(8, 10, nil)
	err := p.Process(strings.NewReader(strings.Repeat("x", 64)+"\n"), OutputStreamStdout, nil)
	if err == nil {
		t.Error("Process() expected token too long error")
	}
}

func TestOutputBuffer(t *testing.T) {
	b := NewOutputBuffer(0)
	if b.capacity != 1000 {
		t.Errorf("default capacity = %d", b.capacity)
	}

	b = NewOutputBuffer(3)
	for _, s := range []string{"1", "2", "3", "4"} {
		b.Add(OutputLine{Content: s})
	}
	if b.Count() != 3 {
		t.Errorf("Count() = %d", b.Count())
	}
	lines := b.Lines()
	if lines[0].Content != "2" || lines[2].Content != "4" {
		t.Errorf("Lines() = %+v", lines)
	}
}
