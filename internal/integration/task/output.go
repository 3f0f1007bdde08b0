package task

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"
)

// OutputStream identifies the source stream.
type OutputStream int

const (
	OutputStreamStdout OutputStream = iota
	OutputStreamStderr
)

// String returns the stream name.
func (s OutputStream) String() string {
	switch s {
	case OutputStreamStdout:
		return "stdout"
	case OutputStreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// OutputLine represents a single line of output.
type OutputLine struct {
	// Content is the line content without the newline.
	Content string

	Stream    OutputStream
	Timestamp time.Time

	// LineNumber is the sequential line number across both streams (1-based).
	LineNumber int
}

// OutputProcessor splits process output into lines, keeps the most recent
// ones and optionally mirrors each line to a sink.
type OutputProcessor struct {
	bufferSize int
	tail       *OutputBuffer
	sink       io.Writer

	lineCount int
	mu        sync.Mutex
}

// NewOutputProcessor creates a processor that reads lines of at most
// bufferSize bytes and retains the last keep lines. sink may be nil.
func NewOutputProcessor(bufferSize, keep int, sink io.Writer) *OutputProcessor {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &OutputProcessor{
		bufferSize: bufferSize,
		tail:       NewOutputBuffer(keep),
		sink:       sink,
	}
}

// Process reads r line by line until EOF, calling callback for each line.
// It returns the scanner error, if any.
func (p *OutputProcessor) Process(r io.Reader, stream OutputStream, callback func(OutputLine)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, p.bufferSize)), p.bufferSize)

	for scanner.Scan() {
		p.mu.Lock()
		p.lineCount++
		line := OutputLine{
			Content:    scanner.Text(),
			Stream:     stream,
			Timestamp:  time.Now(),
			LineNumber: p.lineCount,
		}
		p.tail.Add(line)
		if p.sink != nil {
			// Lines from both streams share one sink; the lock keeps them whole.
			_, _ = io.WriteString(p.sink, line.Content+"\n")
		}
		p.mu.Unlock()

		if callback != nil {
			callback(line)
		}
	}

	return scanner.Err()
}

// Lines returns the retained lines in order.
func (p *OutputProcessor) Lines() []OutputLine {
	return p.tail.Lines()
}

// LineCount returns the total number of lines processed.
func (p *OutputProcessor) LineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lineCount
}

// Content returns the retained lines joined by newlines.
func (p *OutputProcessor) Content() string {
	lines := p.tail.Lines()
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Content
	}
	return strings.Join(parts, "\n")
}

// OutputBuffer is a ring buffer of output lines.
type OutputBuffer struct {
	lines    []OutputLine
	capacity int
	head     int
	count    int
	mu       sync.RWMutex
}

// NewOutputBuffer creates a new ring buffer with the given capacity.
func NewOutputBuffer(capacity int) *OutputBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &OutputBuffer{
		lines:    make([]OutputLine, capacity),
		capacity: capacity,
	}
}

// Add adds a line, evicting the oldest when full.
func (b *OutputBuffer) Add(line OutputLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.head + b.count) % b.capacity
	b.lines[idx] = line

	if b.count < b.capacity {
		b.count++
	} else {
		b.head = (b.head + 1) % b.capacity
	}
}

// Lines returns all lines in order.
func (b *OutputBuffer) Lines() []OutputLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]OutputLine, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.lines[(b.head+i)%b.capacity]
	}
	return result
}

// Count returns the number of lines in the buffer.
func (b *OutputBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
