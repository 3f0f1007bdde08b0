package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Problem matcher names understood by the executor.
const (
	MatcherRustc      = "$rustc"
	MatcherRustPanic  = "$rust-panic"
	matcherNamePrefix = "$"
)

// ProblemSeverity indicates the severity of a problem.
type ProblemSeverity string

const (
	ProblemSeverityError   ProblemSeverity = "error"
	ProblemSeverityWarning ProblemSeverity = "warning"
	ProblemSeverityInfo    ProblemSeverity = "info"
)

// Problem represents a detected problem from task output.
type Problem struct {
	// File is the file path as printed by the tool.
	File string

	// Line is the line number (1-based).
	Line int

	// Column is the column number (1-based, 0 if unknown).
	Column int

	// Severity indicates error, warning, or info.
	Severity ProblemSeverity

	// Code is an optional error code such as E0425.
	Code string

	// Message is the problem description.
	Message string

	// Source is the tool that reported the problem.
	Source string
}

// String formats the problem the way compilers print locations.
func (p Problem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s", p.File, p.Line, p.Column, p.Severity)
	if p.Code != "" {
		fmt.Fprintf(&b, "[%s]", p.Code)
	}
	if p.Message != "" {
		b.WriteString(": ")
		b.WriteString(p.Message)
	}
	return b.String()
}

// ProblemPattern extracts fields from one output line. Capture group indexes
// are 1-based; 0 skips the field.
type ProblemPattern struct {
	Regexp   string
	File     int
	Line     int
	Column   int
	Severity int
	Code     int
	Message  int
}

// ProblemMatcherDefinition defines a problem matcher. When it has several
// patterns they must match consecutive lines; the problem is reported when
// the last one matches.
type ProblemMatcherDefinition struct {
	Name            string
	Owner           string
	Patterns        []ProblemPattern
	DefaultSeverity ProblemSeverity
}

type compiledPattern struct {
	regex   *regexp.Regexp
	pattern ProblemPattern
}

type compiledDefinition struct {
	def      ProblemMatcherDefinition
	patterns []compiledPattern
}

// LineMatcher is a stateful matcher for one output stream.
type LineMatcher struct {
	def     *compiledDefinition
	next    int
	pending Problem
}

// Match feeds one line to the matcher and reports a completed problem.
func (m *LineMatcher) Match(line string) (Problem, bool) {
	if m.next > 0 {
		if p, ok := m.advance(line); ok {
			return p, true
		}
		if m.next > 0 {
			return Problem{}, false
		}
	}
	return m.advance(line)
}

// advance tries the pattern at m.next. A mismatch resets the sequence.
func (m *LineMatcher) advance(line string) (Problem, bool) {
	cp := m.def.patterns[m.next]
	matches := cp.regex.FindStringSubmatch(line)
	if matches == nil {
		m.reset()
		return Problem{}, false
	}

	if m.next == 0 {
		m.pending = Problem{Source: m.def.def.Owner, Severity: m.def.def.DefaultSeverity}
	}
	fill(&m.pending, cp.pattern, matches)

	m.next++
	if m.next < len(m.def.patterns) {
		return Problem{}, false
	}

	p := m.pending
	m.reset()
	if p.Severity == "" {
		p.Severity = ProblemSeverityError
	}
	return p, true
}

func (m *LineMatcher) reset() {
	m.next = 0
	m.pending = Problem{}
}

func fill(p *Problem, pattern ProblemPattern, matches []string) {
	group := func(i int) (string, bool) {
		if i > 0 && i < len(matches) && matches[i] != "" {
			return matches[i], true
		}
		return "", false
	}
	number := func(i int) (int, bool) {
		s, ok := group(i)
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	}

	if s, ok := group(pattern.File); ok {
		p.File = s
	}
	if n, ok := number(pattern.Line); ok {
		p.Line = n
	}
	if n, ok := number(pattern.Column); ok {
		p.Column = n
	}
	if s, ok := group(pattern.Severity); ok {
		p.Severity = parseSeverity(s)
	}
	if s, ok := group(pattern.Code); ok {
		p.Code = s
	}
	if s, ok := group(pattern.Message); ok {
		p.Message = s
	}
}

func parseSeverity(s string) ProblemSeverity {
	switch strings.ToLower(s) {
	case "error", "fatal":
		return ProblemSeverityError
	case "warning", "warn":
		return ProblemSeverityWarning
	case "info", "note", "help":
		return ProblemSeverityInfo
	default:
		return ProblemSeverityError
	}
}

// ProblemMatcher is a registry of problem matcher definitions.
type ProblemMatcher struct {
	matchers map[string]*compiledDefinition
	mu       sync.RWMutex
}

// NewProblemMatcher creates a registry holding the built-in Rust matchers.
func NewProblemMatcher() *ProblemMatcher {
	pm := &ProblemMatcher{
		matchers: make(map[string]*compiledDefinition),
	}
	pm.registerBuiltinMatchers()
	return pm
}

// Register compiles and registers a problem matcher definition.
func (pm *ProblemMatcher) Register(def ProblemMatcherDefinition) error {
	if !strings.HasPrefix(def.Name, matcherNamePrefix) {
		return fmt.Errorf("problem matcher %q: name must start with %q", def.Name, matcherNamePrefix)
	}
	if len(def.Patterns) == 0 {
		return fmt.Errorf("problem matcher %q: no patterns", def.Name)
	}

	compiled := &compiledDefinition{def: def}
	for _, p := range def.Patterns {
		re, err := regexp.Compile(p.Regexp)
		if err != nil {
			return fmt.Errorf("problem matcher %q: %w", def.Name, err)
		}
		compiled.patterns = append(compiled.patterns, compiledPattern{regex: re, pattern: p})
	}

	pm.mu.Lock()
	pm.matchers[def.Name] = compiled
	pm.mu.Unlock()
	return nil
}

// NewLineMatcher returns a fresh matcher for the named definition, or nil if
// the name is unknown.
func (pm *ProblemMatcher) NewLineMatcher(name string) *LineMatcher {
	pm.mu.RLock()
	def, ok := pm.matchers[name]
	pm.mu.RUnlock()
	if !ok {
		return nil
	}
	return &LineMatcher{def: def}
}

// ListMatchers returns all registered matcher names.
func (pm *ProblemMatcher) ListMatchers() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.matchers))
	for name := range pm.matchers {
		names = append(names, name)
	}
	return names
}

func (pm *ProblemMatcher) registerBuiltinMatchers() {
	// error[E0425]: cannot find value `x` in this scope
	//  --> src/main.rs:2:13
	_ = pm.Register(ProblemMatcherDefinition{
		Name:  MatcherRustc,
		Owner: "rustc",
		Patterns: []ProblemPattern{
			{
				Regexp:   `^(warning|warn|error)(?:\[(.*?)\])?: (.*)$`,
				Severity: 1,
				Code:     2,
				Message:  3,
			},
			{
				Regexp: `^\s*-->\s*(.+?):(\d+):(\d+)\s*$`,
				File:   1,
				Line:   2,
				Column: 3,
			},
		},
		DefaultSeverity: ProblemSeverityError,
	})

	// thread 'main' panicked at src/main.rs:5:5:
	// thread 'main' panicked at 'boom', src/main.rs:5:5
	_ = pm.Register(ProblemMatcherDefinition{
		Name:  MatcherRustPanic,
		Owner: "rust-panic",
		Patterns: []ProblemPattern{
			{
				Regexp:  `^thread '.*' panicked at (?:'(.*)', )?(.+?):(\d+):(\d+):?$`,
				Message: 1,
				File:    2,
				Line:    3,
				Column:  4,
			},
		},
		DefaultSeverity: ProblemSeverityError,
	})
}
