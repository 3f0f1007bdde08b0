package loader

import (
	"encoding/json"
	"os"
	"strings"
)

// EnvLoader loads configuration from environment variables.
//
// CARGORUN_TASK_CARGO_RUNNER=cross becomes task.cargo_runner = "cross". Only
// variables whose first segment names a known section are read; values stay
// strings (or JSON arrays) and are converted when the result is decoded.
type EnvLoader struct {
	prefix   string
	sections map[string]bool
	mapping  map[string]string
	environ  func() []string
}

// NewEnvLoader creates a loader for variables starting with prefix (which
// includes the trailing underscore) that configure one of sections.
func NewEnvLoader(prefix string, sections ...string) *EnvLoader {
	l := &EnvLoader{
		prefix:   prefix,
		sections: make(map[string]bool, len(sections)),
		mapping:  make(map[string]string),
		environ:  os.Environ,
	}
	for _, s := range sections {
		l.sections[s] = true
	}
	return l
}

// AddMapping maps envVar to a configuration path, bypassing the naming rule.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	l.mapping[envVar] = configPath
}

// WithEnviron replaces the environment source.
func (l *EnvLoader) WithEnviron(environ func() []string) *EnvLoader {
	if environ != nil {
		l.environ = environ
	}
	return l
}

// Load reads the environment and returns a configuration map, or nil when no
// variable applies.
func (l *EnvLoader) Load() (map[string]any, error) {
	var config map[string]any
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, ok := l.mapping[name]
		if !ok {
			path, ok = l.envToPath(name)
		}
		if !ok {
			continue
		}
		if config == nil {
			config = make(map[string]any)
		}
		SetByPath(config, path, parseValue(value))
	}
	return config, nil
}

// envToPath converts CARGORUN_WATCH_DEBOUNCE to watch.debounce.
func (l *EnvLoader) envToPath(env string) (string, bool) {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, key, ok := strings.Cut(name, "_")
	if !ok || key == "" || !l.sections[section] {
		return "", false
	}
	return section + "." + key, true
}

// parseValue keeps scalars as strings and decodes JSON arrays, so list
// settings can be written as ["target/", "*.bak"].
func parseValue(s string) any {
	if strings.HasPrefix(s, "[") {
		var v []any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
