// Package source locates and loads the source files of an analyzed
// program and highlights them for display.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/l3aro/obviews/internal/log"
)

// ErrNotFound is returned when a source cannot be found in any lookup path.
var ErrNotFound = errors.New("source not found")

// Source is one loaded source file.
type Source struct {
	Name  string // name as referenced by the analyzer
	Path  string // resolved path on disk
	Lines []string

	content   []byte
	colorizer Colorizer

	once    sync.Once
	colored []string
}

// Line returns line n (1-based), or "" when out of range.
func (s *Source) Line(n int) string {
	if n < 1 || n > len(s.Lines) {
		return ""
	}
	return s.Lines[n-1]
}

// Colored returns the highlighted markup of every line. It falls back to
// plain escaping when highlighting fails.
func (s *Source) Colored() []string {
	s.once.Do(func() {
		colored, err := s.colorizer.Colorize(s.content)
		if err != nil || len(colored) != len(s.Lines) {
			colored, _ = Plain{}.Colorize(s.content)
		}
		s.colored = colored
	})
	return s.colored
}

// ColoredLine returns the highlighted markup of line n (1-based).
func (s *Source) ColoredLine(n int) string {
	c := s.Colored()
	if n < 1 || n > len(c) {
		return ""
	}
	return c[n-1]
}

// Registry maps file extensions to colorizers.
type Registry map[string]Colorizer

// DefaultRegistry highlights the C family with tree-sitter.
func DefaultRegistry() Registry {
	r := make(Registry)
	for ext, lang := range languageMap {
		switch lang {
		case "c":
			r[ext] = NewC()
		case "cpp":
			r[ext] = NewCPP()
		}
	}
	return r
}

// Lookup returns the colorizer for path, or Plain.
func (r Registry) Lookup(path string) Colorizer {
	if c, ok := r[filepath.Ext(path)]; ok {
		return c
	}
	return Plain{}
}

// Manager finds sources through a list of lookup directories and keeps
// them loaded for the life of the process.
type Manager struct {
	mu       sync.Mutex
	paths    []string
	registry Registry
	sources  map[string]*Source
	missing  map[string]bool
	logger   log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry replaces the default colorizers.
func WithRegistry(r Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithLogger sets the logger used to report missing sources.
func WithLogger(l log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a manager searching paths in order. No paths means
// the current directory.
func NewManager(paths []string, opts ...Option) *Manager {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	m := &Manager{
		paths:    paths,
		registry: DefaultRegistry(),
		sources:  make(map[string]*Source),
		missing:  make(map[string]bool),
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Paths returns the lookup directories.
func (m *Manager) Paths() []string {
	return append([]string(nil), m.paths...)
}

// Resolve returns the on-disk path of name.
func (m *Manager) Resolve(name string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	for _, dir := range m.paths {
		p := filepath.Join(dir, name)
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

// Find loads the source named name once.
func (m *Manager) Find(name string) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[name]; ok {
		return s, nil
	}
	if m.missing[name] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	path, ok := m.Resolve(name)
	if !ok {
		m.missing[name] = true
		m.logger.Warn("source not found", "name", name, "paths", m.paths)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", path, err)
	}

	s := &Source{
		Name:      name,
		Path:      path,
		Lines:     SplitLines(content),
		content:   content,
		colorizer: m.registry.Lookup(path),
	}
	m.sources[name] = s
	return s, nil
}

// Available filters names down to the sources that can be found, sorted.
func (m *Manager) Available(names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := m.Resolve(n); ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
