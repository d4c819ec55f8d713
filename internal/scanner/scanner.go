// Package scanner finds the analyzed tasks of a workspace. A task is a
// "<name>-otawa" directory holding a stats/ directory with a program
// graph. It respects .obviewsignore files with gitignore-style patterns.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	taskSuffix = "-otawa"
	statsDir   = "stats"
	viewSuffix = "-view.csv"
)

// graphFiles are the program graph files, in lookup order.
var graphFiles = []string{"cfg.csv", "cfg.xml"}

// TaskDir describes one task directory found in a workspace.
type TaskDir struct {
	Path     string `json:"path"`      // relative path from root, slash separated
	FullPath string `json:"full_path"` // absolute path
	Dir      string `json:"dir"`       // directory holding the task directory
	Name     string `json:"name"`      // task name
	Graph    string `json:"graph"`     // graph file name
	Stats    int    `json:"stats"`
	Views    int    `json:"views"`
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden directories (starting with .)
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .obviewsignore)
	MaxDepth        int      // Directory levels below root; 0 is unlimited
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".obviewsignore",
		DefaultExcludes: []string{
			"node_modules",
			".git",
			".hg",
			".svn",
			"CVS",
		},
	}
}

// Scanner walks a workspace.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = DefaultOptions().IgnoreFileName
	}
	return &Scanner{opts: opts}
}

// Scan returns the task directories below root sorted by path. Task
// directories are not searched further.
func (s *Scanner) Scan(root string) ([]TaskDir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	patterns, err := s.loadIgnorePatterns(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var tasks []TaskDir
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if s.isDefaultExcluded(d.Name()) || ignored(rel, patterns) {
			return filepath.SkipDir
		}

		if strings.HasSuffix(d.Name(), taskSuffix) {
			if t, ok := inspect(path); ok {
				t.Path = rel
				tasks = append(tasks, t)
				return filepath.SkipDir
			}
		}

		if s.opts.MaxDepth > 0 && strings.Count(rel, "/")+1 >= s.opts.MaxDepth {
			return filepath.SkipDir
		}

		nested, err := s.loadIgnorePatterns(path)
		if err == nil && len(nested) > 0 {
			patterns = append(patterns, prefixed(rel, nested)...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Path < tasks[j].Path })
	return tasks, nil
}

// inspect reports whether dir is a task directory and counts its files.
func inspect(dir string) (TaskDir, bool) {
	t := TaskDir{
		FullPath: dir,
		Dir:      filepath.Dir(dir),
		Name:     strings.TrimSuffix(filepath.Base(dir), taskSuffix),
	}
	stats := filepath.Join(dir, statsDir)
	for _, g := range graphFiles {
		if info, err := os.Stat(filepath.Join(stats, g)); err == nil && !info.IsDir() {
			t.Graph = g
			break
		}
	}
	if t.Graph == "" {
		return t, false
	}

	entries, err := os.ReadDir(stats)
	if err != nil {
		return t, false
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() || !strings.HasSuffix(name, ".csv") || name == graphFiles[0]:
		case strings.HasSuffix(name, viewSuffix):
			t.Views++
		default:
			t.Stats++
		}
	}
	return t, true
}

// prefixed anchors the patterns of a nested ignore file to its directory.
func prefixed(dir string, patterns []IgnorePattern) []IgnorePattern {
	out := make([]IgnorePattern, 0, len(patterns))
	for _, p := range patterns {
		raw := p.pattern
		neg := ""
		if strings.HasPrefix(raw, "!") {
			neg, raw = "!", raw[1:]
		}
		raw = strings.TrimPrefix(raw, "/")
		if !strings.Contains(strings.TrimSuffix(raw, "/"), "/") {
			raw = "**/" + raw
		}
		out = append(out, ParseIgnorePattern(neg+"/"+dir+"/"+raw))
	}
	return out
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file of dir. A missing file yields
// no patterns.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// Scan scans a workspace with default options.
func Scan(root string) ([]TaskDir, error) {
	return New(DefaultOptions()).Scan(root)
}
