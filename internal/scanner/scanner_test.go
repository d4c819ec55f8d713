package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates the given files (empty unless content is set) below dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func paths(tasks []TaskDir) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Path)
	}
	return out
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.elf":                               "",
		"main-otawa/stats/cfg.csv":               "",
		"main-otawa/stats/ipet-total_time.csv":   "",
		"main-otawa/stats/ipet-total_count.csv":  "",
		"main-otawa/stats/source-view.csv":       "",
		"main-otawa/stats/disassembly-view.csv":  "",
		"bench/fir/task1-otawa/stats/cfg.xml":    "",
		"bench/fir/task1-otawa/stats/energy.csv": "",
		"bench/empty-otawa/stats/notes.txt":      "",
		".cache/main-otawa/stats/cfg.csv":        "",
		"node_modules/x-otawa/stats/cfg.csv":     "",
	})

	tasks, err := New(DefaultOptions()).Scan(tmpDir)
	require.NoError(t, err)
	require.Equal(t, []string{"bench/fir/task1-otawa", "main-otawa"}, paths(tasks))

	fir := tasks[0]
	assert.Equal(t, "task1", fir.Name)
	assert.Equal(t, "cfg.xml", fir.Graph)
	assert.Equal(t, 1, fir.Stats)
	assert.Equal(t, 0, fir.Views)
	assert.Equal(t, filepath.Join(tmpDir, "bench", "fir"), fir.Dir)

	main := tasks[1]
	assert.Equal(t, "main", main.Name)
	assert.Equal(t, "cfg.csv", main.Graph)
	assert.Equal(t, 2, main.Stats)
	assert.Equal(t, 2, main.Views)
	assert.Equal(t, filepath.Join(tmpDir, "main-otawa"), main.FullPath)
}

func TestScannerWithIgnoreFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		".obviewsignore":                   "# old runs\narchive/\n*-tmp-otawa\n",
		"archive/main-otawa/stats/cfg.csv": "",
		"a/main-otawa/stats/cfg.csv":       "",
		"a/x-tmp-otawa/stats/cfg.csv":      "",
		"b/.obviewsignore":                 "skip/\n!keep-otawa\n",
		"b/skip/main-otawa/stats/cfg.csv":  "",
		"b/keep-otawa/stats/cfg.csv":       "",
	})

	tasks, err := Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/main-otawa", "b/keep-otawa"}, paths(tasks))
}

func TestScannerOptions(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		".hidden/main-otawa/stats/cfg.csv": "",
		"a/b/main-otawa/stats/cfg.csv":     "",
	})

	opts := DefaultOptions()
	opts.SkipHidden = false
	tasks, err := New(opts).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden/main-otawa", "a/b/main-otawa"}, paths(tasks))

	opts.MaxDepth = 2
	tasks, err = New(opts).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{".hidden/main-otawa"}, paths(tasks))
}

func TestScanMissingRoot(t *testing.T) {
	tasks, err := Scan(filepath.Join(t.TempDir(), "nowhere"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		// Simple patterns
		{"*.elf", "prog.elf", true},
		{"*.elf", "bin/prog.elf", true},
		{"*.elf", "prog.c", false},
		{"build/", "build/main-otawa", true},
		{"build/", "other/build/main-otawa", true},
		{"build/", "builder", false},

		// Absolute patterns
		{"/build/", "build/main-otawa", true},
		{"/build/", "src/build/main-otawa", false},

		// Glob patterns
		{"*-tmp-otawa", "x-tmp-otawa", true},
		{"*-tmp-otawa", "deep/x-tmp-otawa", true},
		{"runs/*-otawa", "runs/main-otawa", true},
		{"runs/*-otawa", "runs/old/main-otawa", false},
		{"RUNS/", "runs/main-otawa", true},

		// Double asterisk
		{"**/old/**", "old/main-otawa", true},
		{"**/old/**", "runs/old/main-otawa", true},
		{"**/old/**", "older/main-otawa", false},

		// Question mark and classes
		{"task?-otawa", "task1-otawa", true},
		{"task?-otawa", "task12-otawa", false},
		{"task[12]-otawa", "task2-otawa", true},
		{"task[12]-otawa", "task3-otawa", false},

		// a negation still matches; the caller re-includes
		{"!keep-otawa", "keep-otawa", true},
	}

	for _, tt := range tests {
		p := ParseIgnorePattern(tt.pattern)
		assert.Equal(t, tt.match, p.Match(tt.path), "%q against %q", tt.pattern, tt.path)
	}
}

func TestIgnoredOrder(t *testing.T) {
	patterns := []IgnorePattern{
		ParseIgnorePattern("*-otawa"),
		ParseIgnorePattern("!main-otawa"),
	}
	assert.True(t, ignored("task1-otawa", patterns))
	assert.False(t, ignored("main-otawa", patterns))
	assert.False(t, ignored("src", patterns))
}
