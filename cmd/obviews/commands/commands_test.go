package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/obviews/internal/config"
	"github.com/l3aro/obviews/pkg/task"
)

var demoExe = filepath.Join("..", "..", "..", "testdata", "demo", "main.elf")

// testConfig writes a config whose dot program echoes its format flag
// followed by the graph.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tool := filepath.Join(dir, "fakedot")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nprintf '%s\\n' \"$1\"\ncat\n"), 0755))

	cfg := config.DefaultConfig()
	cfg.DotPath = tool
	cfg.SourcePaths = nil
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", testConfig(t)}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "obviews version dev\n", out)
}

func TestCFGs(t *testing.T) {
	out, err := run(t, "cfgs", demoExe)
	require.NoError(t, err)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "sum [main:0x8004]")
	assert.Contains(t, out, "(6 blocks)")

	out, err = run(t, "cfgs", "--json", demoExe)
	require.NoError(t, err)
	var cfgs []CFGOutput
	require.NoError(t, json.Unmarshal([]byte(out), &cfgs))
	require.Len(t, cfgs, 2)
	assert.Equal(t, "0x8000", cfgs[0].Address)
	assert.Equal(t, []int{1}, cfgs[0].Calls)
	assert.Empty(t, cfgs[1].Calls)
}

func TestRender(t *testing.T) {
	out, err := run(t, "render", demoExe, "0", "--stat", "ipet-total_time")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph cfg_0 {"))
	assert.Contains(t, out, `fillcolor="#9b8ef5"`)
	assert.Contains(t, out, "colorized&nbsp;by&nbsp;Execution&nbsp;time")
	// disassembly is the configured default view
	assert.Contains(t, out, "push")

	out, err = run(t, "render", demoExe, "1", "--views", "source", "--stats", "ipet-total_count")
	require.NoError(t, err)
	assert.Contains(t, out, "main.c:4:")
	assert.Contains(t, out, "Execution&nbsp;count=5")
	assert.NotContains(t, out, "fillcolor")
	assert.NotContains(t, out, "cmp r3")
}

func TestRenderDefaultViewsMissing(t *testing.T) {
	// the legacy task has no disassembly view; the configured default is skipped
	exe := filepath.Join("..", "..", "..", "testdata", "legacy", "main.elf")
	out, err := run(t, "render", exe, "_0")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph"))
	assert.Contains(t, out, "(8000:16)")
	assert.NotContains(t, out, "main.c:10:")

	out, err = run(t, "render", exe, "_0", "--views", "source")
	require.NoError(t, err)
	assert.Contains(t, out, "main.c:10:")

	_, err = run(t, "render", exe, "_0", "--views", "disassembly")
	assert.True(t, errors.Is(err, task.ErrUnknownView))
}

func TestRenderErrors(t *testing.T) {
	_, err := run(t, "render", demoExe, "9")
	assert.True(t, errors.Is(err, task.ErrUnknownCFG))

	_, err = run(t, "render", demoExe, "0", "--views", "pipeline")
	assert.True(t, errors.Is(err, task.ErrUnknownView))

	_, err = run(t, "render", demoExe, "0", "--stat", "energy")
	assert.True(t, errors.Is(err, task.ErrUnknownStatistic))

	_, err = run(t, "render", demoExe, "0", "--format", "pdf")
	assert.Error(t, err)

	_, err = run(t, "render", filepath.Join(t.TempDir(), "prog.elf"), "0")
	assert.Error(t, err)
}

func TestRenderLayout(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "main.svg")
	out, err := run(t, "render", demoExe, "0", "--format", "svg", "-o", dest)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-Tsvg\ndigraph cfg_0 {"))
}

func TestSource(t *testing.T) {
	out, err := run(t, "source", demoExe, "main.c", "--stat", "ipet-total_time")
	require.NoError(t, err)
	assert.Contains(t, out, `<table id="stats">`)
	assert.Contains(t, out, "<td>53</td>")

	out, err = run(t, "source", demoExe, "main.c", "--stat", "ipet-total_time", "--format", "text")
	require.NoError(t, err)
	assert.Equal(t, "0 53 4 5 5 53 6 32 7 4 10 20 11 20 12 26 13 6\n", out)

	_, err = run(t, "source", demoExe, "main.c", "--format", "text")
	assert.Error(t, err)
	_, err = run(t, "source", demoExe, "missing.c")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	out, err := run(t, "stats", demoExe)
	require.NoError(t, err)
	assert.Contains(t, out, "ipet-total_count")
	assert.Contains(t, out, "Execution time (cycles)")
	assert.Contains(t, out, "WCET contribution of each block")
	assert.NotContains(t, out, "max=")

	out, err = run(t, "stats", demoExe, "ipet-total_time", "--load")
	require.NoError(t, err)
	assert.Contains(t, out, "max=32 total=83")
	assert.NotContains(t, out, "ipet-total_count")
}

func TestStatsFormats(t *testing.T) {
	out, err := run(t, "stats", demoExe, "--format", "json", "--load")
	require.NoError(t, err)
	var stats []StatOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "ipet-total_time", stats[1].ID)
	require.NotNil(t, stats[1].Total)
	assert.Equal(t, int64(83), *stats[1].Total)

	out, err = run(t, "stats", demoExe, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- id: ipet-total_count")
	assert.Contains(t, out, "unit: cycles")

	out, err = run(t, "stats", demoExe, "--format", "msgpack")
	require.NoError(t, err)
	var packed []map[string]interface{}
	require.NoError(t, msgpack.Unmarshal([]byte(out), &packed))
	require.Len(t, packed, 2)
	assert.Equal(t, "ipet-total_count", packed[0]["id"])

	_, err = run(t, "stats", demoExe, "--format", "xml")
	assert.Error(t, err)
	_, err = run(t, "stats", demoExe, "energy")
	assert.True(t, errors.Is(err, task.ErrUnknownStatistic))
}

func TestCallGraph(t *testing.T) {
	out, err := run(t, "callgraph", demoExe)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "sum")
}

func TestDoctor(t *testing.T) {
	out, err := run(t, "doctor", demoExe)
	require.NoError(t, err)
	assert.Contains(t, out, "Using config:")
	assert.Contains(t, out, "layout:  ✓ ready")
	assert.Contains(t, out, "task:    ✓ ready")
	assert.Contains(t, out, "2 CFGs, 2 statistics, 2 views")

	out, err = run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "task:    - skipped")

	out, err = run(t, "doctor", filepath.Join(t.TempDir(), "prog.elf"))
	assert.Error(t, err)
	assert.Contains(t, out, "task:    ✗ error")
	assert.Contains(t, out, "--stats")
}

func TestInitAnswers(t *testing.T) {
	a := defaultAnswers()
	cfg, err := a.config()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
	assert.Equal(t, config.GlobalConfigFilePath(), a.path())

	a.port = "90000"
	_, err = a.config()
	assert.Error(t, err)
	assert.Error(t, validatePort(a.port))
	assert.NoError(t, validatePort("8080"))

	a = defaultAnswers()
	a.layout = string(config.LayoutBuiltin)
	a.sourcePaths = "src, include,"
	a.defaultViews = "source"
	a.location = "project"
	cfg, err = a.config()
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "include"}, cfg.SourcePaths)
	assert.Equal(t, []string{"source"}, cfg.DefaultViews)
	assert.Equal(t, config.ProjectConfigFilePath(), a.path())
}

func TestTasks(t *testing.T) {
	out, err := run(t, "tasks", filepath.Join("..", "..", "..", "testdata"))
	require.NoError(t, err)
	assert.Contains(t, out, "demo/main-otawa  (cfg.csv, 2 statistics, 2 views)")

	out, err = run(t, "tasks", "--json", filepath.Join("..", "..", "..", "testdata", "demo"))
	require.NoError(t, err)
	var tasks []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "main", tasks[0]["name"])

	out, err = run(t, "tasks", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No task found")
}
