// Package task ties together everything produced by one analyzer run: the
// program graph, its statistics, its views and the program sources.
//
// A task lives in `<name>-otawa/stats/` next to the analyzed executable:
//
//	cfg.csv or cfg.xml   the program graph
//	<stat>.csv           one file per statistic
//	<name>-view.csv      one file per view
//
// Statistics and views are loaded on first use. Loads take the task's write
// lock; reads of loaded data take its read lock.
package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/record"
	"github.com/l3aro/obviews/pkg/source"
	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/view"
)

var (
	// ErrUnknownCFG is returned for a CFG id or index the program lacks.
	ErrUnknownCFG = errors.New("unknown CFG")
	// ErrUnknownStatistic is returned for a statistic the task lacks.
	ErrUnknownStatistic = errors.New("unknown statistic")
	// ErrUnknownView is returned for a view the task lacks.
	ErrUnknownView = errors.New("unknown view")
)

const (
	// DefaultName is the task analyzed when none is given.
	DefaultName = "main"

	statsDir  = "stats"
	graphCSV  = "cfg.csv"
	graphXML  = "cfg.xml"
	dirSuffix = "-otawa"
)

// Options configure Open.
type Options struct {
	// SourcePaths are searched for sources; defaults to the directory
	// holding the task directory, then the working directory.
	SourcePaths     []string
	StrictContext   bool
	ValidateOverlap bool
	// DisasmArch decodes raw words of the disassembly view.
	DisasmArch string
	Logger     log.Logger
}

// Task is one analyzed entry point.
type Task struct {
	Name    string
	Dir     string
	Program *program.Program
	Sources *source.Manager

	mu     sync.RWMutex
	stats  []*stat.Statistic
	views  []*view.View
	logger log.Logger
}

// Dir returns the task directory of an executable.
func Dir(exe, name string) string {
	return filepath.Join(filepath.Dir(exe), name+dirSuffix)
}

// OpenExecutable opens the task name of the executable exe.
func OpenExecutable(exe, name string, opts Options) (*Task, error) {
	if name == "" {
		name = DefaultName
	}
	return Open(Dir(exe, name), name, opts)
}

// Open reads the program graph in dir and registers the statistics and
// views found there without loading them.
func Open(dir, name string, opts Options) (*Task, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if len(opts.SourcePaths) == 0 {
		opts.SourcePaths = []string{filepath.Dir(filepath.Clean(dir)), "."}
	}

	graph, err := findGraph(dir)
	if err != nil {
		return nil, err
	}
	p, err := program.Load(graph, program.LoadOptions{ValidateOverlap: opts.ValidateOverlap})
	if err != nil {
		return nil, err
	}

	t := &Task{
		Name:    name,
		Dir:     dir,
		Program: p,
		Sources: source.NewManager(opts.SourcePaths, source.WithLogger(opts.Logger)),
		logger:  opts.Logger,
	}

	entries, err := os.ReadDir(filepath.Join(dir, statsDir))
	if err != nil {
		return nil, fmt.Errorf("listing task %s: %w", dir, err)
	}
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || !strings.HasSuffix(fname, ".csv") || fname == graphCSV {
			continue
		}
		path := filepath.Join(dir, statsDir, fname)
		if strings.HasSuffix(fname, view.FileSuffix) {
			vname := strings.TrimSuffix(fname, view.FileSuffix)
			t.views = append(t.views, view.New(vname, path, view.Options{Arch: opts.DisasmArch, Logger: opts.Logger}))
			continue
		}
		id := strings.TrimSuffix(fname, ".csv")
		t.stats = append(t.stats, stat.New(id, path, stat.Options{
			StrictContext: opts.StrictContext,
			Lines:         t,
			Logger:        opts.Logger,
		}))
	}

	if _, ok := t.View(view.SourceName); !ok && hasLines(p) {
		t.views = append(t.views, view.FromProgram(p))
	}
	view.Rank(t.views)

	opts.Logger.Debug("task opened", "dir", dir, "cfgs", len(p.CFGs), "stats", len(t.stats), "views", len(t.views))
	return t, nil
}

func findGraph(dir string) (string, error) {
	csv := filepath.Join(dir, statsDir, graphCSV)
	if _, err := os.Stat(csv); err == nil {
		return csv, nil
	}
	xml := filepath.Join(dir, statsDir, graphXML)
	if _, err := os.Stat(xml); err == nil {
		return xml, nil
	}
	return "", &record.MissingFileError{Path: csv, Hint: record.DefaultHint}
}

func hasLines(p *program.Program) bool {
	for _, g := range p.CFGs {
		for _, b := range g.Blocks {
			if len(b.Lines) > 0 {
				return true
			}
		}
	}
	return false
}

// Statistics returns the statistics ordered by identity.
func (t *Task) Statistics() []*stat.Statistic {
	out := append([]*stat.Statistic(nil), t.stats...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Statistic returns the statistic with the given identity.
func (t *Task) Statistic(id string) (*stat.Statistic, error) {
	for _, s := range t.stats {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStatistic, id)
}

// Views returns the views in declaration order.
func (t *Task) Views() []*view.View {
	return append([]*view.View(nil), t.views...)
}

// View returns the view with the given name.
func (t *Task) View(name string) (*view.View, bool) {
	for _, v := range t.views {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// ViewSet returns the selector of the named views.
func (t *Task) ViewSet(names []string) (view.Set, error) {
	var idx []int
	for _, n := range names {
		v, ok := t.View(n)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownView, n)
		}
		idx = append(idx, v.Index)
	}
	return view.SetOf(idx...), nil
}

// KnownViews filters names down to the views the task has, keeping
// their order. It resolves configured defaults that may not apply to
// every task.
func (t *Task) KnownViews(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.View(n); ok {
			out = append(out, n)
		}
	}
	return out
}

// CFG finds a CFG by id, or by index when id is a number no CFG uses as
// its id.
func (t *Task) CFG(id string) (*program.CFG, error) {
	if g, ok := t.Program.Find(id); ok {
		return g, nil
	}
	if i, err := strconv.Atoi(id); err == nil && i >= 0 && i < len(t.Program.CFGs) {
		return t.Program.CFGs[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCFG, id)
}

// BlockLines maps a block to its source lines through the source view,
// falling back to the lines of the graph file.
func (t *Task) BlockLines(b *program.Block) []program.Line {
	if v, ok := t.View(view.SourceName); ok && v.State() == view.FullyLoaded {
		if lines := v.Lines(b.CFG.Index, b.ID); len(lines) > 0 {
			return lines
		}
	}
	return b.Lines
}

// Prepare loads the given statistics and views if they are not loaded yet.
func (t *Task) Prepare(stats []*stat.Statistic, views []*view.View) error {
	t.mu.RLock()
	ready := loaded(stats, views)
	t.mu.RUnlock()
	if ready {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(stats) > 0 {
		// line attribution goes through the source view
		if v, ok := t.View(view.SourceName); ok {
			if err := v.EnsureLoad(); err != nil {
				return err
			}
		}
	}
	for _, v := range views {
		if err := v.EnsureLoad(); err != nil {
			return err
		}
	}
	for _, s := range stats {
		if err := s.EnsureLoad(t.Program); err != nil {
			return err
		}
		t.logger.Debug("statistic loaded", "stat", s.ID, "max", s.Max(t.Program), "total", s.Total(t.Program))
	}
	return nil
}

func loaded(stats []*stat.Statistic, views []*view.View) bool {
	for _, s := range stats {
		if s.State() != stat.FullyLoaded {
			return false
		}
	}
	for _, v := range views {
		if v.State() != view.FullyLoaded {
			return false
		}
	}
	return true
}

// Do prepares stats and views, then runs fn while holding the read lock.
func (t *Task) Do(stats []*stat.Statistic, views []*view.View, fn func() error) error {
	if err := t.Prepare(stats, views); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn()
}

// Headers preloads and returns the header of every statistic, ordered by
// identity.
func (t *Task) Headers() ([]StatInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []StatInfo
	for _, s := range t.Statistics() {
		if err := s.EnsurePreload(); err != nil {
			return nil, err
		}
		out = append(out, StatInfo{ID: s.ID, Header: s.Header()})
	}
	return out, nil
}

// StatInfo describes one statistic.
type StatInfo struct {
	ID     string      `json:"id" yaml:"id" msgpack:"id"`
	Header stat.Header `json:"header" yaml:"header" msgpack:"header"`
}

// ReferencedSources lists the source files referenced by the program that
// can be found in the lookup paths, sorted.
func (t *Task) ReferencedSources() ([]string, error) {
	var names []string
	if v, ok := t.View(view.SourceName); ok {
		if err := t.Prepare(nil, []*view.View{v}); err != nil {
			return nil, err
		}
		t.mu.RLock()
		names = v.Files()
		t.mu.RUnlock()
	}
	for _, g := range t.Program.CFGs {
		for _, b := range g.Blocks {
			for _, l := range b.Lines {
				names = append(names, l.File)
			}
		}
	}
	return t.Sources.Available(names), nil
}

// Source loads a source file referenced by the program. Other names are
// reported as not found, whatever the lookup paths hold.
func (t *Task) Source(name string) (*source.Source, error) {
	names, err := t.ReferencedSources()
	if err != nil {
		return nil, err
	}
	i := sort.SearchStrings(names, name)
	if i == len(names) || names[i] != name {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, name)
	}
	return t.Sources.Find(name)
}
