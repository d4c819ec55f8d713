// Package view loads address-indexed annotation streams attached to the
// blocks of a program and merges them for display.
package view

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/record"
)

// Reserved view names.
const (
	SourceName      = "source"
	DisassemblyName = "disassembly"
)

// FileSuffix ends the name of every view file.
const FileSuffix = "-view.csv"

// Kind selects the payload decoder of a view.
type Kind int

const (
	Source Kind = iota
	Disassembly
	Generic
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Disassembly:
		return "disassembly"
	default:
		return "generic"
	}
}

// KindOf returns the kind selected by a view name.
func KindOf(name string) Kind {
	switch name {
	case SourceName:
		return Source
	case DisassemblyName:
		return Disassembly
	default:
		return Generic
	}
}

// State is the load state of a View.
type State int

const (
	Unloaded State = iota
	HeaderLoaded
	FullyLoaded
)

// Item is one annotation. File and Line are set for source views, Text
// for the others.
type Item struct {
	Address uint64
	Text    string
	File    string
	Line    int
}

type key struct {
	cfg, block int
}

// Options control decoding.
type Options struct {
	// Arch names the instruction set used to decode raw `.word` payloads
	// of a disassembly view. Empty keeps payloads as written.
	Arch   string
	Logger log.Logger
}

// View is one annotation stream.
type View struct {
	Name  string
	Kind  Kind
	Path  string
	Label string

	// Index is the declaration rank, used as the bit of the view in a Set.
	Index int
	// Level is the rank after priority sort, used only as a merge key.
	Level int

	opts  Options
	state State
	body  []byte
	first int
	items map[key][]Item
}

// New returns an unloaded view backed by path.
func New(name, path string, opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &View{Name: name, Kind: KindOf(name), Path: path, Label: name, opts: opts}
}

// State returns the current load state.
func (v *View) State() State {
	return v.state
}

// Title is the label shown to users.
func (v *View) Title() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}

// Priority orders views for display: source first, disassembly next,
// generic views by declaration.
func (v *View) Priority() int {
	switch v.Kind {
	case Source:
		return 0
	case Disassembly:
		return 1
	default:
		return 2
	}
}

// EnsurePreload reads the file and its optional header once.
func (v *View) EnsurePreload() error {
	if v.state >= HeaderLoaded {
		return nil
	}
	f, err := record.OpenFile(v.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return fmt.Errorf("reading view %s: %w", v.Path, err)
	}
	v.preload(buf.Bytes())
	return nil
}

func (v *View) preload(data []byte) {
	pos := 0
	rest := data
	for len(rest) > 0 {
		line, next, _ := bytes.Cut(rest, []byte{'\n'})
		text := strings.TrimRight(string(line), "\r")
		if strings.TrimSpace(text) != "" && !strings.HasPrefix(text, "#") {
			break
		}
		pos++
		rest = next
		if k, val, ok := record.ParseMeta(text); ok && k == "Label" && val != "" {
			v.Label = val
		}
	}
	v.body = rest
	v.first = pos + 1
	v.state = HeaderLoaded
}

// EnsureLoad decodes every record once.
func (v *View) EnsureLoad() error {
	if v.state == FullyLoaded {
		return nil
	}
	if err := v.EnsurePreload(); err != nil {
		return err
	}

	items := make(map[key][]Item)
	sc := bufio.NewScanner(bytes.NewReader(v.body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	pos := v.first - 1
	for sc.Scan() {
		pos++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, it, err := v.parseRecord(text, pos)
		if err != nil {
			return err
		}
		items[k] = append(items[k], it)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading view %s: %w", v.Path, err)
	}

	v.items = items
	v.body = nil
	v.state = FullyLoaded
	return nil
}

func (v *View) parseRecord(text string, pos int) (key, Item, error) {
	fs := strings.SplitN(text, "\t", 4)
	if len(fs) != 4 {
		return key{}, Item{}, &record.FormatError{Path: v.Path, Line: pos, Msg: fmt.Sprintf("view record takes 4 fields, got %d", len(fs))}
	}
	g, err := strconv.Atoi(strings.TrimSpace(fs[0]))
	if err != nil {
		return key{}, Item{}, &record.FormatError{Path: v.Path, Line: pos, Msg: "bad cfg index", Err: err}
	}
	b, err := strconv.Atoi(strings.TrimSpace(fs[1]))
	if err != nil {
		return key{}, Item{}, &record.FormatError{Path: v.Path, Line: pos, Msg: "bad block index", Err: err}
	}
	addr, err := record.ParseAddress(fs[2])
	if err != nil {
		return key{}, Item{}, &record.FormatError{Path: v.Path, Line: pos, Msg: "bad address", Err: err}
	}

	it := Item{Address: addr}
	switch v.Kind {
	case Source:
		file, line, err := ParseSourcePayload(fs[3])
		if err != nil {
			return key{}, Item{}, &record.FormatError{Path: v.Path, Line: pos, Msg: "bad source payload", Err: err}
		}
		it.File, it.Line = file, line
	case Disassembly:
		it.Text = decodeInstruction(v.opts.Arch, fs[3])
	default:
		it.Text = fs[3]
	}
	return key{g, b}, it, nil
}

// ParseSourcePayload splits a `file:line` payload at its last colon.
func ParseSourcePayload(s string) (string, int, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("missing line in %q", s)
	}
	line, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
	if err != nil {
		return "", 0, err
	}
	return s[:i], line, nil
}

// Get returns the items of one block in file order. The view must be loaded.
func (v *View) Get(cfg, block int) []Item {
	return v.items[key{cfg, block}]
}

// Lines returns the distinct source positions of a block, for source views.
func (v *View) Lines(cfg, block int) []program.Line {
	if v.Kind != Source {
		return nil
	}
	var out []program.Line
	for _, it := range v.Get(cfg, block) {
		out = append(out, program.Line{File: it.File, Line: it.Line})
	}
	return out
}

// Files lists the distinct source files referenced by a source view.
func (v *View) Files() []string {
	seen := make(map[string]bool)
	for _, items := range v.items {
		for _, it := range items {
			if it.File != "" {
				seen[it.File] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FromProgram builds a loaded source view from the lines carried by the
// code blocks of p, each placed at its block's base address.
func FromProgram(p *program.Program) *View {
	v := &View{Name: SourceName, Kind: Source, Label: SourceName, state: FullyLoaded, items: make(map[key][]Item)}
	for _, g := range p.CFGs {
		for _, b := range g.CodeBlocks() {
			for _, l := range b.Lines {
				k := key{g.Index, b.ID}
				v.items[k] = append(v.items[k], Item{Address: b.Base, File: l.File, Line: l.Line})
			}
		}
	}
	return v
}

// Rank assigns Index by declaration order and Level by priority. Views of
// equal priority keep their declaration order.
func Rank(views []*View) {
	for i, v := range views {
		v.Index = i
	}
	sorted := append([]*View(nil), views...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	for lvl, v := range sorted {
		v.Level = lvl
	}
}
