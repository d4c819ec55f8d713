// Package stat loads per-address statistic files and reduces them into
// block, CFG and task aggregates.
//
// A statistic file starts with an optional header of `#Key: value` lines
// followed by tab-separated records:
//
//	value	hex-address	size	context
//
// A record adds its value to every code block containing its address in
// each CFG whose context equals the record's context.
package stat

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/record"
)

// State is the load state of a Statistic. Transitions only go forward.
type State int

const (
	Unloaded State = iota
	HeaderLoaded
	FullyLoaded
)

func (s State) String() string {
	switch s {
	case HeaderLoaded:
		return "header-loaded"
	case FullyLoaded:
		return "fully-loaded"
	default:
		return "unloaded"
	}
}

// Header is the metadata of a statistic file.
type Header struct {
	Label       string `json:"label" yaml:"label" msgpack:"label"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty" msgpack:"unit,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description,omitempty"`
	Total       int64  `json:"total,omitempty" yaml:"total,omitempty" msgpack:"total,omitempty"`
	HasTotal    bool   `json:"has_total" yaml:"has_total" msgpack:"has_total"`
	LineOp      Op     `json:"line_op" yaml:"line_op" msgpack:"line_op"`
	ConcatOp    Op     `json:"concat_op" yaml:"concat_op" msgpack:"concat_op"`
	ContextOp   Op     `json:"context_op" yaml:"context_op" msgpack:"context_op"`
}

// UnmatchedContextError reports a record whose context matches no CFG.
type UnmatchedContextError struct {
	Stat    string
	Context string
	Line    int
}

func (e *UnmatchedContextError) Error() string {
	return fmt.Sprintf("statistic %s line %d: no CFG has context %q", e.Stat, e.Line, e.Context)
}

// LineMapper gives the source lines a block's values are forwarded to.
type LineMapper interface {
	BlockLines(b *program.Block) []program.Line
}

// LineFunc adapts a function to LineMapper.
type LineFunc func(b *program.Block) []program.Line

func (f LineFunc) BlockLines(b *program.Block) []program.Line { return f(b) }

// blockLines uses the lines recorded in the graph file itself.
var blockLines = LineFunc(func(b *program.Block) []program.Line { return b.Lines })

// Options control loading.
type Options struct {
	// StrictContext makes records with an unmatched context fail the load.
	StrictContext bool
	// Lines maps blocks to source lines; defaults to the block's own lines.
	Lines  LineMapper
	Logger log.Logger
}

// Statistic is one statistic file. It is not safe for concurrent use; the
// owner serializes loads.
type Statistic struct {
	ID   string
	Path string

	opts   Options
	state  State
	header Header
	body   []byte
	first  int // line number of the first body line

	lines   map[string]map[int]int64
	lineMax int64
}

// New returns an unloaded statistic backed by path.
func New(id, path string, opts Options) *Statistic {
	if opts.Lines == nil {
		opts.Lines = blockLines
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Statistic{ID: id, Path: path, opts: opts}
}

// State returns the current load state.
func (s *Statistic) State() State {
	return s.state
}

// Header returns the parsed header. It is the zero Header before Preload.
func (s *Statistic) Header() Header {
	return s.header
}

// Label returns the display label, falling back to the identity.
func (s *Statistic) Label() string {
	if s.header.Label != "" {
		return s.header.Label
	}
	return s.ID
}

// EnsurePreload reads the header once.
func (s *Statistic) EnsurePreload() error {
	if s.state >= HeaderLoaded {
		return nil
	}
	return s.Preload()
}

// Preload reads the backing file into memory and parses its header. It
// does not touch any aggregate.
func (s *Statistic) Preload() error {
	f, err := record.OpenFile(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return fmt.Errorf("reading statistic %s: %w", s.Path, err)
	}
	return s.preload(buf.Bytes())
}

func (s *Statistic) preload(data []byte) error {
	h := Header{}
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
		key, value, ok := record.ParseMeta(text)
		if !ok {
			continue
		}
		if err := s.applyHeader(&h, key, value, pos); err != nil {
			return err
		}
	}

	s.header = h
	s.body = rest
	s.first = pos + 1
	if s.state < HeaderLoaded {
		s.state = HeaderLoaded
	}
	return nil
}

func (s *Statistic) applyHeader(h *Header, key, value string, pos int) error {
	switch key {
	case "Label":
		h.Label = value
	case "Unit":
		h.Unit = value
	case "Description":
		h.Description = value
	case "Total":
		t, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &record.FormatError{Path: s.Path, Line: pos, Msg: "bad Total", Err: err}
		}
		h.Total = t
		h.HasTotal = true
	case "LineOp":
		h.LineOp = s.parseOp(key, value)
	case "ConcatOp":
		h.ConcatOp = s.parseOp(key, value)
	case "ContextOp":
		h.ContextOp = s.parseOp(key, value)
	default:
		s.opts.Logger.Debug("ignoring statistic header", "stat", s.ID, "key", key)
	}
	return nil
}

func (s *Statistic) parseOp(key, value string) Op {
	op, ok := ParseOp(value)
	if !ok {
		s.opts.Logger.Warn("unknown combination operator, using sum", "stat", s.ID, "key", key, "op", value)
	}
	return op
}

// EnsureLoad fully loads the statistic into p once. Later calls are no-ops.
func (s *Statistic) EnsureLoad(p *program.Program) error {
	if s.state == FullyLoaded {
		return nil
	}
	return s.Load(p)
}

// Load resets every aggregate of this statistic in p, accumulates all
// records and recomputes the CFG and task aggregates.
func (s *Statistic) Load(p *program.Program) error {
	if err := s.EnsurePreload(); err != nil {
		return err
	}

	s.begin(p)
	if err := s.scan(p); err != nil {
		// leave no partial sums behind
		s.begin(p)
		return err
	}
	s.end(p)
	s.state = FullyLoaded
	return nil
}

func (s *Statistic) begin(p *program.Program) {
	for _, g := range p.CFGs {
		for _, b := range g.Blocks {
			b.Data.Reset(s.ID)
		}
		g.Max.Reset(s.ID)
		g.Total.Reset(s.ID)
	}
	p.Max.Reset(s.ID)
	p.Total.Reset(s.ID)
	s.lines = make(map[string]map[int]int64)
	s.lineMax = 0
}

func (s *Statistic) scan(p *program.Program) error {
	byContext := make(map[string][]*program.CFG)
	for _, g := range p.CFGs {
		byContext[g.Context] = append(byContext[g.Context], g)
	}
	warned := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(s.body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	pos := s.first - 1
	for sc.Scan() {
		pos++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		value, addr, ctx, err := s.parseRecord(text, pos)
		if err != nil {
			return err
		}

		cfgs, ok := byContext[ctx]
		if !ok {
			if s.opts.StrictContext {
				return &UnmatchedContextError{Stat: s.ID, Context: ctx, Line: pos}
			}
			if !warned[ctx] {
				warned[ctx] = true
				s.opts.Logger.Warn("dropping records with unknown context", "stat", s.ID, "context", ctx)
			}
			continue
		}

		for _, g := range cfgs {
			for _, b := range g.Blocks {
				if !b.Contains(addr) {
					continue
				}
				s.header.LineOp.Apply(&b.Data, s.ID, value)
				s.forward(b, value)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading statistic %s: %w", s.Path, err)
	}
	return nil
}

func (s *Statistic) parseRecord(text string, pos int) (value int64, addr uint64, ctx string, err error) {
	fs := strings.Split(text, "\t")
	if len(fs) != 4 {
		return 0, 0, "", &record.FormatError{Path: s.Path, Line: pos, Msg: fmt.Sprintf("statistic record takes 4 fields, got %d", len(fs))}
	}
	if value, err = strconv.ParseInt(strings.TrimSpace(fs[0]), 10, 64); err != nil {
		return 0, 0, "", &record.FormatError{Path: s.Path, Line: pos, Msg: "bad value", Err: err}
	}
	if addr, err = record.ParseAddress(fs[1]); err != nil {
		return 0, 0, "", &record.FormatError{Path: s.Path, Line: pos, Msg: "bad address", Err: err}
	}
	// the size is informative only
	if _, err = record.ParseSize(fs[2]); err != nil {
		return 0, 0, "", &record.FormatError{Path: s.Path, Line: pos, Msg: "bad size", Err: err}
	}
	return value, addr, record.Unquote(strings.TrimSpace(fs[3])), nil
}

// forward adds a block value to each distinct source line of the block.
func (s *Statistic) forward(b *program.Block, value int64) {
	seen := make(map[program.Line]bool)
	for _, l := range s.opts.Lines.BlockLines(b) {
		if seen[l] {
			continue
		}
		seen[l] = true
		file := s.lines[l.File]
		if file == nil {
			file = make(map[int]int64)
			s.lines[l.File] = file
		}
		if s.header.LineOp == Max {
			if value > file[l.Line] {
				file[l.Line] = value
			}
		} else {
			file[l.Line] += value
		}
	}
}

func (s *Statistic) end(p *program.Program) {
	for _, g := range p.CFGs {
		for _, b := range g.Blocks {
			v := b.Data.Get(s.ID)
			g.Max.Max(s.ID, v)
			s.header.ConcatOp.Apply(&g.Total, s.ID, v)
		}
		p.Max.Max(s.ID, g.Max.Get(s.ID))
		s.header.ContextOp.Apply(&p.Total, s.ID, g.Total.Get(s.ID))
	}
	for _, file := range s.lines {
		for _, v := range file {
			if v > s.lineMax {
				s.lineMax = v
			}
		}
	}
}

// Total is the reference for percentages: the declared total when the
// header has one, the task aggregate otherwise.
func (s *Statistic) Total(p *program.Program) int64 {
	if s.header.HasTotal {
		return s.header.Total
	}
	return p.Total.Get(s.ID)
}

// Max returns the task-level maximum block value.
func (s *Statistic) Max(p *program.Program) int64 {
	return p.Max.Get(s.ID)
}

// Extent returns the value range used to build color scales.
func (s *Statistic) Extent(p *program.Program) (lo, hi int64) {
	return 0, s.Max(p)
}

// LineValue returns the value accumulated on one source line.
func (s *Statistic) LineValue(file string, line int) int64 {
	return s.lines[file][line]
}

// LineMax returns the largest per-line value.
func (s *Statistic) LineMax() int64 {
	return s.lineMax
}

// LineEntry is one non-zero line value.
type LineEntry struct {
	Line  int
	Value int64
}

// FileLines returns the non-zero line values of a file ordered by line.
func (s *Statistic) FileLines(file string) []LineEntry {
	lines := s.lines[file]
	out := make([]LineEntry, 0, len(lines))
	for l, v := range lines {
		if v != 0 {
			out = append(out, LineEntry{Line: l, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Files lists the source files with line values, sorted.
func (s *Statistic) Files() []string {
	out := make([]string, 0, len(s.lines))
	for f := range s.lines {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IsUnmatched reports whether err is an unmatched context failure.
func IsUnmatched(err error) bool {
	var ue *UnmatchedContextError
	return errors.As(err, &ue)
}
