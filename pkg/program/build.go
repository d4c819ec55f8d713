package program

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/obviews/pkg/record"
)

// StructureError reports a graph that parses but is not well formed.
type StructureError struct {
	CFG string
	Msg string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("cfg %s: %s", e.CFG, e.Msg)
}

type pendingCall struct {
	block  *Block
	target int
	pos    int
}

// Build assembles a program from decoded records. Calls are recorded with
// their raw target index and resolved once every CFG is known, so a call
// may name a CFG declared later in the file.
func Build(f *record.File) (*Program, error) {
	p := &Program{Path: f.Path, Meta: f.Meta}
	if p.Meta == nil {
		p.Meta = make(map[string]string)
	}

	var (
		cur   *CFG
		calls []pendingCall
	)
	for _, r := range f.Records {
		if r.Op != record.OpGraph && cur == nil {
			return nil, &record.FormatError{Path: f.Path, Line: r.Pos, Msg: fmt.Sprintf("%s record outside of a graph", r.Op)}
		}

		switch r.Op {
		case record.OpGraph:
			if cur != nil {
				if err := checkEnds(cur); err != nil {
					return nil, err
				}
			}
			cur = &CFG{
				Index:   len(p.CFGs),
				ID:      r.ID,
				Label:   r.Label,
				Address: r.Address,
				Context: r.Context,
			}
			p.CFGs = append(p.CFGs, cur)

		case record.OpEntry:
			if cur.Entry != nil {
				return nil, &StructureError{CFG: cur.ID, Msg: "duplicate entry block"}
			}
			cur.Entry = cur.add(Entry)

		case record.OpExit:
			if cur.Exit != nil {
				return nil, &StructureError{CFG: cur.ID, Msg: "duplicate exit block"}
			}
			cur.Exit = cur.add(Exit)

		case record.OpUnknown:
			cur.add(Unknown)

		case record.OpVirtual:
			cur.add(Virtual)

		case record.OpBlock:
			b := cur.add(Code)
			b.Base = r.Address
			b.Size = r.Size
			for _, l := range r.Lines {
				b.Lines = append(b.Lines, Line{File: l.File, Line: l.Line})
			}

		case record.OpCall:
			b := cur.add(Call)
			calls = append(calls, pendingCall{block: b, target: r.Target, pos: r.Pos})

		case record.OpEdge:
			src, err := blockAt(cur, r.Source, f.Path, r.Pos)
			if err != nil {
				return nil, err
			}
			snk, err := blockAt(cur, r.Sink, f.Path, r.Pos)
			if err != nil {
				return nil, err
			}
			cur.link(src, snk, r.EdgeType)

		default:
			return nil, &record.FormatError{Path: f.Path, Line: r.Pos, Msg: fmt.Sprintf("unexpected %s record", r.Op)}
		}
	}
	if cur != nil {
		if err := checkEnds(cur); err != nil {
			return nil, err
		}
	}

	for _, c := range calls {
		if c.target == record.UnknownTarget {
			continue
		}
		if c.target < 0 || c.target >= len(p.CFGs) {
			return nil, &record.FormatError{
				Path: f.Path,
				Line: c.pos,
				Msg:  "call in cfg " + c.block.CFG.ID,
				Err:  &record.UnresolvedReferenceError{Kind: "cfg", Ref: strconv.Itoa(c.target)},
			}
		}
		c.block.Callee = p.CFGs[c.target]
	}

	return p, nil
}

// blockAt resolves an edge endpoint. Only blocks declared before the edge
// can be referenced.
func blockAt(g *CFG, idx int, path string, pos int) (*Block, error) {
	if idx < 0 || idx >= len(g.Blocks) {
		return nil, &record.FormatError{
			Path: path,
			Line: pos,
			Msg:  "edge in cfg " + g.ID,
			Err:  &record.UnresolvedReferenceError{Kind: "block", Ref: strconv.Itoa(idx)},
		}
	}
	return g.Blocks[idx], nil
}

func checkEnds(g *CFG) error {
	switch {
	case g.Entry == nil:
		return &StructureError{CFG: g.ID, Msg: "no entry block"}
	case g.Exit == nil:
		return &StructureError{CFG: g.ID, Msg: "no exit block"}
	}
	return nil
}

// Validate checks that no two code blocks of a CFG overlap.
func (p *Program) Validate() error {
	for _, g := range p.CFGs {
		blocks := g.CodeBlocks()
		sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Base < blocks[j].Base })
		var prev *Block
		for _, b := range blocks {
			if b.Size == 0 {
				continue
			}
			if prev != nil && b.Base < prev.End() {
				return &StructureError{
					CFG: g.ID,
					Msg: fmt.Sprintf("block %d [%#x,%#x) overlaps block %d [%#x,%#x)",
						b.ID, b.Base, b.End(), prev.ID, prev.Base, prev.End()),
				}
			}
			prev = b
		}
	}
	return nil
}

// LoadOptions control Load.
type LoadOptions struct {
	ValidateOverlap bool
}

// Load reads and builds the graph file at path. Files ending in .xml use
// the legacy tree form.
func Load(path string, opts LoadOptions) (*Program, error) {
	var (
		f   *record.File
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		f, err = record.ReadXMLFile(path)
	} else {
		f, err = record.ReadLinesFile(path)
	}
	if err != nil {
		return nil, err
	}

	p, err := Build(f)
	if err != nil {
		return nil, err
	}
	if opts.ValidateOverlap {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return p, nil
}
