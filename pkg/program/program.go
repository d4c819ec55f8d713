// Package program is the in-memory model of an analyzed task: control-flow
// graphs made of blocks and edges, each carrying statistic accumulators.
package program

import (
	"fmt"
	"strings"
)

// Kind is the variant of a Block.
type Kind int

const (
	Entry Kind = iota
	Exit
	Unknown
	Virtual
	Code
	Call
)

func (k Kind) String() string {
	switch k {
	case Entry:
		return "entry"
	case Exit:
		return "exit"
	case Unknown:
		return "unknown"
	case Virtual:
		return "virtual"
	case Code:
		return "code"
	case Call:
		return "call"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Edge types with a display meaning. Any other string is shown as is.
const (
	EdgeTaken    = "taken"
	EdgeNotTaken = "not-taken"
)

// Line is a source position attached to a code block.
type Line struct {
	File string
	Line int
}

// Block is one vertex of a CFG. Base, Size and Lines are only meaningful
// for Code blocks; Callee only for Call blocks, where nil means the callee
// is unknown.
type Block struct {
	ID   int
	Kind Kind
	CFG  *CFG

	Base   uint64
	Size   uint64
	Lines  []Line
	Callee *CFG

	Data Data
	Next []*Edge
	Pred []*Edge
}

// End returns the first address after a code block.
func (b *Block) End() uint64 {
	return b.Base + b.Size
}

// Contains reports whether addr lies in the half-open range of a code block.
func (b *Block) Contains(addr uint64) bool {
	return b.Kind == Code && b.Base <= addr && addr < b.End()
}

func (b *Block) String() string {
	switch b.Kind {
	case Code:
		return fmt.Sprintf("BB %d (%08x:%d)", b.ID, b.Base, b.Size)
	case Call:
		if b.Callee == nil {
			return fmt.Sprintf("call %d unknown", b.ID)
		}
		return fmt.Sprintf("call %d %s", b.ID, b.Callee.Label)
	default:
		return fmt.Sprintf("%s %d", b.Kind, b.ID)
	}
}

// Edge links two blocks of the same CFG.
type Edge struct {
	Source *Block
	Sink   *Block
	Type   string
}

// CFG is one control-flow graph. Blocks are stored in insertion order and a
// block's ID is its index in Blocks.
type CFG struct {
	Index   int
	ID      string
	Label   string
	Address uint64
	Context string

	Blocks []*Block
	Edges  []*Edge
	Entry  *Block
	Exit   *Block

	// Max holds the largest block value per statistic, Total the block
	// values combined with the statistic's concatenation operator.
	Max   Data
	Total Data
}

// Name is the display name of the CFG: its label followed by the context
// when one is set.
func (g *CFG) Name() string {
	if g.Context == "" {
		return g.Label
	}
	return g.Label + " " + g.Context
}

// CodeBlocks returns the code blocks in insertion order.
func (g *CFG) CodeBlocks() []*Block {
	var out []*Block
	for _, b := range g.Blocks {
		if b.Kind == Code {
			out = append(out, b)
		}
	}
	return out
}

// Calls returns the call blocks in insertion order.
func (g *CFG) Calls() []*Block {
	var out []*Block
	for _, b := range g.Blocks {
		if b.Kind == Call {
			out = append(out, b)
		}
	}
	return out
}

func (g *CFG) add(kind Kind) *Block {
	b := &Block{ID: len(g.Blocks), Kind: kind, CFG: g}
	g.Blocks = append(g.Blocks, b)
	return b
}

func (g *CFG) link(src, snk *Block, typ string) *Edge {
	e := &Edge{Source: src, Sink: snk, Type: typ}
	src.Next = append(src.Next, e)
	snk.Pred = append(snk.Pred, e)
	g.Edges = append(g.Edges, e)
	return e
}

// Program is the set of CFGs of one task. CFGs[0] is the task entry.
type Program struct {
	Path string
	Meta map[string]string
	CFGs []*CFG

	Max   Data
	Total Data
}

// Find returns the CFG with the given id.
func (p *Program) Find(id string) (*CFG, bool) {
	for _, g := range p.CFGs {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// Contexts lists the distinct non-empty contexts in declaration order.
func (p *Program) Contexts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range p.CFGs {
		if g.Context != "" && !seen[g.Context] {
			seen[g.Context] = true
			out = append(out, g.Context)
		}
	}
	return out
}

// ByContext returns the CFGs whose context equals ctx exactly.
func (p *Program) ByContext(ctx string) []*CFG {
	var out []*CFG
	for _, g := range p.CFGs {
		if g.Context == ctx {
			out = append(out, g)
		}
	}
	return out
}

// Dump writes a plain text listing of the program, one block per line.
func (p *Program) Dump() string {
	var sb strings.Builder
	for _, g := range p.CFGs {
		fmt.Fprintf(&sb, "CFG %s %s %08x %q\n", g.ID, g.Label, g.Address, g.Context)
		for _, b := range g.Blocks {
			fmt.Fprintf(&sb, "\t%s\n", b)
			for _, e := range b.Next {
				if e.Type != "" {
					fmt.Fprintf(&sb, "\t\t-> %d (%s)\n", e.Sink.ID, e.Type)
				} else {
					fmt.Fprintf(&sb, "\t\t-> %d\n", e.Sink.ID)
				}
			}
		}
	}
	return sb.String()
}
