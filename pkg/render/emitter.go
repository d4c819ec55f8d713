// Package render turns a loaded task into the artifacts shown to users:
// Graphviz DOT for CFGs and call graphs, and HTML for source listings.
package render

import (
	"fmt"
	"strings"

	"github.com/l3aro/obviews/pkg/markup"
	"github.com/l3aro/obviews/pkg/program"
)

// Emitter writes one CFG as DOT.
type Emitter struct {
	Decorator Decorator
	Palette   *Palette
	// Signature is appended to the graph label when set.
	Signature string
}

// CFG renders g. The decorator hooks are called in order: StartCFG, one
// BlockBody and BlockAttrs per block, CFGLabel, EndCFG.
func (e *Emitter) CFG(g *program.CFG) string {
	d := e.Decorator
	if d == nil {
		d = Base{}
	}
	pal := orDefault(e.Palette)

	d.StartCFG(g)

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", markup.ID("cfg_"+g.ID))
	fmt.Fprintf(&b, "  node [fontname=%q];\n", pal.Font)
	fmt.Fprintf(&b, "  edge [fontname=%q];\n", pal.Font)

	for _, blk := range g.Blocks {
		attrs := blockAttrs(blk, d)
		attrs = append(attrs, d.BlockAttrs(blk)...)
		fmt.Fprintf(&b, "  %s [%s];\n", nodeID(blk), formatAttrs(attrs))
	}

	for _, edge := range g.Edges {
		if edge.Type == "" || edge.Type == program.EdgeNotTaken {
			fmt.Fprintf(&b, "  %s -> %s;\n", nodeID(edge.Source), nodeID(edge.Sink))
		} else {
			fmt.Fprintf(&b, "  %s -> %s [label=\"%s\"];\n", nodeID(edge.Source), nodeID(edge.Sink), markup.Label(edge.Type))
		}
	}

	label := []string{markup.HTML("CFG: " + g.Name())}
	label = append(label, d.CFGLabel(g)...)
	if e.Signature != "" {
		label = append(label, markup.HTML(e.Signature))
	}
	fmt.Fprintf(&b, "  label=<%s>;\n", strings.Join(label, "<br/>"))
	b.WriteString("  labelloc=\"t\";\n")
	b.WriteString("}\n")

	d.EndCFG(g)
	return b.String()
}

func nodeID(b *program.Block) string {
	return fmt.Sprintf("b%d", b.ID)
}

// blockAttrs returns the attributes fixed by the block kind. Code block
// labels are HTML tables whose body comes from the decorator.
func blockAttrs(b *program.Block, d Decorator) []Attr {
	switch b.Kind {
	case program.Entry:
		return []Attr{{Key: "label", Value: "entry"}, {Key: "shape", Value: "ellipse"}}
	case program.Exit:
		return []Attr{{Key: "label", Value: "exit"}, {Key: "shape", Value: "ellipse"}}
	case program.Call:
		if b.Callee == nil {
			return []Attr{{Key: "label", Value: "call unknown"}, {Key: "shape", Value: "box"}}
		}
		return []Attr{
			{Key: "URL", Value: b.Callee.ID},
			{Key: "label", Value: fmt.Sprintf("call %s (%s)", b.Callee.Label, b.Callee.ID)},
			{Key: "shape", Value: "box"},
		}
	case program.Code:
		return []Attr{
			{Key: "margin", Value: "0"},
			{Key: "shape", Value: "box"},
			{Key: "label", Value: codeLabel(b, d.BlockBody(b)), HTML: true},
		}
	default:
		return []Attr{{Key: "label", Value: b.Kind.String()}, {Key: "shape", Value: "diamond"}}
	}
}

func codeLabel(b *program.Block, body string) string {
	var sb strings.Builder
	sb.WriteString(`<table border="0" cellpadding="8">`)
	fmt.Fprintf(&sb, "<tr><td>BB %d (%x:%d)</td></tr>", b.ID, b.Base, b.Size)
	if body != "" {
		sb.WriteString(`<hr/><tr><td align="left" balign="left">`)
		sb.WriteString(body)
		sb.WriteString("</td></tr>")
	}
	sb.WriteString("</table>")
	return sb.String()
}

func formatAttrs(attrs []Attr) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.HTML {
			parts = append(parts, a.Key+"=<"+a.Value+">")
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s="%s"`, a.Key, markup.Label(a.Value)))
	}
	return strings.Join(parts, ", ")
}
