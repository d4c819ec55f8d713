package render

import (
	"fmt"
	"strings"

	"github.com/l3aro/obviews/pkg/markup"
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/source"
	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/view"
)

// br ends a left-aligned line of an HTML-like label.
const br = `<br align="left"/>`

// Attr is one DOT attribute. Value is written quoted and escaped, or as
// is between angle brackets when HTML is set.
type Attr struct {
	Key   string
	Value string
	HTML  bool
}

// Decorator contributes to the output of the emitter. CFGLabel lines and
// BlockBody markup are HTML-like label content; BlockBody is only asked
// for code blocks.
type Decorator interface {
	StartCFG(g *program.CFG)
	EndCFG(g *program.CFG)
	CFGLabel(g *program.CFG) []string
	BlockBody(b *program.Block) string
	BlockAttrs(b *program.Block) []Attr
	// SectionSeparator is placed between the non-empty bodies of a
	// Sequence.
	SectionSeparator() string
}

// Base implements every Decorator hook as a no-op. Embed it to override
// only some of them.
type Base struct{}

func (Base) StartCFG(*program.CFG)            {}
func (Base) EndCFG(*program.CFG)              {}
func (Base) CFGLabel(*program.CFG) []string   { return nil }
func (Base) BlockBody(*program.Block) string  { return "" }
func (Base) BlockAttrs(*program.Block) []Attr { return nil }

func (Base) SectionSeparator() string {
	return `</td></tr><hr/><tr><td align="left" balign="left">`
}

// Sequence applies decorators in order. Bodies are joined with the
// separator of the sequence, attributes and label lines are concatenated.
type Sequence []Decorator

func (s Sequence) StartCFG(g *program.CFG) {
	for _, d := range s {
		d.StartCFG(g)
	}
}

func (s Sequence) EndCFG(g *program.CFG) {
	for _, d := range s {
		d.EndCFG(g)
	}
}

func (s Sequence) CFGLabel(g *program.CFG) []string {
	var out []string
	for _, d := range s {
		out = append(out, d.CFGLabel(g)...)
	}
	return out
}

func (s Sequence) BlockBody(b *program.Block) string {
	var parts []string
	for _, d := range s {
		if body := d.BlockBody(b); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, s.SectionSeparator())
}

func (s Sequence) BlockAttrs(b *program.Block) []Attr {
	var out []Attr
	for _, d := range s {
		out = append(out, d.BlockAttrs(b)...)
	}
	return out
}

func (s Sequence) SectionSeparator() string {
	return Base{}.SectionSeparator()
}

// ViewDecorator shows the merged annotations of the enabled views.
type ViewDecorator struct {
	Base
	Views   []*view.View
	Sources *source.Manager
	Palette *Palette
}

func (d *ViewDecorator) BlockBody(b *program.Block) string {
	var sb strings.Builder
	for _, e := range view.Merge(d.Views, b.CFG.Index, b.ID) {
		if e.View.Kind != view.Source {
			sb.WriteString(markup.HTML(e.Item.Text))
			sb.WriteString(br)
			continue
		}
		src, err := d.find(e.Item.File)
		if e.Header || err != nil {
			fmt.Fprintf(&sb, `<font color="%s">%s:%d:</font>%s`,
				markup.Text(orDefault(d.Palette).Header), markup.HTML(e.Item.File), e.Item.Line, br)
		}
		if err == nil {
			sb.WriteString(src.ColoredLine(e.Item.Line))
			sb.WriteString(br)
		}
	}
	return sb.String()
}

func (d *ViewDecorator) find(name string) (*source.Source, error) {
	if d.Sources == nil {
		return nil, source.ErrNotFound
	}
	return d.Sources.Find(name)
}

func orDefault(p *Palette) *Palette {
	if p == nil {
		return DefaultPalette()
	}
	return p
}

// StatDecorator lists the value of each statistic on code blocks as a
// share of the statistic total.
type StatDecorator struct {
	Base
	Program *program.Program
	Stats   []*stat.Statistic
}

func (d *StatDecorator) BlockBody(b *program.Block) string {
	var sb strings.Builder
	for _, s := range d.Stats {
		v := b.Data.Get(s.ID)
		pct := 100 * Ratio(v, s.Total(d.Program))
		sb.WriteString(markup.HTML(fmt.Sprintf("%s=%d (%3.2f%%)", s.Label(), v, pct)))
		sb.WriteString(br)
	}
	return sb.String()
}

// ColorDecorator fills blocks according to one statistic, relative to
// the largest block value of the task. A call block takes the largest
// block value of its callee.
type ColorDecorator struct {
	Base
	Program *program.Program
	Stat    *stat.Statistic
	Palette *Palette

	max int64
}

func (d *ColorDecorator) StartCFG(*program.CFG) {
	d.max = d.Stat.Max(d.Program)
}

func (d *ColorDecorator) CFGLabel(*program.CFG) []string {
	return []string{markup.HTML("colorized by " + d.Stat.Label())}
}

func (d *ColorDecorator) BlockAttrs(b *program.Block) []Attr {
	ratio := Ratio(d.value(b), d.max)
	if ratio == 0 {
		return nil
	}
	pal := orDefault(d.Palette)
	return []Attr{
		{Key: "fillcolor", Value: pal.Background(ratio)},
		{Key: "style", Value: "filled"},
		{Key: "fontcolor", Value: pal.Foreground(ratio)},
	}
}

func (d *ColorDecorator) value(b *program.Block) int64 {
	switch b.Kind {
	case program.Call:
		if b.Callee == nil {
			return 0
		}
		return b.Callee.Max.Get(d.Stat.ID)
	case program.Code:
		return b.Data.Get(d.Stat.ID)
	default:
		return 0
	}
}
