package render

import (
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/source"
	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/view"
)

// Options select what a CFG rendering shows.
type Options struct {
	// Views are merged into code blocks, in address order.
	Views []*view.View
	// Stats are listed on code blocks.
	Stats []*stat.Statistic
	// Color fills blocks when set.
	Color *stat.Statistic

	Sources   *source.Manager
	Palette   *Palette
	Signature string
}

// NewEmitter builds the decorator chain described by opts. The statistics
// and views must be loaded before rendering.
func NewEmitter(p *program.Program, opts Options) *Emitter {
	var seq Sequence
	if len(opts.Views) > 0 {
		seq = append(seq, &ViewDecorator{Views: opts.Views, Sources: opts.Sources, Palette: opts.Palette})
	}
	if len(opts.Stats) > 0 {
		seq = append(seq, &StatDecorator{Program: p, Stats: opts.Stats})
	}
	if opts.Color != nil {
		seq = append(seq, &ColorDecorator{Program: p, Stat: opts.Color, Palette: opts.Palette})
	}
	return &Emitter{Decorator: seq, Palette: opts.Palette, Signature: opts.Signature}
}
