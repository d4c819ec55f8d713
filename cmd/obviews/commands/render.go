package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/task"
	"github.com/l3aro/obviews/pkg/view"
)

type renderOptions struct {
	views     []string
	colorStat string
	stats     []string
	format    string
	output    string
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	ro := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render <executable> <cfg>",
		Short: "Render one CFG as DOT or an image",
		Long: `Renders the CFG with the given id (or index) of the task.

The blocks show the selected views and statistics; --stat colors the blocks
by the relative weight of a statistic. Formats other than dot go through the
configured layout engine.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			tk, err := opts.openTask(e, args[0])
			if err != nil {
				return err
			}
			g, err := tk.CFG(args[1])
			if err != nil {
				return err
			}

			views := ro.views
			if !cmd.Flags().Changed("views") {
				views = tk.KnownViews(e.cfg.DefaultViews)
			}
			vs, err := selectViews(tk, views)
			if err != nil {
				return err
			}
			color, stats, err := selectStats(tk, ro.colorStat, ro.stats)
			if err != nil {
				return err
			}

			var dot string
			err = tk.Do(stats, vs, func() error {
				dot = render.NewEmitter(tk.Program, render.Options{
					Views:     vs,
					Stats:     stats,
					Color:     color,
					Sources:   tk.Sources,
					Palette:   e.palette,
					Signature: "obviews " + Version,
				}).CFG(g)
				return nil
			})
			if err != nil {
				return err
			}
			return writeGraph(cmd, e, dot, ro.format, ro.output)
		},
	}

	cmd.Flags().StringSliceVar(&ro.views, "views", nil, "Views shown in the blocks (default from config)")
	cmd.Flags().StringVarP(&ro.colorStat, "stat", "s", "", "Statistic used to color the blocks")
	cmd.Flags().StringSliceVar(&ro.stats, "stats", nil, "Statistics listed in the blocks")
	cmd.Flags().StringVarP(&ro.format, "format", "f", "dot", "Output format (dot, svg, png, jpg)")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

// selectViews resolves view names; names the task lacks are an error.
func selectViews(tk *task.Task, names []string) ([]*view.View, error) {
	set, err := tk.ViewSet(names)
	if err != nil {
		return nil, err
	}
	return view.Select(tk.Views(), set), nil
}

// selectStats resolves the coloring statistic and the listed ones. The
// coloring statistic is always listed first.
func selectStats(tk *task.Task, colorID string, ids []string) (*stat.Statistic, []*stat.Statistic, error) {
	var color *stat.Statistic
	var stats []*stat.Statistic
	if colorID != "" {
		st, err := tk.Statistic(colorID)
		if err != nil {
			return nil, nil, err
		}
		color = st
		stats = append(stats, st)
	}
	for _, id := range ids {
		if color != nil && id == color.ID {
			continue
		}
		st, err := tk.Statistic(id)
		if err != nil {
			return nil, nil, err
		}
		stats = append(stats, st)
	}
	return color, stats, nil
}

// writeGraph writes dot as is, or laid out in format.
func writeGraph(cmd *cobra.Command, e *env, dot, format, path string) error {
	data := []byte(dot)
	if f := strings.ToLower(format); f != "dot" {
		ft, err := layout.ParseFormat(f)
		if err != nil {
			return err
		}
		l, err := e.layout()
		if err != nil {
			return err
		}
		spinner := log.NewProgressSpinner(cmd.ErrOrStderr(), "laying out graph")
		if path != "" {
			spinner.Start()
		}
		data, err = l.Render(cmd.Context(), data, ft)
		spinner.Stop()
		if err != nil {
			return err
		}
	}

	w, closeFn, err := output(cmd, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = closeFn()
		return fmt.Errorf("writing output: %w", err)
	}
	return closeFn()
}
