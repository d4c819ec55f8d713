package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/stat"
)

func newSourceCmd(opts *rootOptions) *cobra.Command {
	var statID, format, outPath string

	cmd := &cobra.Command{
		Use:   "source <executable> <file>",
		Short: "Render a source file with per-line statistics",
		Long: `Renders a source file referenced by the task as an HTML table, colored
by --stat when given. With --format text, prints the per-line values of the
statistic as "0 <max> <line> <value>...".`,
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

			var st *stat.Statistic
			var stats []*stat.Statistic
			if statID != "" {
				if st, err = tk.Statistic(statID); err != nil {
					return err
				}
				stats = append(stats, st)
			}

			var text string
			switch format {
			case "html":
				src, err := tk.Sources.Find(args[1])
				if err != nil {
					return err
				}
				err = tk.Do(stats, nil, func() error {
					text = render.SourceTable(src, st, e.palette)
					return nil
				})
				if err != nil {
					return err
				}
			case "text":
				if st == nil {
					return fmt.Errorf("--format text needs --stat")
				}
				err = tk.Do(stats, nil, func() error {
					text = render.SourceStat(st, args[1])
					return nil
				})
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (use html or text)", format)
			}

			w, closeFn, err := output(cmd, outPath)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, text); err != nil {
				_ = closeFn()
				return fmt.Errorf("writing output: %w", err)
			}
			return closeFn()
		},
	}

	cmd.Flags().StringVarP(&statID, "stat", "s", "", "Statistic shown per line")
	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html, text)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
