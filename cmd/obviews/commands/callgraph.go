package commands

import (
	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/pkg/render"
)

func newCallGraphCmd(opts *rootOptions) *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "callgraph <executable>",
		Short: "Render the call graph of a task",
		Long: `Renders which CFG calls which through its call blocks. Unresolved
calls are left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			tk, err := opts.openTask(e, args[0])
			if err != nil {
				return err
			}
			return writeGraph(cmd, e, render.CallGraph(tk.Program, tk.Name), format, outPath)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "Output format (dot, svg, png, jpg)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
