package commands

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/scanner"
)

func newTasksCmd() *cobra.Command {
	var jsonOutput bool
	var depth int

	cmd := &cobra.Command{
		Use:   "tasks [workspace]",
		Short: "List the analyzed tasks of a workspace",
		Long: `Walks the workspace (default: current directory) for task directories,
that is "<task>-otawa" directories holding a program graph. Directories
matched by a .obviewsignore file are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			opts := scanner.DefaultOptions()
			opts.MaxDepth = depth
			tasks, err := scanner.New(opts).Scan(root)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				data, err := json.MarshalIndent(tasks, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
				fmt.Fprintln(w, string(data))
				return nil
			}

			if len(tasks) == 0 {
				fmt.Fprintf(w, "No task found in %s (was the analyzer run with --stats?)\n", root)
				return nil
			}
			name := color.New(color.Bold).SprintFunc()
			for _, t := range tasks {
				fmt.Fprintf(w, "%s  %s  (%s, %d statistics, %d views)\n", name(t.Name), t.Path, t.Graph, t.Stats, t.Views)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().IntVar(&depth, "depth", 0, "Directory levels searched (0 is unlimited)")
	return cmd
}
