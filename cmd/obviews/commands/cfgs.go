package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/pkg/program"
)

// CFGOutput describes one CFG in the JSON output of cfgs.
type CFGOutput struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Label   string `json:"label"`
	Context string `json:"context,omitempty"`
	Address string `json:"address"`
	Blocks  int    `json:"blocks"`
	Calls   []int  `json:"calls,omitempty"`
}

func newCFGsCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cfgs <executable>",
		Short: "List the CFGs of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			tk, err := opts.openTask(e, args[0])
			if err != nil {
				return err
			}

			out := make([]CFGOutput, 0, len(tk.Program.CFGs))
			for _, g := range tk.Program.CFGs {
				out = append(out, cfgOutput(g))
			}

			if jsonOutput {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printCFGs(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func cfgOutput(g *program.CFG) CFGOutput {
	o := CFGOutput{
		Index:   g.Index,
		ID:      g.ID,
		Label:   g.Label,
		Context: g.Context,
		Address: fmt.Sprintf("0x%x", g.Address),
		Blocks:  len(g.Blocks),
	}
	for _, b := range g.Blocks {
		if b.Kind == program.Call && b.Callee != nil {
			o.Calls = append(o.Calls, b.Callee.Index)
		}
	}
	return o
}

func printCFGs(w io.Writer, cfgs []CFGOutput) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintfFunc()
	for _, g := range cfgs {
		name := g.Label
		if g.Context != "" {
			name += " " + g.Context
		}
		fmt.Fprintf(w, "%3d  %s  %s  (%d blocks)\n", g.Index, faint("%-10s", g.Address), bold(name), g.Blocks)
	}
}
