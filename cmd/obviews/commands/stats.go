package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/task"
)

// StatOutput is one statistic in the stats output. Max and Total are only
// set once the statistic is loaded with --load.
type StatOutput struct {
	ID     string      `json:"id" yaml:"id" msgpack:"id"`
	Header stat.Header `json:"header" yaml:"header" msgpack:"header"`
	Max    *int64      `json:"max,omitempty" yaml:"max,omitempty" msgpack:"max,omitempty"`
	Total  *int64      `json:"total,omitempty" yaml:"total,omitempty" msgpack:"total,omitempty"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var format string
	var load bool

	cmd := &cobra.Command{
		Use:   "stats <executable> [statistic...]",
		Short: "List the statistics of a task",
		Long: `Lists the statistics found in the task directory with their header.
With --load, the statistics are read and their maximum and task total
are printed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			tk, err := opts.openTask(e, args[0])
			if err != nil {
				return err
			}

			out, err := collectStats(tk, args[1:], load)
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), out, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, yaml, json, msgpack)")
	cmd.Flags().BoolVarP(&load, "load", "l", false, "Load the statistics and print their extent")
	return cmd
}

func collectStats(tk *task.Task, ids []string, load bool) ([]StatOutput, error) {
	stats := tk.Statistics()
	if len(ids) > 0 {
		stats = stats[:0:0]
		for _, id := range ids {
			st, err := tk.Statistic(id)
			if err != nil {
				return nil, err
			}
			stats = append(stats, st)
		}
	}

	if load {
		if err := tk.Prepare(stats, nil); err != nil {
			return nil, err
		}
	} else {
		// only the headers are needed
		if _, err := tk.Headers(); err != nil {
			return nil, err
		}
	}

	out := make([]StatOutput, 0, len(stats))
	for _, st := range stats {
		o := StatOutput{ID: st.ID, Header: st.Header()}
		if load {
			_, hi := st.Extent(tk.Program)
			total := st.Total(tk.Program)
			o.Max, o.Total = &hi, &total
		}
		out = append(out, o)
	}
	return out, nil
}

func writeStats(w io.Writer, out []StatOutput, format string) error {
	switch format {
	case "table":
		printStats(w, out)
		return nil
	case "json":
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case "msgpack":
		data, err := msgpack.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshaling msgpack: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q (use table, yaml, json or msgpack)", format)
	}
}

func printStats(w io.Writer, out []StatOutput) {
	id := color.New(color.Bold, color.FgHiBlue).SprintfFunc()
	faint := color.New(color.Faint).SprintFunc()
	for _, o := range out {
		label := o.Header.Label
		if o.Header.Unit != "" {
			label += " (" + o.Header.Unit + ")"
		}
		fmt.Fprintf(w, "%s %s", id("%-20s", o.ID), label)
		if o.Max != nil {
			fmt.Fprintf(w, "  max=%d total=%d", *o.Max, *o.Total)
		}
		fmt.Fprintln(w)
		if o.Header.Description != "" {
			fmt.Fprintf(w, "%-20s %s\n", "", faint(o.Header.Description))
		}
	}
}
