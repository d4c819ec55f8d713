// Package commands provides the CLI commands for obviews.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/config"
	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/task"
)

// Version is printed by --version.
var Version = "dev"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	taskName   string
	configPath string
	verbose    bool
}

// NewRootCmd builds the obviews command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "obviews",
		Short: "obviews - WCET analysis viewer",
		Long: `obviews displays the control flow graphs of a WCET analysis, decorated
with the statistics and views produced by the analyzer.

Commands:
  cfgs        List the CFGs of a task
  render      Render one CFG as DOT or an image
  source      Render a source file with per-line statistics
  stats       List the statistics of a task
  callgraph   Render the call graph of a task
  tasks       List the analyzed tasks of a workspace
  serve       Serve a task to a browser
  init        Create a configuration file interactively
  doctor      Check the configuration and the layout tool

Use "obviews [command] --help" for more information about a command.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("obviews version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.taskName, "task", "t", task.DefaultName, "Task (entry point) to display")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "V", false, "Verbose logging")

	cmd.AddCommand(
		newCFGsCmd(opts),
		newRenderCmd(opts),
		newSourceCmd(opts),
		newStatsCmd(opts),
		newCallGraphCmd(opts),
		newTasksCmd(),
		newServeCmd(opts),
		newInitCmd(),
		newDoctorCmd(opts),
	)
	return cmd
}

// Execute runs the command tree on os.Args.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// env is what a command needs once the flags are parsed.
type env struct {
	cfg     *config.Config
	logger  log.Logger
	palette *render.Palette
}

func (o *rootOptions) env(cmd *cobra.Command) (*env, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFromFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := log.InfoLevel
	if o.verbose || cfg.Verbose {
		level = log.DebugLevel
	}
	logger := log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.LogJSON,
		Stderr:     cmd.ErrOrStderr(),
	})

	pal, err := render.LoadPalette(cfg.PaletteFile)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, palette: pal}, nil
}

// openTask opens the selected task of the executable exe. Sources are
// looked up next to the executable first.
func (o *rootOptions) openTask(e *env, exe string) (*task.Task, error) {
	paths := append([]string{filepath.Dir(exe)}, e.cfg.SourcePaths...)
	return task.OpenExecutable(exe, o.taskName, task.Options{
		SourcePaths:     paths,
		StrictContext:   e.cfg.StrictContext,
		ValidateOverlap: e.cfg.ValidateOverlap,
		DisasmArch:      e.cfg.DisasmArch,
		Logger:          e.logger,
	})
}

func (e *env) layout() (layout.Layout, error) {
	return layout.New(string(e.cfg.Layout), e.cfg.DotPath)
}

// output opens the -o destination, stdout when empty.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}
