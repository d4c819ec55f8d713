package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/config"
	"github.com/l3aro/obviews/internal/healthcheck"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		Long: `Guides you through setting up obviews step by step: the server address,
the layout engine, where sources are looked up, then where to save the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}
}

// initAnswers are the raw values of the wizard fields.
type initAnswers struct {
	host         string
	port         string
	layout       string
	dotPath      string
	sourcePaths  string
	defaultViews string
	paletteFile  string
	location     string
}

func defaultAnswers() *initAnswers {
	cfg := config.DefaultConfig()
	return &initAnswers{
		host:         cfg.Host,
		port:         strconv.Itoa(cfg.Port),
		layout:       string(cfg.Layout),
		dotPath:      cfg.DotPath,
		sourcePaths:  strings.Join(cfg.SourcePaths, ","),
		defaultViews: strings.Join(cfg.DefaultViews, ","),
		location:     "global",
	}
}

// config turns the answers into a validated Config.
func (a *initAnswers) config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Host = strings.TrimSpace(a.host)
	port, err := strconv.Atoi(strings.TrimSpace(a.port))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", a.port)
	}
	cfg.Port = port
	cfg.Layout = config.LayoutEngine(a.layout)
	cfg.DotPath = strings.TrimSpace(a.dotPath)
	cfg.SourcePaths = splitList(a.sourcePaths)
	cfg.DefaultViews = splitList(a.defaultViews)
	cfg.PaletteFile = strings.TrimSpace(a.paletteFile)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (a *initAnswers) path() string {
	if a.location == "project" {
		return config.ProjectConfigFilePath()
	}
	return config.GlobalConfigFilePath()
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func runInit(w io.Writer) error {
	a := defaultAnswers()

	// === SECTION 1: Server ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server host").
				Description("Address the viewer listens on").
				Placeholder(a.host).
				Value(&a.host),
			huh.NewInput().
				Title("Server port").
				Placeholder(a.port).
				Validate(validatePort).
				Value(&a.port),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Layout ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Layout engine").
				Description("How CFG descriptions are turned into images").
				Options(
					huh.NewOption("Graphviz dot program", string(config.LayoutDot)),
					huh.NewOption("Built-in (no external program)", string(config.LayoutBuiltin)),
				).
				Value(&a.layout),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	if a.layout == string(config.LayoutDot) {
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Path of the dot program").
					Placeholder(a.dotPath).
					Value(&a.dotPath),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 3: Sources and views ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Source lookup paths").
				Description("Comma separated; the directory of the executable is always searched first").
				Value(&a.sourcePaths),
			huh.NewInput().
				Title("Default views").
				Description("Comma separated, e.g. disassembly,source").
				Value(&a.defaultViews),
			huh.NewInput().
				Title("Palette file (optional, press Enter to skip)").
				Placeholder("optional").
				Value(&a.paletteFile),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 4: Config Location ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.obviews/config.yaml)", "global"),
					huh.NewOption("Project (./.obviews/config.yaml)", "project"),
				).
				Value(&a.location),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}
	configPath := a.path()

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	fmt.Fprintln(w, "\n=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	fmt.Fprintf(w, "Server: %s\n", cfg.Addr())
	fmt.Fprintf(w, "Layout: %s\n", cfg.Layout)
	if cfg.Layout == config.LayoutDot {
		fmt.Fprintf(w, "Dot path: %s\n", cfg.DotPath)
	}
	fmt.Fprintf(w, "Source paths: %s\n", strings.Join(cfg.SourcePaths, ", "))
	fmt.Fprintf(w, "Default views: %s\n", strings.Join(cfg.DefaultViews, ", "))
	fmt.Fprintln(w, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Fprintln(w, "\n=== Running Health Check ===")
	loaded, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loaded, configPath, configPath, "", "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Fprintf(w, "Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Fprintf(w, "Config Path: %s\n", absPath)
	}
	displayChecks(w, result)

	fmt.Fprintln(w, "\n=== Initialization Complete ===")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
