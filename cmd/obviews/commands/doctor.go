package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/config"
	"github.com/l3aro/obviews/internal/healthcheck"
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [executable]",
		Short: "Check the configuration and the layout tool",
		Long: `Checks the configuration, the layout engine and the palette. When an
executable is given, its task directory is opened too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, configPath, err := loadConfigWithPath(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			exe := ""
			if len(args) > 0 {
				exe = args[0]
			}
			result, err := healthcheck.Check(cfg, configPath, configPath, exe, opts.taskName)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			w := cmd.OutOrStdout()
			if result.EffectivePath != "" {
				fmt.Fprintf(w, "Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
			} else {
				fmt.Fprintf(w, "Using config: built-in defaults\n\n")
			}
			displayChecks(w, result)

			if !result.OK() {
				return fmt.Errorf("health check failed: one or more checks did not pass")
			}
			return nil
		},
	}
}

// loadConfigWithPath loads the explicit config file, else the project one,
// else the global one. Without any file the defaults are used and the
// returned path is empty.
func loadConfigWithPath(explicit string) (*config.Config, string, error) {
	path := explicit
	if path == "" {
		for _, p := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
			if fileExists(p) {
				path = p
				break
			}
		}
	}
	if path == "" {
		cfg, err := config.Load()
		return cfg, "", err
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayChecks(w io.Writer, result *healthcheck.HealthCheckResult) {
	for _, c := range result.Checks() {
		fmt.Fprintf(w, "%-8s %s %s", c.Name+":", formatStatusIcon(c.Status), c.Status)
		if c.Detail != "" {
			fmt.Fprintf(w, " (%s)", c.Detail)
		}
		fmt.Fprintln(w)
		if c.Error != "" {
			fmt.Fprintf(w, "         Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusSkip:
		return "-"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}
