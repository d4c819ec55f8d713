package healthcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/obviews/internal/config"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/task"
)

// Status values of a check.
const (
	StatusReady = "ready"
	StatusError = "error"
	StatusSkip  = "skipped"
)

// CheckStatus is the outcome of one check.
type CheckStatus struct {
	Name   string
	Status string // "ready", "error" or "skipped"
	Detail string
	Error  string
}

// OK reports whether the check did not fail.
func (s CheckStatus) OK() bool {
	return s.Status != StatusError
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Config         CheckStatus
	Layout         CheckStatus
	Palette        CheckStatus
	Task           CheckStatus
}

// Checks returns the individual checks in display order.
func (r *HealthCheckResult) Checks() []CheckStatus {
	return []CheckStatus{r.Config, r.Layout, r.Palette, r.Task}
}

// OK reports whether every check passed or was skipped.
func (r *HealthCheckResult) OK() bool {
	for _, c := range r.Checks() {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
// The task check is skipped when exe is empty.
func Check(cfg *config.Config, savedPath, effectivePath, exe, taskName string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Config = checkConfig(cfg)
	result.Layout = checkLayout(cfg)
	result.Palette = checkPalette(cfg.PaletteFile)
	result.Task = checkTask(cfg, exe, taskName)
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".obviews")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

func checkConfig(cfg *config.Config) CheckStatus {
	status := CheckStatus{Name: "config"}
	if err := cfg.Validate(); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	status.Detail = cfg.Addr()
	return status
}

// checkLayout verifies that the configured layout engine can run. The
// dot program must be found; the builtin engine is always available.
func checkLayout(cfg *config.Config) CheckStatus {
	status := CheckStatus{Name: "layout"}
	l, err := layout.New(string(cfg.Layout), cfg.DotPath)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	switch l := l.(type) {
	case *layout.Command:
		status.Detail = l.Path
	default:
		status.Detail = string(cfg.Layout)
	}
	return status
}

func checkPalette(path string) CheckStatus {
	status := CheckStatus{Name: "palette"}
	p, err := render.LoadPalette(path)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	if path == "" {
		status.Detail = fmt.Sprintf("built-in, %d colors", len(p.Colors))
	} else {
		status.Detail = fmt.Sprintf("%s, %d colors", path, len(p.Colors))
	}
	return status
}

func checkTask(cfg *config.Config, exe, name string) CheckStatus {
	status := CheckStatus{Name: "task"}
	if exe == "" {
		status.Status = StatusSkip
		return status
	}
	tk, err := task.OpenExecutable(exe, name, task.Options{
		StrictContext:   cfg.StrictContext,
		ValidateOverlap: cfg.ValidateOverlap,
	})
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	status.Detail = fmt.Sprintf("%s: %d CFGs, %d statistics, %d views",
		tk.Dir, len(tk.Program.CFGs), len(tk.Statistics()), len(tk.Views()))
	return status
}
