package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LayoutEngine selects how graph descriptions are turned into images
type LayoutEngine string

const (
	// LayoutDot runs the external dot program
	LayoutDot LayoutEngine = "dot"
	// LayoutBuiltin lays graphs out in process
	LayoutBuiltin LayoutEngine = "builtin"
)

// Config holds all configuration for obviews
type Config struct {
	// HTTP server address
	Host string `yaml:"host" env:"OBVIEWS_HOST"`
	Port int    `yaml:"port" env:"OBVIEWS_PORT"`

	// Layout engine and path of the dot executable
	Layout  LayoutEngine `yaml:"layout" env:"OBVIEWS_LAYOUT"`
	DotPath string       `yaml:"dot_path" env:"OBVIEWS_DOT_PATH"`

	// Directories searched for source files named by the source view
	SourcePaths []string `yaml:"source_paths" env:"OBVIEWS_SOURCE_PATHS"`

	// Views enabled when a request does not name any
	DefaultViews []string `yaml:"default_views" env:"OBVIEWS_DEFAULT_VIEWS"`

	// Optional TOML file overriding the built-in palette
	PaletteFile string `yaml:"palette_file" env:"OBVIEWS_PALETTE_FILE"`

	// Number of rendered artifacts kept in memory
	CacheSize int `yaml:"cache_size" env:"OBVIEWS_CACHE_SIZE"`

	// Fail statistic loads whose records name a context no CFG has
	StrictContext bool `yaml:"strict_context" env:"OBVIEWS_STRICT_CONTEXT"`

	// Reject graphs with overlapping code blocks
	ValidateOverlap bool `yaml:"validate_overlap" env:"OBVIEWS_VALIDATE_OVERLAP"`

	// Architecture used to decode raw instruction words ("" or "arm64")
	DisasmArch string `yaml:"disasm_arch" env:"OBVIEWS_DISASM_ARCH"`

	// Logging
	Verbose bool `yaml:"verbose" env:"OBVIEWS_VERBOSE"`
	LogJSON bool `yaml:"log_json" env:"OBVIEWS_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            8000,
		Layout:          LayoutDot,
		DotPath:         "dot",
		SourcePaths:     []string{"."},
		DefaultViews:    []string{"disassembly"},
		PaletteFile:     "",
		CacheSize:       64,
		StrictContext:   false,
		ValidateOverlap: true,
		DisasmArch:      "",
		Verbose:         false,
		LogJSON:         false,
	}
}

// Addr returns the host:port the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GlobalConfigFilePath returns the global config file path (~/.obviews/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".obviews/config.yaml"
	}
	return filepath.Join(home, ".obviews", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.obviews/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".obviews", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.obviews/config.yaml)
// 2. Environment variables
// 3. Global config (~/.obviews/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return load(GlobalConfigFilePath(), ProjectConfigFilePath())
}

func load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(cfg, globalPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	// project settings win over the environment
	if err := mergeFile(cfg, projectPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeFile overlays the YAML file at path onto cfg. A missing file is not an error.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OBVIEWS_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("OBVIEWS_PORT"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Port = i
		}
	}
	if v := os.Getenv("OBVIEWS_LAYOUT"); v != "" {
		cfg.Layout = LayoutEngine(v)
	}
	if v := os.Getenv("OBVIEWS_DOT_PATH"); v != "" {
		cfg.DotPath = v
	}
	if v := os.Getenv("OBVIEWS_SOURCE_PATHS"); v != "" {
		cfg.SourcePaths = filepath.SplitList(v)
	}
	if v := os.Getenv("OBVIEWS_DEFAULT_VIEWS"); v != "" {
		cfg.DefaultViews = splitList(v)
	}
	if v := os.Getenv("OBVIEWS_PALETTE_FILE"); v != "" {
		cfg.PaletteFile = v
	}
	if v := os.Getenv("OBVIEWS_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("OBVIEWS_STRICT_CONTEXT"); v != "" {
		cfg.StrictContext = parseBool(v)
	}
	if v := os.Getenv("OBVIEWS_VALIDATE_OVERLAP"); v != "" {
		cfg.ValidateOverlap = parseBool(v)
	}
	if v := os.Getenv("OBVIEWS_DISASM_ARCH"); v != "" {
		cfg.DisasmArch = v
	}
	if v := os.Getenv("OBVIEWS_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("OBVIEWS_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	switch c.Layout {
	case LayoutDot:
		if c.DotPath == "" {
			return fmt.Errorf("dot_path is required when layout is dot")
		}
	case LayoutBuiltin:
		// Valid
	default:
		return fmt.Errorf("invalid layout: %s (must be 'dot' or 'builtin')", c.Layout)
	}

	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}

	switch c.DisasmArch {
	case "", "arm64":
		// Valid
	default:
		return fmt.Errorf("invalid disasm_arch: %s (must be empty or 'arm64')", c.DisasmArch)
	}

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

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
