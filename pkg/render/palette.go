package render

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
)

//go:embed palette.toml
var embeddedPalette []byte

// Palette maps statistic ratios to node colors.
type Palette struct {
	Colors []string `toml:"colors"`
	// Threshold is the scaled ratio from which text uses Light.
	Threshold float64 `toml:"threshold"`
	Dark      string  `toml:"dark"`
	Light     string  `toml:"light"`
	Font      string  `toml:"font"`
	// Header colors the file:line headers of source annotations.
	Header string `toml:"header"`
}

// DefaultPalette returns the built-in palette.
func DefaultPalette() *Palette {
	var p Palette
	if err := toml.Unmarshal(embeddedPalette, &p); err != nil {
		panic(fmt.Sprintf("embedded palette: %v", err))
	}
	return &p
}

// LoadPalette reads a TOML palette over the built-in one. Keys missing
// from the file keep their default. An empty path returns the default.
func LoadPalette(path string) (*Palette, error) {
	p := DefaultPalette()
	if path == "" {
		return p, nil
	}
	if _, err := toml.DecodeFile(path, p); err != nil {
		return nil, fmt.Errorf("failed to load palette from %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that the palette can color any ratio.
func (p *Palette) Validate() error {
	if len(p.Colors) == 0 {
		return fmt.Errorf("no colors")
	}
	if p.Dark == "" || p.Light == "" {
		return fmt.Errorf("dark and light foregrounds are required")
	}
	return nil
}

// Ratio returns value/max, or 0 when max is 0.
func Ratio(value, max int64) float64 {
	if max == 0 {
		return 0
	}
	return float64(value) / float64(max)
}

func (p *Palette) scaled(ratio float64) float64 {
	return ratio * float64(len(p.Colors)-1)
}

// Background returns the color of ratio in [0, 1].
func (p *Palette) Background(ratio float64) string {
	i := int(math.Round(p.scaled(ratio)))
	if i < 0 {
		i = 0
	}
	if i >= len(p.Colors) {
		i = len(p.Colors) - 1
	}
	return p.Colors[i]
}

// Foreground returns the text color readable on Background(ratio).
func (p *Palette) Foreground(ratio float64) string {
	if p.scaled(ratio) < p.Threshold {
		return p.Dark
	}
	return p.Light
}
