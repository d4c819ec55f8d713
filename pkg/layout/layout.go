// Package layout turns DOT text into images, either through the Graphviz
// `dot` program or through the Graphviz library linked in-process.
package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/goccy/go-graphviz"
)

// Format is an output format understood by Graphviz.
type Format string

const (
	SVG Format = "svg"
	PNG Format = "png"
	JPG Format = "jpg"
)

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case SVG:
		return "image/svg+xml"
	case PNG:
		return "image/png"
	case JPG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts svg, png and jpg, case insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case SVG, PNG, JPG:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Engines selectable by name.
const (
	EngineDot     = "dot"
	EngineBuiltin = "builtin"
)

// ExternalToolError reports a layout tool that is missing or failed.
// ExitCode is -1 when the tool could not be started.
type ExternalToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	msg := fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// Layout renders DOT text.
type Layout interface {
	Render(ctx context.Context, dot []byte, format Format) ([]byte, error)
}

// New returns the layout engine named engine. The dot engine runs the
// program at path, looked up in PATH when it has no directory.
func New(engine, path string) (Layout, error) {
	switch engine {
	case EngineDot, "":
		return NewCommand(path)
	case EngineBuiltin:
		return NewGraphviz(), nil
	default:
		return nil, fmt.Errorf("unknown layout engine %q", engine)
	}
}

// Command runs an external Graphviz program, feeding DOT on stdin.
type Command struct {
	Path string
}

// NewCommand resolves path. A missing program is an ExternalToolError.
func NewCommand(path string) (*Command, error) {
	if path == "" {
		path = EngineDot
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, &ExternalToolError{Tool: path, ExitCode: -1, Err: err}
	}
	return &Command{Path: resolved}, nil
}

func (c *Command) Render(ctx context.Context, dot []byte, format Format) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, "-T"+string(format))
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExternalToolError{Tool: c.Path, ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
		}
		return nil, &ExternalToolError{Tool: c.Path, ExitCode: -1, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Graphviz lays graphs out with the linked Graphviz library. Renders are
// serialized since the library keeps global state.
type Graphviz struct {
	mu sync.Mutex
}

// NewGraphviz returns the in-process engine.
func NewGraphviz() *Graphviz {
	return &Graphviz{}
}

func (g *Graphviz) Render(ctx context.Context, dot []byte, format Format) ([]byte, error) {
	var gf graphviz.Format
	switch format {
	case SVG:
		gf = graphviz.SVG
	case PNG:
		gf = graphviz.PNG
	case JPG:
		gf = graphviz.JPG
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	graph, err := graphviz.ParseBytes(dot)
	if err != nil {
		return nil, fmt.Errorf("parsing graph: %w", err)
	}
	defer graph.Close()

	gv := graphviz.New()
	defer gv.Close()

	var buf bytes.Buffer
	if err := gv.Render(graph, gf, &buf); err != nil {
		return nil, fmt.Errorf("rendering graph: %w", err)
	}
	return buf.Bytes(), nil
}
