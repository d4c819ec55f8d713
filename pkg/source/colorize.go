package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/l3aro/obviews/pkg/markup"
)

// Colorizer turns a whole file into one escaped, highlighted markup string
// per line. The markup only uses tags Graphviz HTML labels accept.
type Colorizer interface {
	Colorize(content []byte) ([]string, error)
}

// Plain escapes lines without highlighting.
type Plain struct{}

func (Plain) Colorize(content []byte) ([]string, error) {
	lines := SplitLines(content)
	for i, l := range lines {
		lines[i] = markup.HTML(l)
	}
	return lines, nil
}

type style uint8

const (
	styleNone style = iota
	stylePreproc
	styleControl
	styleType
	styleComment
)

func (s style) wrap(text string) string {
	switch s {
	case stylePreproc:
		return `<font color="orange"><b>` + text + `</b></font>`
	case styleControl:
		return `<font color="red"><b>` + text + `</b></font>`
	case styleType:
		return `<b>` + text + `</b>`
	case styleComment:
		return `<font color="green"><i>` + text + `</i></font>`
	default:
		return text
	}
}

var controlKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "switch": true,
	"case": true, "default": true, "break": true, "continue": true,
	"do": true, "return": true, "goto": true,
}

var typeKeywords = map[string]bool{
	"typedef": true, "struct": true, "union": true, "enum": true,
	"const": true, "volatile": true, "static": true, "extern": true,
	"signed": true, "unsigned": true, "short": true, "long": true,
	"class": true, "namespace": true, "template": true, "typename": true,
}

// TreeSitter highlights C-family sources from their syntax tree.
type TreeSitter struct {
	pool *sync.Pool
}

var (
	cParserPool = sync.Pool{
		New: func() interface{} {
			parser := sitter.NewParser()
			parser.SetLanguage(c.GetLanguage())
			return parser
		},
	}
	cppParserPool = sync.Pool{
		New: func() interface{} {
			parser := sitter.NewParser()
			parser.SetLanguage(cpp.GetLanguage())
			return parser
		},
	}
)

// NewC returns a colorizer for C.
func NewC() *TreeSitter {
	return &TreeSitter{pool: &cParserPool}
}

// NewCPP returns a colorizer for C++.
func NewCPP() *TreeSitter {
	return &TreeSitter{pool: &cppParserPool}
}

func (t *TreeSitter) Colorize(content []byte) ([]string, error) {
	parser := t.pool.Get().(*sitter.Parser)
	defer t.pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing source failed")
	}
	defer tree.Close()

	styles := make([]style, len(content))
	mark(tree.RootNode(), styles)
	return emit(content, styles), nil
}

// mark records the style of every highlighted token in styles.
func mark(node *sitter.Node, styles []style) {
	if node == nil {
		return
	}
	typ := node.Type()
	s := styleNone
	switch {
	case typ == "comment":
		s = styleComment
	case strings.HasPrefix(typ, "#"), typ == "preproc_directive":
		s = stylePreproc
	case typ == "primitive_type":
		s = styleType
	case !node.IsNamed() && controlKeywords[typ]:
		s = styleControl
	case !node.IsNamed() && typeKeywords[typ]:
		s = styleType
	}
	if s != styleNone {
		start, end := int(node.StartByte()), int(node.EndByte())
		if end > len(styles) {
			end = len(styles)
		}
		for i := start; i < end; i++ {
			styles[i] = s
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		mark(node.Child(i), styles)
	}
}

// emit splits content into lines and wraps each run of equally styled
// bytes, so tags never cross a line boundary.
func emit(content []byte, styles []style) []string {
	if len(content) == 0 {
		return nil
	}
	var out []string
	start := 0
	for start <= len(content) {
		end := bytes.IndexByte(content[start:], '\n')
		if end < 0 {
			end = len(content)
		} else {
			end += start
		}
		if start == len(content) {
			break
		}
		out = append(out, emitLine(content[start:end], styles[start:end]))
		start = end + 1
	}
	return out
}

func emitLine(line []byte, styles []style) string {
	line = bytes.TrimRight(line, "\r")
	styles = styles[:len(line)]
	var sb strings.Builder
	for i := 0; i < len(line); {
		j := i + 1
		for j < len(line) && styles[j] == styles[i] {
			j++
		}
		sb.WriteString(styles[i].wrap(markup.HTML(string(line[i:j]))))
		i = j
	}
	return sb.String()
}

// SplitLines splits content into lines without their terminators. A final
// newline does not start an extra line.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
