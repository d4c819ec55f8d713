package render

import (
	"fmt"
	"strings"

	"github.com/l3aro/obviews/pkg/source"
	"github.com/l3aro/obviews/pkg/stat"
)

const (
	spaceIndent = 8  // pt per leading space
	tabIndent   = 32 // pt per leading tab
	nbsp        = "&nbsp;"
)

// SourceTable renders a source file as an HTML table of numbered,
// highlighted lines. When s is not nil, each line with a value is filled
// relative to the largest line value of s and shows the value.
func SourceTable(src *source.Source, s *stat.Statistic, pal *Palette) string {
	pal = orDefault(pal)

	var b strings.Builder
	b.WriteString("<table id=\"stats\">\n")
	b.WriteString("<tr><th></th><th>source</th><th></th></tr>\n")
	for i, line := range src.Lines {
		num := i + 1
		var style []string
		if indent := indentation(line); indent > 0 {
			style = append(style, fmt.Sprintf("padding-left: %dpt;", indent))
		}

		var value string
		if s != nil {
			if v := s.LineValue(src.Name, num); v != 0 {
				ratio := Ratio(v, s.LineMax())
				style = append(style,
					fmt.Sprintf("background-color: %s;", pal.Background(ratio)),
					fmt.Sprintf("color: %s;", pal.Foreground(ratio)))
				value = fmt.Sprint(v)
			}
		}

		fmt.Fprintf(&b, "<tr><td>%d</td><td class=\"source\"", num)
		if len(style) > 0 {
			fmt.Fprintf(&b, " style=\"%s\"", strings.Join(style, " "))
		}
		fmt.Fprintf(&b, ">%s</td><td>%s</td></tr>\n", trimIndent(src.ColoredLine(num)), value)
	}
	b.WriteString("</table>\n")
	return b.String()
}

// indentation converts the leading blanks of line to points.
func indentation(line string) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ':
			n += spaceIndent
		case '\t':
			n += tabIndent
		default:
			return n
		}
	}
	return n
}

// trimIndent drops the escaped leading blanks of a highlighted line, the
// indentation being rendered as padding.
func trimIndent(markup string) string {
	for strings.HasPrefix(markup, nbsp) {
		markup = markup[len(nbsp):]
	}
	return markup
}

// SourceStat encodes the line values of file for client-side coloring:
// "0 <max>" followed by one "<line> <value>" pair per non-zero line.
func SourceStat(s *stat.Statistic, file string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "0 %d", s.LineMax())
	for _, l := range s.FileLines(file) {
		fmt.Fprintf(&b, " %d %d", l.Line, l.Value)
	}
	return b.String()
}
