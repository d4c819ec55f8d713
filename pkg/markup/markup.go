// Package markup escapes text for Graphviz labels and HTML-like content.
package markup

import (
	"strings"
	"unicode"
)

var textReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	" ", "&nbsp;",
	"\t", "&nbsp;&nbsp;&nbsp;&nbsp;",
)

// Text escapes the HTML special characters of s.
func Text(s string) string {
	return textReplacer.Replace(s)
}

// HTML escapes s for an HTML-like label, keeping its spacing visible:
// blanks become non-breaking spaces and a tab becomes four of them.
func HTML(s string) string {
	return htmlReplacer.Replace(stripControl(s, true))
}

// Label escapes s for a double-quoted DOT string. Control characters are
// dropped.
func Label(s string) string {
	s = stripControl(s, false)
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ID turns an identifier into a DOT-safe name.
func ID(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func stripControl(s string, keepTab bool) string {
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsControl(r) && !(keepTab && r == '\t') }) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !(keepTab && r == '\t') {
			return -1
		}
		return r
	}, s)
}
