package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one gitignore-style line of an ignore file.
type IgnorePattern struct {
	pattern     string
	isNegation  bool // starts with !
	isDirectory bool // ends with /
	isAbsolute  bool // starts with /, or has an inner /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAbsolute = true
		pattern = pattern[1:]
	}
	p.segments = strings.Split(pattern, "/")
	if len(p.segments) > 1 && p.segments[0] != "**" {
		p.isAbsolute = true
	}
	return p
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// String returns the pattern as written.
func (p IgnorePattern) String() string {
	return p.pattern
}

// Match reports whether the slash-separated relative path matches. A
// directory pattern matches everything below the directory too.
func (p IgnorePattern) Match(rel string) bool {
	parts := strings.Split(strings.Trim(rel, "/"), "/")

	starts := len(parts)
	if p.isAbsolute {
		starts = 1
	}
	for i := 0; i < starts; i++ {
		if p.matchFrom(p.segments, parts[i:]) {
			return true
		}
	}
	return false
}

// matchFrom matches pattern segments against the head of parts. A
// directory pattern may leave parts unmatched; a file pattern may not,
// unless it ends with **.
func (p IgnorePattern) matchFrom(segs, parts []string) bool {
	if len(segs) == 0 {
		return len(parts) == 0 || p.isDirectory
	}
	if segs[0] == "**" {
		if len(segs) == 1 {
			return true
		}
		for i := 0; i <= len(parts); i++ {
			if p.matchFrom(segs[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(strings.ToLower(segs[0]), strings.ToLower(parts[0]))
	if err != nil || !ok {
		return false
	}
	return p.matchFrom(segs[1:], parts[1:])
}

// ignored applies patterns in order; a later negation re-includes a path
// an earlier pattern excluded.
func ignored(rel string, patterns []IgnorePattern) bool {
	out := false
	for _, p := range patterns {
		if p.Match(rel) {
			out = !p.IsNegation()
		}
	}
	return out
}
