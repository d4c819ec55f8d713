// Package record reads the graph files written by the WCET analyzer.
// Two encodings are supported: the compact line-record form (one opcode
// letter followed by tab-separated fields) and the legacy XML collection.
// Both produce the same File value, which the program package assembles into
// a program.
package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode tags one graph record.
type Opcode byte

const (
	OpGraph   Opcode = 'G' // start of a CFG
	OpEntry   Opcode = 'N' // entry block
	OpExit    Opcode = 'X' // exit block
	OpBlock   Opcode = 'B' // code block
	OpCall    Opcode = 'C' // call block
	OpEdge    Opcode = 'E' // edge between two blocks of the current CFG
	OpUnknown Opcode = 'U' // unknown block
	OpVirtual Opcode = 'P' // virtual block
)

// UnknownTarget is the call target index of a call whose callee is not known.
const UnknownTarget = -1

func (o Opcode) String() string {
	return string(rune(o))
}

// arity is the number of fields expected after the opcode tag.
// Edges take an optional third field, handled separately.
var arity = map[Opcode]int{
	OpGraph:   4,
	OpEntry:   0,
	OpExit:    0,
	OpBlock:   2,
	OpCall:    1,
	OpEdge:    2,
	OpUnknown: 0,
	OpVirtual: 0,
}

// SourceLine is a (file, line) pair attached to a code block by the legacy
// XML form.
type SourceLine struct {
	File string
	Line int
}

// Record is one decoded graph record. Only the fields relevant to Op are set.
type Record struct {
	Op  Opcode
	Pos int // 1-based line in the file; 0 for the XML form

	// OpGraph
	ID      string
	Label   string
	Context string

	// OpGraph (entry address) and OpBlock (base address)
	Address uint64
	// OpBlock
	Size uint64
	// OpCall: index of the callee CFG or UnknownTarget
	Target int
	// OpEdge: indexes of the blocks in the current CFG
	Source   int
	Sink     int
	EdgeType string

	// OpBlock, legacy form only
	Lines []SourceLine
}

// File is the decoded content of one graph file.
type File struct {
	Path    string
	Meta    map[string]string
	Records []Record
}

// ParseAddress parses a hexadecimal address with or without a 0x prefix.
func ParseAddress(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// ParseSize parses a byte size written in decimal or with a 0x prefix.
func ParseSize(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}

// Unquote strips one pair of surrounding double quotes, if present.
// Context strings are written either bare or quoted by the analyzer.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// SplitFields splits a record line. Tab is the field separator; lines without
// any tab are split on runs of blanks so hand-written files stay readable.
func SplitFields(line string) []string {
	if strings.IndexByte(line, '\t') >= 0 {
		return strings.Split(line, "\t")
	}
	return strings.Fields(line)
}

// ParseMeta decodes a `#Key: value` preamble line.
// ok is false for plain comments.
func ParseMeta(line string) (key, value string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return "", "", false
	}
	key, value, ok = strings.Cut(line[1:], ":")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func (r Record) String() string {
	switch r.Op {
	case OpGraph:
		return fmt.Sprintf("G %s %s 0x%x %q", r.ID, r.Label, r.Address, r.Context)
	case OpBlock:
		return fmt.Sprintf("B 0x%x %d", r.Address, r.Size)
	case OpCall:
		return fmt.Sprintf("C %d", r.Target)
	case OpEdge:
		if r.EdgeType != "" {
			return fmt.Sprintf("E %d %d %s", r.Source, r.Sink, r.EdgeType)
		}
		return fmt.Sprintf("E %d %d", r.Source, r.Sink)
	default:
		return r.Op.String()
	}
}
