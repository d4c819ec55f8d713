package record

import (
	"fmt"
)

// FormatError reports a malformed record: unknown opcode, wrong field
// count, unparsable number or dangling reference.
type FormatError struct {
	Path string
	Line int // 0 when the position is not line based
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, msg)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// MissingFileError reports that a file the analyzer should have produced
// does not exist.
type MissingFileError struct {
	Path string
	Hint string
}

// DefaultHint is attached to missing analyzer outputs.
const DefaultHint = "was the analyzer run with --stats?"

func (e *MissingFileError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("missing file %s", e.Path)
	}
	return fmt.Sprintf("missing file %s (%s)", e.Path, e.Hint)
}

func errorf(path string, line int, format string, args ...interface{}) *FormatError {
	return &FormatError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// UnresolvedReferenceError reports a call or edge naming a CFG or block
// that was never declared.
type UnresolvedReferenceError struct {
	Kind string // "cfg" or "block"
	Ref  string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("reference to undeclared %s %s", e.Kind, e.Ref)
}
