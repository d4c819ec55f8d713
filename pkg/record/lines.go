package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// maxLineSize bounds a single record line; disassembly payloads can be long.
const maxLineSize = 1 << 20

// OpenFile opens a required analyzer output, mapping absence to
// MissingFileError.
func OpenFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingFileError{Path: path, Hint: DefaultHint}
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// ReadLinesFile reads a graph file in the line-record form.
func ReadLinesFile(path string) (*File, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLines(f, path)
}

// ReadLines decodes line records from r. path is only used in errors.
func ReadLines(r io.Reader, path string) (*File, error) {
	file := &File{Path: path, Meta: make(map[string]string)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	pos := 0
	for sc.Scan() {
		pos++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == '#' {
			// the preamble ends at the first data record
			if len(file.Records) == 0 {
				if k, v, ok := ParseMeta(line); ok {
					file.Meta[k] = v
				}
			}
			continue
		}

		rec, err := parseLine(line, pos, path)
		if err != nil {
			return nil, err
		}
		file.Records = append(file.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return file, nil
}

func parseLine(line string, pos int, path string) (Record, error) {
	fields := SplitFields(line)
	tag := fields[0]
	if len(tag) != 1 {
		return Record{}, errorf(path, pos, "bad opcode %q", tag)
	}
	op := Opcode(tag[0])
	want, known := arity[op]
	if !known {
		return Record{}, errorf(path, pos, "unknown opcode %q", tag)
	}
	args := fields[1:]
	if len(args) != want && !(op == OpEdge && len(args) == want+1) {
		return Record{}, errorf(path, pos, "%s record takes %d fields, got %d", op, want, len(args))
	}

	rec := Record{Op: op, Pos: pos}
	var err error
	switch op {
	case OpGraph:
		rec.ID = args[0]
		rec.Label = args[1]
		if rec.Address, err = ParseAddress(args[2]); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad entry address", Err: err}
		}
		rec.Context = Unquote(args[3])
	case OpBlock:
		if rec.Address, err = ParseAddress(args[0]); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad block address", Err: err}
		}
		if rec.Size, err = ParseSize(args[1]); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad block size", Err: err}
		}
	case OpCall:
		if rec.Target, err = strconv.Atoi(strings.TrimSpace(args[0])); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad call target", Err: err}
		}
		if rec.Target < UnknownTarget {
			return Record{}, errorf(path, pos, "bad call target %d", rec.Target)
		}
	case OpEdge:
		if rec.Source, err = strconv.Atoi(strings.TrimSpace(args[0])); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad edge source", Err: err}
		}
		if rec.Sink, err = strconv.Atoi(strings.TrimSpace(args[1])); err != nil {
			return Record{}, &FormatError{Path: path, Line: pos, Msg: "bad edge sink", Err: err}
		}
		if len(args) == 3 {
			rec.EdgeType = strings.TrimSpace(args[2])
		}
	}
	return rec, nil
}
