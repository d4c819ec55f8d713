package view

import (
	"sort"
	"strconv"
	"strings"
)

// Set selects views by their Index bit.
type Set uint64

// SetOf returns the set holding the given view indexes.
func SetOf(indexes ...int) Set {
	var s Set
	for _, i := range indexes {
		s |= 1 << uint(i)
	}
	return s
}

// Has reports whether index i is in s.
func (s Set) Has(i int) bool {
	return i >= 0 && i < 64 && s&(1<<uint(i)) != 0
}

// ParseSet reads a decimal bitmask. An empty string is the empty set.
func ParseSet(str string) (Set, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(str, 10, 64)
	return Set(n), err
}

// Select returns the views of vs whose Index is in s, in the order of vs.
func Select(vs []*View, s Set) []*View {
	var out []*View
	for _, v := range vs {
		if s.Has(v.Index) {
			out = append(out, v)
		}
	}
	return out
}

// Entry is one merged annotation.
type Entry struct {
	View *View
	Seq  int
	Item Item
	// Header is set on source entries whose file:line must be shown.
	Header bool
}

// Merge interleaves the items that the loaded views attach to one block,
// ordered by address, then view level, then position within the view.
// A source entry shows its header only when the file changes or the line
// neither repeats nor follows the previous source position.
func Merge(views []*View, cfg, block int) []Entry {
	var all []Entry
	for _, v := range views {
		for i, it := range v.Get(cfg, block) {
			all = append(all, Entry{View: v, Seq: i, Item: it})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Item.Address != b.Item.Address {
			return a.Item.Address < b.Item.Address
		}
		if a.View.Level != b.View.Level {
			return a.View.Level < b.View.Level
		}
		if a.View != b.View {
			// only reached with inconsistent levels
			return a.View.Name < b.View.Name
		}
		return a.Seq < b.Seq
	})

	out := all[:0]
	var (
		file    string
		line    int
		hasPrev bool
	)
	for _, e := range all {
		if e.View.Kind != Source {
			out = append(out, e)
			continue
		}
		e.Header = !hasPrev || e.Item.File != file ||
			(e.Item.Line != line && e.Item.Line != line+1)
		file, line, hasPrev = e.Item.File, e.Item.Line, true
		out = append(out, e)
	}
	return out
}
