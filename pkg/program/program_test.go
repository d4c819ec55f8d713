package program

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/obviews/pkg/record"
)

func build(t *testing.T, lines ...string) (*Program, error) {
	t.Helper()
	f, err := record.ReadLines(strings.NewReader(strings.Join(lines, "\n")), "cfg.csv")
	require.NoError(t, err)
	return Build(f)
}

func TestBuildMinimal(t *testing.T) {
	p, err := build(t,
		"G\t0\tmain\t0x1000\t\"\"",
		"N",
		"B\t0x1000\t0x10",
		"X",
		"E\t0\t1",
		"E\t1\t2",
	)
	require.NoError(t, err)
	require.Len(t, p.CFGs, 1)

	g := p.CFGs[0]
	require.Len(t, g.Blocks, 3)
	assert.Len(t, g.Edges, 2)

	assert.Equal(t, Entry, g.Blocks[0].Kind)
	assert.Equal(t, Code, g.Blocks[1].Kind)
	assert.Equal(t, Exit, g.Blocks[2].Kind)
	assert.Same(t, g.Blocks[0], g.Entry)
	assert.Same(t, g.Blocks[2], g.Exit)

	code := g.Blocks[1]
	assert.Equal(t, uint64(0x1000), code.Base)
	assert.Equal(t, uint64(0x1010), code.End())
	assert.True(t, code.Contains(0x1000))
	assert.True(t, code.Contains(0x100f))
	assert.False(t, code.Contains(0x1010))

	for i, b := range g.Blocks {
		assert.Equal(t, i, b.ID)
		assert.Same(t, g, b.CFG)
	}

	require.Len(t, code.Pred, 1)
	require.Len(t, code.Next, 1)
	assert.Same(t, g.Entry, code.Pred[0].Source)
	assert.Same(t, g.Exit, code.Next[0].Sink)
	assert.Same(t, code.Next[0], g.Exit.Pred[0])
}

func TestBuildForwardCall(t *testing.T) {
	p, err := build(t,
		"G\t0\tmain\t0x1000\t\"\"",
		"N",
		"C\t1",
		"C\t-1",
		"X",
		"E\t0\t1",
		"E\t1\t2",
		"E\t2\t3\tnot-taken",
		"G\t1\tf\t0x2000\t\"\"",
		"N",
		"X",
		"E\t0\t1",
	)
	require.NoError(t, err)
	require.Len(t, p.CFGs, 2)

	calls := p.CFGs[0].Calls()
	require.Len(t, calls, 2)
	assert.Same(t, p.CFGs[1], calls[0].Callee)
	assert.Nil(t, calls[1].Callee)
	assert.Equal(t, EdgeNotTaken, p.CFGs[0].Edges[2].Type)
	assert.Equal(t, 1, p.CFGs[1].Index)

	g, ok := p.Find("1")
	assert.True(t, ok)
	assert.Equal(t, "f", g.Label)
	_, ok = p.Find("9")
	assert.False(t, ok)
}

func TestBuildErrors(t *testing.T) {
	head := "G\t0\tmain\t0\t\"\""
	tests := []struct {
		name      string
		lines     []string
		unresolve bool
		structure bool
	}{
		{name: "call to missing cfg", lines: []string{head, "N", "C\t4", "X"}, unresolve: true},
		{name: "edge to undeclared block", lines: []string{head, "N", "E\t0\t1", "X"}, unresolve: true},
		{name: "no exit", lines: []string{head, "N"}, structure: true},
		{name: "no entry before next graph", lines: []string{head, "X", "G\t1\tf\t0\t\"\"", "N", "X"}, structure: true},
		{name: "duplicate entry", lines: []string{head, "N", "N", "X"}, structure: true},
		{name: "duplicate exit", lines: []string{head, "N", "X", "X"}, structure: true},
		{name: "block before graph", lines: []string{"N"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.lines...)
			require.Error(t, err)

			var ue *record.UnresolvedReferenceError
			assert.Equal(t, tt.unresolve, errors.As(err, &ue))
			var se *StructureError
			assert.Equal(t, tt.structure, errors.As(err, &se))
			if !tt.structure {
				var fe *record.FormatError
				assert.True(t, errors.As(err, &fe))
			}
		})
	}
}

func TestValidateOverlap(t *testing.T) {
	p, err := build(t,
		"G\t0\tmain\t0\t\"\"",
		"N",
		"B\t0x10\t8",
		"B\t0x18\t8",
		"B\t0x00\t0",
		"X",
	)
	require.NoError(t, err)
	assert.NoError(t, p.Validate())

	p, err = build(t,
		"G\t0\tmain\t0\t\"\"",
		"N",
		"B\t0x10\t8",
		"B\t0x14\t8",
		"X",
	)
	require.NoError(t, err)
	var se *StructureError
	assert.True(t, errors.As(p.Validate(), &se))
	assert.Contains(t, se.Msg, "overlaps")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "cfg.csv")
	require.NoError(t, os.WriteFile(csv, []byte("#Task: main\nG\t0\tmain\t0\t\"\"\nN\nB\t0\t8\nB\t4\t8\nX\n"), 0644))

	p, err := Load(csv, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "main", p.Meta["Task"])

	_, err = Load(csv, LoadOptions{ValidateOverlap: true})
	var se *StructureError
	assert.True(t, errors.As(err, &se))

	xml := filepath.Join(dir, "cfg.xml")
	require.NoError(t, os.WriteFile(xml, []byte(`<cfg-collection><cfg id="_0" label="main">
<entry id="a"/><bb id="b" address="10" size="4"><line file="m.c" line="2"/></bb><exit id="c"/>
<edge source="a" target="b"/><edge source="b" target="c"/></cfg></cfg-collection>`), 0644))

	p, err = Load(xml, LoadOptions{ValidateOverlap: true})
	require.NoError(t, err)
	b := p.CFGs[0].Blocks[1]
	assert.Equal(t, uint64(0x10), b.Base)
	assert.Equal(t, []Line{{File: "m.c", Line: 2}}, b.Lines)

	_, err = Load(filepath.Join(dir, "none.csv"), LoadOptions{})
	var me *record.MissingFileError
	assert.True(t, errors.As(err, &me))
}

func TestData(t *testing.T) {
	var d Data
	d.Add("t", 0)
	d.Set("t", 0)
	d.Max("t", 0)
	d.Max("t", -3)
	assert.Nil(t, d, "zero updates must not materialize")
	assert.Equal(t, int64(0), d.Get("t"))

	d.Add("t", 5)
	d.Add("t", 2)
	assert.Equal(t, int64(7), d.Get("t"))
	d.Max("t", 3)
	assert.Equal(t, int64(7), d.Get("t"))
	d.Max("t", 9)
	assert.Equal(t, int64(9), d.Get("t"))
	d.Set("t", 1)
	assert.Equal(t, int64(1), d.Get("t"))

	d.Reset("t")
	_, ok := d["t"]
	assert.False(t, ok)
}

func TestContexts(t *testing.T) {
	p, err := build(t,
		"G\t0\tmain\t0\t\"\"",
		"N", "X",
		"G\t1\tf\t0\t\"[a]\"",
		"N", "X",
		"G\t2\tf\t0\t\"[b]\"",
		"N", "X",
		"G\t3\tg\t0\t\"[a]\"",
		"N", "X",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"[a]", "[b]"}, p.Contexts())
	assert.Len(t, p.ByContext("[a]"), 2)
	assert.Len(t, p.ByContext(""), 1)
	assert.Equal(t, "f [b]", p.CFGs[2].Name())
	assert.Equal(t, "main", p.CFGs[0].Name())
	assert.Contains(t, p.Dump(), "CFG 2 f")
}
