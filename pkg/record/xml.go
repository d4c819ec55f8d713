package record

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// contextProperty is the property identifier carrying the call context of a
// CFG when the context attribute is absent.
const contextProperty = "otawa::CONTEXT"

type xmlCollection struct {
	XMLName xml.Name `xml:"cfg-collection"`
	CFGs    []xmlCFG `xml:"cfg"`
}

type xmlCFG struct {
	ID      string    `xml:"id,attr"`
	Label   string    `xml:"label,attr"`
	Address string    `xml:"address,attr"`
	Context *string   `xml:"context,attr"`
	Items   []xmlNode `xml:",any"`
}

type xmlNode struct {
	XMLName    xml.Name
	ID         string    `xml:"id,attr"`
	Address    string    `xml:"address,attr"`
	Size       string    `xml:"size,attr"`
	Call       *string   `xml:"call,attr"`
	Source     string    `xml:"source,attr"`
	Target     string    `xml:"target,attr"`
	Type       string    `xml:"type,attr"`
	Identifier string    `xml:"identifier,attr"`
	Text       string    `xml:",chardata"`
	Lines      []xmlLine `xml:"line"`
	Properties []xmlNode `xml:"property"`
}

type xmlLine struct {
	File string `xml:"file,attr"`
	Line int    `xml:"line,attr"`
}

// ReadXMLFile reads a graph file in the legacy XML form.
func ReadXMLFile(path string) (*File, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadXML(f, path)
}

// ReadXML decodes the legacy tree form into the same records the line form
// produces. Block and CFG identifiers are replaced by their indexes.
func ReadXML(r io.Reader, path string) (*File, error) {
	var doc xmlCollection
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &FormatError{Path: path, Msg: "bad XML", Err: err}
	}

	file := &File{Path: path, Meta: make(map[string]string)}
	cfgIndex := make(map[string]int, len(doc.CFGs))
	for i, g := range doc.CFGs {
		if g.ID == "" {
			return nil, errorf(path, 0, "cfg #%d has no id", i)
		}
		cfgIndex[g.ID] = i
	}

	for _, g := range doc.CFGs {
		recs, err := convertCFG(g, cfgIndex, path)
		if err != nil {
			return nil, err
		}
		file.Records = append(file.Records, recs...)
	}
	return file, nil
}

func convertCFG(g xmlCFG, cfgIndex map[string]int, path string) ([]Record, error) {
	head := Record{Op: OpGraph, ID: g.ID, Label: g.Label, Context: lookupContext(g)}
	if g.Address != "" {
		addr, err := ParseAddress(g.Address)
		if err != nil {
			return nil, &FormatError{Path: path, Msg: fmt.Sprintf("cfg %s: bad address", g.ID), Err: err}
		}
		head.Address = addr
	}
	recs := []Record{head}

	blocks := make(map[string]int)
	var edges []xmlNode
	for _, n := range g.Items {
		if n.XMLName.Local == "edge" {
			edges = append(edges, n)
			continue
		}
		if n.ID == "" {
			continue
		}
		rec, ok, err := convertBlock(n, cfgIndex, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		blocks[n.ID] = len(blocks)
		recs = append(recs, rec)
	}

	for _, e := range edges {
		src, ok := blocks[e.Source]
		if !ok {
			return nil, &FormatError{Path: path, Msg: "cfg " + g.ID, Err: &UnresolvedReferenceError{Kind: "block", Ref: e.Source}}
		}
		snk, ok := blocks[e.Target]
		if !ok {
			return nil, &FormatError{Path: path, Msg: "cfg " + g.ID, Err: &UnresolvedReferenceError{Kind: "block", Ref: e.Target}}
		}
		recs = append(recs, Record{Op: OpEdge, Source: src, Sink: snk, EdgeType: e.Type})
	}
	return recs, nil
}

func convertBlock(n xmlNode, cfgIndex map[string]int, path string) (Record, bool, error) {
	switch n.XMLName.Local {
	case "entry":
		return Record{Op: OpEntry}, true, nil
	case "exit":
		return Record{Op: OpExit}, true, nil
	case "unknown":
		return Record{Op: OpUnknown}, true, nil
	case "virtual", "phony":
		return Record{Op: OpVirtual}, true, nil
	case "bb":
	default:
		return Record{}, false, nil
	}

	if n.Call != nil {
		target := strings.TrimSpace(*n.Call)
		if target == "" || target == "?" {
			return Record{Op: OpCall, Target: UnknownTarget}, true, nil
		}
		idx, ok := cfgIndex[target]
		if !ok {
			return Record{}, false, &FormatError{Path: path, Msg: "block " + n.ID, Err: &UnresolvedReferenceError{Kind: "cfg", Ref: target}}
		}
		return Record{Op: OpCall, Target: idx}, true, nil
	}

	rec := Record{Op: OpBlock}
	var err error
	if rec.Address, err = ParseAddress(n.Address); err != nil {
		return Record{}, false, &FormatError{Path: path, Msg: fmt.Sprintf("block %s: bad address", n.ID), Err: err}
	}
	if rec.Size, err = ParseSize(n.Size); err != nil {
		return Record{}, false, &FormatError{Path: path, Msg: fmt.Sprintf("block %s: bad size", n.ID), Err: err}
	}
	for _, l := range n.Lines {
		rec.Lines = append(rec.Lines, SourceLine{File: l.File, Line: l.Line})
	}
	return rec, true, nil
}

// lookupContext prefers the explicit context attribute and falls back to
// the context property.
func lookupContext(g xmlCFG) string {
	if g.Context != nil {
		return *g.Context
	}
	for _, n := range g.Items {
		if n.XMLName.Local == "property" && n.Identifier == contextProperty {
			return strings.TrimSpace(n.Text)
		}
		for _, p := range n.Properties {
			if p.Identifier == contextProperty {
				return strings.TrimSpace(p.Text)
			}
		}
	}
	return ""
}
