package render

import (
	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"github.com/l3aro/obviews/pkg/program"
)

// BuildCallGraph links each CFG to the CFGs its call blocks resolve to.
// A CFG is named by its label and context. Unknown callees are skipped.
func BuildCallGraph(p *program.Program) *lattice.Graph {
	g := &lattice.Graph{}
	for _, cfg := range p.CFGs {
		g.Nodes = append(g.Nodes, cfg.Name())
		for _, b := range cfg.Calls() {
			if b.Callee == nil {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: cfg.Name(),
				Callee: b.Callee.Name(),
			})
		}
	}
	g.Dedup()
	return g
}

// CallGraph renders the call graph of p as DOT.
func CallGraph(p *program.Program, name string) string {
	if name == "" {
		name = "callgraph"
	}
	return latrender.DOT(BuildCallGraph(p), name)
}
