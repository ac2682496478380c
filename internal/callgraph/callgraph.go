package callgraph

import (
	"github.com/zboralski/lattice"

	"blitzlens/internal/disasm"
)

// FuncInfo holds the data needed to build call graph and CFG for one function.
type FuncInfo struct {
	Name      string
	Lines     []disasm.Line
	CallEdges []disasm.CallEdge
}

// FromFuncs extracts call edges for each partitioned function.
func FromFuncs(funcs []disasm.Func) []FuncInfo {
	out := make([]FuncInfo, 0, len(funcs))
	for _, f := range funcs {
		out = append(out, FuncInfo{Name: f.Name, Lines: f.Lines, CallEdges: disasm.ExtractCallEdges(f)})
	}
	return out
}

// BuildCallGraph constructs a lattice.Graph from disassembled functions.
// Each function becomes a node. Each named call or tail edge becomes an
// edge; calls through registers without a named slot are skipped.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			if e.TargetName == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: e.TargetName,
			})
		}
	}
	g.Dedup()
	return g
}

// Reachable returns the nodes of g reachable from roots along call edges,
// roots included when they are nodes or callers of g.
func Reachable(g *lattice.Graph, roots ...string) map[string]bool {
	adj := make(map[string][]string)
	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n] = true
	}
	for _, e := range g.Edges {
		adj[e.Caller] = append(adj[e.Caller], e.Callee)
		known[e.Caller] = true
	}

	seen := make(map[string]bool)
	var queue []string
	for _, r := range roots {
		if known[r] && !seen[r] {
			seen[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range adj[n] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return seen
}

// Unreachable returns the function nodes of g not in reach, in node order.
func Unreachable(g *lattice.Graph, reach map[string]bool) []string {
	var out []string
	for _, n := range g.Nodes {
		if !reach[n] {
			out = append(out, n)
		}
	}
	return out
}
