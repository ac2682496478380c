package callgraph

import (
	"github.com/zboralski/lattice"

	"blitzlens/internal/disasm"
)

// BuildCFG constructs a lattice.CFGGraph from disassembled functions.
// Each FuncInfo is converted to a lattice.FuncCFG via disasm.BuildCFG
// (3-phase algorithm) then mapped to lattice types.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		dcfg := disasm.BuildCFG(f.Name, f.Lines)
		cg.Funcs = append(cg.Funcs, convertFuncCFG(&dcfg, f.CallEdges))
	}
	return cg
}

// BuildFuncCFG builds a single-function lattice.FuncCFG from lines and call edges.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial functions).
func BuildFuncCFG(name string, lines []disasm.Line, edges []disasm.CallEdge) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(name, lines)
	return convertFuncCFG(&dcfg, edges), len(dcfg.Blocks)
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Call edges are mapped into blocks by matching instruction offsets.
func convertFuncCFG(dcfg *disasm.FuncCFG, edges []disasm.CallEdge) *lattice.FuncCFG {
	edgeByPC := make(map[uint32]disasm.CallEdge, len(edges))
	for _, e := range edges {
		edgeByPC[e.FromPC] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}
		for idx := db.Start; idx < db.End && idx < len(dcfg.Lines); idx++ {
			e, ok := edgeByPC[dcfg.Lines[idx].Offset]
			if !ok {
				continue
			}
			lb.Calls = append(lb.Calls, lattice.CallSite{
				Offset: idx,
				Callee: e.Callee(),
			})
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
