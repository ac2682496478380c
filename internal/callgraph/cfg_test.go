package callgraph

import (
	"slices"
	"strings"
	"testing"

	"github.com/zboralski/lattice/render"

	"blitzlens/internal/disasm"
)

// diamond is a small x86 function with a branch and three calls:
//
// entry (B0):
//
//	0x00: mov eax, 0x0
//	0x05: call _fa
//	0x0a: test eax, eax
//	0x0c: je 0x1a          ; conditional -> B2
//
// true path (B1):
//
//	0x0e: mov ecx, 0x1
//	0x13: call _fb
//	0x18: jmp 0x20         ; jump -> B3
//
// false path (B2):
//
//	0x1a: call _fc
//	0x1f: ret
//
// join (B3):
//
//	0x20: ret
func diamond() FuncInfo {
	lines := []disasm.Line{
		{Offset: 0x00, Len: 5, Mnemonic: "mov", Text: "mov eax, 0x0"},
		{Offset: 0x05, Len: 5, Mnemonic: "call", Text: "call _fa", Target: 0x100, HasTarget: true, TargetName: "_fa"},
		{Offset: 0x0a, Len: 2, Mnemonic: "test", Text: "test eax, eax"},
		{Offset: 0x0c, Len: 2, Mnemonic: "je", Text: "je 0x1a", Target: 0x1a, HasTarget: true},
		{Offset: 0x0e, Len: 5, Mnemonic: "mov", Text: "mov ecx, 0x1"},
		{Offset: 0x13, Len: 5, Mnemonic: "call", Text: "call _fb", Target: 0x200, HasTarget: true, TargetName: "_fb"},
		{Offset: 0x18, Len: 2, Mnemonic: "jmp", Text: "jmp 0x20", Target: 0x20, HasTarget: true},
		{Offset: 0x1a, Len: 5, Mnemonic: "call", Text: "call _fc", Target: 0x300, HasTarget: true, TargetName: "_fc"},
		{Offset: 0x1f, Len: 1, Mnemonic: "ret", Text: "ret"},
		{Offset: 0x20, Len: 1, Mnemonic: "ret", Text: "ret"},
	}
	f := disasm.Func{Name: "_fmain", Lines: lines}
	return FuncInfo{Name: f.Name, Lines: lines, CallEdges: disasm.ExtractCallEdges(f)}
}

func TestBuildCFG_DOTOutput(t *testing.T) {
	cfg := BuildCFG([]FuncInfo{diamond()})

	if len(cfg.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(cfg.Funcs))
	}
	f := cfg.Funcs[0]
	if f.Name != "_fmain" {
		t.Errorf("func name = %q", f.Name)
	}
	if len(f.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(f.Blocks))
	}

	b0 := f.Blocks[0]
	if len(b0.Calls) != 1 || b0.Calls[0].Callee != "_fa" || b0.Calls[0].Offset != 1 {
		t.Errorf("B0 calls = %+v", b0.Calls)
	}
	if len(b0.Succs) != 2 || b0.Succs[0].BlockID != 2 || b0.Succs[0].Cond != "T" ||
		b0.Succs[1].BlockID != 1 || b0.Succs[1].Cond != "F" {
		t.Errorf("B0 succs = %+v", b0.Succs)
	}

	b1 := f.Blocks[1]
	if len(b1.Calls) != 1 || b1.Calls[0].Callee != "_fb" {
		t.Errorf("B1 calls = %+v", b1.Calls)
	}
	if len(b1.Succs) != 1 || b1.Succs[0].BlockID != 3 {
		t.Errorf("B1 succs = %+v", b1.Succs)
	}

	b2 := f.Blocks[2]
	if len(b2.Calls) != 1 || b2.Calls[0].Callee != "_fc" {
		t.Errorf("B2 calls = %+v", b2.Calls)
	}
	if !b2.Term {
		t.Error("B2 should be terminal")
	}
	if !f.Blocks[3].Term {
		t.Error("B3 should be terminal")
	}

	dot := render.DOTCFG(cfg, "blitzlens CFG example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestBuildFuncCFG_BlockCount(t *testing.T) {
	fi := diamond()
	lcfg, n := BuildFuncCFG(fi.Name, fi.Lines, fi.CallEdges)
	if n != 4 || len(lcfg.Blocks) != 4 {
		t.Errorf("blocks = %d/%d, want 4", n, len(lcfg.Blocks))
	}

	single, n := BuildFuncCFG("_fret", []disasm.Line{{Offset: 0, Len: 1, Mnemonic: "ret", Text: "ret"}}, nil)
	if n != 1 || !single.Blocks[0].Term || len(single.Blocks[0].Calls) != 0 {
		t.Errorf("single-ret cfg = %d blocks %+v", n, single.Blocks)
	}
}

func TestBuildCallGraph_DOTOutput(t *testing.T) {
	funcs := []FuncInfo{
		{
			Name: "__MAIN",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x04, Kind: "call", TargetPC: 0x100, TargetName: "_finit"},
				{FromPC: 0x10, Kind: "call", TargetPC: 0x200, TargetName: "_frun"},
			},
		},
		{
			Name: "_finit",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x108, Kind: "call", TargetPC: 0x10000004, TargetName: "_bbGraphics"},
			},
		},
		{
			Name: "_frun",
			CallEdges: []disasm.CallEdge{
				{FromPC: 0x204, Kind: "call", TargetPC: 0x10000004, TargetName: "_bbGraphics"},
				{FromPC: 0x210, Kind: "indirect", Operand: "eax"},
				{FromPC: 0x214, Kind: "tail", TargetPC: 0x100, TargetName: "_finit"},
			},
		},
		{
			Name: "_fdead",
		},
	}

	cg := BuildCallGraph(funcs)

	nodes := make(map[string]bool, len(cg.Nodes))
	for _, n := range cg.Nodes {
		nodes[n] = true
	}
	for _, f := range funcs {
		if !nodes[f.Name] {
			t.Errorf("missing node %s", f.Name)
		}
	}
	for _, e := range cg.Edges {
		if e.Callee == "eax" {
			t.Errorf("register call should not become an edge: %+v", e)
		}
	}

	dot := render.DOT(cg, "blitzlens call graph example")
	if !strings.Contains(dot, "_finit") {
		t.Error("expected _finit in DOT output")
	}

	reach := Reachable(cg, "__MAIN")
	for _, n := range []string{"__MAIN", "_finit", "_frun", "_bbGraphics"} {
		if !reach[n] {
			t.Errorf("%s should be reachable", n)
		}
	}
	if reach["_fdead"] {
		t.Error("_fdead should not be reachable")
	}
	if got := Unreachable(cg, reach); !slices.Contains(got, "_fdead") || slices.Contains(got, "_frun") {
		t.Errorf("Unreachable = %v, want _fdead only among functions", got)
	}
	if got := Reachable(cg, "_fmissing"); len(got) != 0 {
		t.Errorf("unknown root reach = %v, want empty", got)
	}
}
