package render

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"blitzlens/internal/disasm"
	"blitzlens/internal/signal"
)

func sampleRecords() ([]disasm.FuncRecord, []disasm.CallEdgeRecord) {
	funcs := []disasm.FuncRecord{
		{Label: "__MAIN", Name: "__MAIN"},
		{Label: "_fmain", Name: "main", File: "game.bb"},
		{Label: "_fdraw", Name: "draw", File: "game.bb"},
		{Label: "_fdead", Name: "dead", File: "util.bb"},
		{Label: "_fonly", Name: "only", File: "util.bb"},
	}
	edges := []disasm.CallEdgeRecord{
		{FromFunc: "__MAIN", Kind: "call", Target: "_fmain"},
		{FromFunc: "_fmain", Kind: "tail", Target: "_fdraw"},
		{FromFunc: "_fdraw", Kind: "call", Target: "_bbCls"},
		{FromFunc: "_fdraw", Kind: "call", Target: "_bbCls"},
		{FromFunc: "_fdraw", Kind: "indirect", Target: "eax"},
		{FromFunc: "_fdead", Kind: "call", Target: "_fonly"},
	}
	return funcs, edges
}

func TestFindEntryPoints(t *testing.T) {
	funcs, edges := sampleRecords()
	funcs = append(funcs, disasm.FuncRecord{Label: "sub_0", Name: "sub_0"})
	got := FindEntryPoints(funcs, edges)
	if diff := cmp.Diff([]string{"__MAIN", "_fdead"}, got); diff != "" {
		t.Errorf("entry points (-want +got):\n%s", diff)
	}
}

func TestReachableSet(t *testing.T) {
	_, edges := sampleRecords()
	got := ReachableSet([]string{"__MAIN"}, edges)
	want := map[string]bool{"__MAIN": true, "_fmain": true, "_fdraw": true, "_bbCls": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reachable (-want +got):\n%s", diff)
	}
}

func TestCallgraphDOT(t *testing.T) {
	funcs, edges := sampleRecords()
	dot := CallgraphDOT(funcs, edges, "callgraph", NASA, 0)
	for _, want := range []string{
		"digraph callgraph {",
		"subgraph cluster_n_game_002ebb",
		"n__fmain -> n__fdraw",
		`style="dotted"`,
		"n__bbCls [label=\"_bbCls\", shape=plaintext",
		"n__fdraw -> n__bbCls [color=\"#00695C\", style=\"solid\", penwidth=0.7]",
		`style="dashed"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
}

func TestReachabilityDOT(t *testing.T) {
	funcs, edges := sampleRecords()
	reach := ReachableSet([]string{"__MAIN"}, edges)
	dot := ReachabilityDOT(funcs, edges, reach, []string{"__MAIN"}, "reachable", NASA)
	if strings.Contains(dot, "n__fdead") {
		t.Error("unreachable function rendered")
	}
	if !strings.Contains(dot, "n___MAIN [label=\"__MAIN\", penwidth=1.5") {
		t.Errorf("entry point not highlighted:\n%s", dot)
	}
}

func TestComputeStats(t *testing.T) {
	funcs, edges := sampleRecords()
	funcs[0].Reachable = true
	s := ComputeStats(funcs, edges)
	if s.TotalFunctions != 5 || s.TotalEdges != 6 || s.Reachable != 1 || s.Files != 2 {
		t.Errorf("stats = %+v", s)
	}
	want := map[string]int{ProvDirect: 2, ProvTail: 1, ProvRuntime: 2, ProvIndirect: 1}
	if diff := cmp.Diff(want, s.ProvCounts); diff != "" {
		t.Errorf("prov counts (-want +got):\n%s", diff)
	}
	if s.TopCallers[0] != (NameCount{"_fdraw", 3}) {
		t.Errorf("top caller = %+v", s.TopCallers[0])
	}
}

func TestCFGDOT(t *testing.T) {
	lines := []disasm.Line{
		{Offset: 0, Len: 2, Mnemonic: "je", Text: "je 0x3", Target: 3, HasTarget: true},
		{Offset: 2, Len: 1, Mnemonic: "ret", Text: "ret"},
		{Offset: 3, Len: 1, Mnemonic: "ret", Text: "ret"},
	}
	dot := CFGDOT(disasm.BuildCFG("_fmain", lines), NASA)
	for _, want := range []string{"bb0 -> bb2", "bb0 -> bb1", "00000000: je 0x3"} {
		if !strings.Contains(dot, want) {
			t.Errorf("CFG DOT missing %q\n%s", want, dot)
		}
	}
	if CFGDOT(disasm.FuncCFG{Name: "empty"}, NASA) != "" {
		t.Error("empty CFG should render nothing")
	}
}

func TestSignalDOT(t *testing.T) {
	funcs, edges := sampleRecords()
	edges = append(edges, disasm.CallEdgeRecord{FromFunc: "_fdraw", Kind: "call", Target: "_bbOpenTCPStream"})
	refs := []signal.StringRef{{Func: "_fdraw", PC: "0x20", Var: "_1", Value: "http://h.example/"}}
	g := signal.Build(funcs, edges, refs, nil, 1, nil)

	dot := SignalDOT(g, "sample", NASA)
	for _, want := range []string{
		"digraph signal {",
		"n___MAIN -> n__fmain",
		`n__fmain -> n__fdraw [color="#E65100", penwidth=1.0]`,
		"subgraph cluster_",
		`label="http://h.example/"`,
		"n__fdraw -> n__bbOpenTCPStream",
		`draw\\nnet,url`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("missing %q in:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "n__fdead") {
		t.Errorf("unrelated function rendered:\n%s", dot)
	}
}
