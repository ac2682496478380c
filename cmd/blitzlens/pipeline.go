package main

import (
	"fmt"

	"github.com/go-logr/logr"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/callgraph"
	"blitzlens/internal/decompile"
	"blitzlens/internal/disasm"
	"blitzlens/internal/render"
	"blitzlens/internal/resource"
	"blitzlens/internal/signal"
	"blitzlens/internal/variable"
)

// analysis is the shared front half of every command: the parsed
// resource, its rendered variables and the disassembly.
type analysis struct {
	res   *resource.Resource
	vars  *variable.Set
	dis   *disasm.Disassembly
	funcs []disasm.Func
	info  []callgraph.FuncInfo
	diags bbcfmt.Diags
}

func analyze(data []byte, maxSteps int, log logr.Logger) (*analysis, error) {
	res, err := resource.Parse(data, log)
	if err != nil {
		return nil, fmt.Errorf("parse resource: %w", err)
	}
	r := variable.NewRenderer(log)
	a := &analysis{res: res, vars: r.RenderAll(res)}
	a.dis = disasm.Disassemble(res, disasm.Options{Log: log, MaxSteps: maxSteps})
	a.funcs = disasm.Functions(a.dis, res)
	a.info = callgraph.FromFuncs(a.funcs)
	a.diags.Merge(r.Diags())
	a.diags.Merge(&a.dis.Diags)
	return a, nil
}

// decompile runs the decompiler and folds its diagnostics into a.
func (a *analysis) decompile(intr decompile.Intrinsics, log logr.Logger) *decompile.Result {
	dc := decompile.New(a.res, a.vars, decompile.Options{Log: log, Intrinsics: intr})
	out := dc.Decompile(a.dis)
	a.diags.Merge(&out.Diags)
	return out
}

// callEdges flattens per-function call edges into records.
func (a *analysis) callEdges() []disasm.CallEdgeRecord {
	var out []disasm.CallEdgeRecord
	for _, fi := range a.info {
		for _, e := range fi.CallEdges {
			out = append(out, disasm.CallEdgeRecord{
				FromFunc: fi.Name,
				FromPC:   fmt.Sprintf("0x%x", e.FromPC),
				Kind:     e.Kind,
				Target:   e.Callee(),
			})
		}
	}
	return out
}

// reachable computes reachability from the entry label, falling back to
// every uncalled function when the program has no entry label.
func (a *analysis) reachable(edges []disasm.CallEdgeRecord) map[string]bool {
	cg := callgraph.BuildCallGraph(a.info)
	for _, f := range a.funcs {
		if f.Name == disasm.EntryLabel {
			return callgraph.Reachable(cg, disasm.EntryLabel)
		}
	}
	return callgraph.Reachable(cg, render.FindEntryPoints(a.funcRecords(nil, nil), edges)...)
}

// funcRecords describes every partitioned function. reach and dec may be nil.
func (a *analysis) funcRecords(reach map[string]bool, dec *decompile.Result) []disasm.FuncRecord {
	out := make([]disasm.FuncRecord, 0, len(a.funcs))
	for _, f := range a.funcs {
		name := disasm.FunctionName(f.Name)
		rec := disasm.FuncRecord{
			PC:        fmt.Sprintf("0x%x", f.Addr),
			Size:      int(f.Size()),
			Name:      name,
			Label:     f.Name,
			Insts:     len(f.Lines),
			Reachable: reach[f.Name],
		}
		if dec != nil {
			_, rec.Decompiled = dec.Code[name]
			rec.File = dec.FunctionFile[name]
		}
		out = append(out, rec)
	}
	return out
}

// signalHops is how far context spreads from each signal function.
const signalHops = 1

// signals builds the signal graph over the function and edge records.
func (a *analysis) signals(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, entries []string) *signal.SignalGraph {
	eps := make(map[string]bool, len(entries))
	for _, name := range entries {
		eps[name] = true
	}
	dll := signal.DLLSymbols(a.vars)
	isDLL := func(s string) bool { return dll[s] }
	return signal.Build(funcs, edges, signal.StringRefs(a.funcs, a.vars), isDLL, signalHops, eps)
}
