package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"blitzlens/internal/callgraph"
	"blitzlens/internal/disasm"
	"blitzlens/internal/output"
	"blitzlens/internal/render"
)

func cmdGraph(args []string) error {
	var cf commonFlags
	fs := pflag.NewFlagSet("graph", pflag.ExitOnError)
	cf.register(fs)
	withCFG := fs.Bool("cfg", false, "also write per-function CFG DOT files")
	maxNodes := fs.Int("max-nodes", 0, "max function nodes in the themed call graph (0 = all)")
	title := fs.String("title", "", "graph title (default: input file name)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(true); err != nil {
		return err
	}
	log, sync := newLogger(cf.verbose)
	defer sync()

	data, err := cf.read()
	if err != nil {
		return err
	}
	a, err := analyze(data, cf.maxSteps, log)
	if err != nil {
		return err
	}
	if err := mkdirOut(cf.out); err != nil {
		return err
	}
	if *title == "" {
		*title = filepath.Base(cf.input())
	}

	unreachable, err := writeGraphs(cf.out, a, *title, *maxNodes, *withCFG)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "graph: %d functions, %d unreachable -> %s\n", len(a.funcs), len(unreachable), cf.out)
	for _, name := range unreachable {
		fmt.Printf("unreachable: %s\n", name)
	}
	return cf.options().Check(&a.diags)
}

// writeGraphs writes call_edges.jsonl, the lattice call graph, the themed
// call, reachability and signal graphs, signal.json and, with withCFG,
// per-function CFGs. It returns the unreachable function labels.
func writeGraphs(dir string, a *analysis, title string, maxNodes int, withCFG bool) ([]string, error) {
	edges := a.callEdges()
	if err := output.WriteCallEdgesJSONL(dir, edges); err != nil {
		return nil, err
	}

	cg := callgraph.BuildCallGraph(a.info)
	if err := output.WriteDOT(dir, "callgraph", lrender.DOT(cg, title)); err != nil {
		return nil, err
	}

	reach := a.reachable(edges)
	funcs := a.funcRecords(reach, nil)
	var unreachable []string
	for _, f := range funcs {
		if !f.Reachable {
			unreachable = append(unreachable, f.Label)
		}
	}

	entries := render.FindEntryPoints(funcs, edges)
	if err := output.WriteDOT(dir, "render/callgraph", render.CallgraphDOT(funcs, edges, title, render.NASA, maxNodes)); err != nil {
		return nil, err
	}
	reachDOT := render.ReachabilityDOT(funcs, edges, render.ReachableSet(entries, edges), entries, title+" (reachable)", render.NASA)
	if err := output.WriteDOT(dir, "render/reachable", reachDOT); err != nil {
		return nil, err
	}

	sg := a.signals(funcs, edges, entries)
	if err := output.WriteSignalJSON(dir, sg); err != nil {
		return nil, err
	}
	if err := output.WriteDOT(dir, "render/signal", render.SignalDOT(sg, title+" (signal)", render.NASA)); err != nil {
		return nil, err
	}

	if withCFG {
		if err := writeCFGs(dir, a); err != nil {
			return nil, err
		}
	}
	return unreachable, nil
}

// writeCFGs writes cfg/<label>.dot (lattice) and render/cfg/<label>.dot
// (themed) for every function with more than one basic block.
func writeCFGs(dir string, a *analysis) error {
	for i, fi := range a.info {
		lcfg, nblocks := callgraph.BuildFuncCFG(fi.Name, fi.Lines, fi.CallEdges)
		if nblocks < 2 {
			continue
		}
		name := safeName(fi.Name)
		g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}
		if err := output.WriteDOT(dir, filepath.Join("cfg", name), lrender.DOTCFG(g, fi.Name)); err != nil {
			return err
		}
		dcfg := disasm.BuildCFG(a.funcs[i].Name, a.funcs[i].Lines)
		if err := output.WriteDOT(dir, filepath.Join("render", "cfg", name), render.CFGDOT(dcfg, render.NASA)); err != nil {
			return err
		}
	}
	return nil
}

func safeName(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, label)
}
