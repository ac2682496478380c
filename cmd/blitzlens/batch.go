package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"blitzlens/internal/decompile"
	"blitzlens/internal/output"
	"blitzlens/internal/pex"
	"blitzlens/internal/render"
)

type batchRow struct {
	Name       string
	Status     string // OK, EXTRACT_FAIL, PARSE_FAIL, WRITE_FAIL
	CodeSize   uint32
	Functions  int
	Decompiled int
	Files      int
	Diags      int
	Stats      render.CallgraphStats
	Error      string
}

func cmdBatch(args []string) error {
	fs := pflag.NewFlagSet("batch", pflag.ExitOnError)
	dir := fs.String("dir", "", "directory containing BlitzBasic executables")
	outDir := fs.String("out", "", "output directory (one subdirectory per executable)")
	jobs := fs.Int("jobs", runtime.NumCPU(), "concurrent executables")
	intrPath := fs.String("intrinsics", "", "YAML or JSON intrinsic table merged over the defaults")
	strict := fs.Bool("strict", false, "fail when any executable recorded a diagnostic")
	maxSteps := fs.Int("max-steps", 0, "decoder instruction cap")
	verbose := fs.CountP("verbose", "v", "raise log verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *outDir == "" {
		return fmt.Errorf("--dir and --out are required")
	}
	log, sync := newLogger(*verbose)
	defer sync()

	intr, err := loadIntrinsics(*intrPath)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".exe") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if err := mkdirOut(*outDir); err != nil {
		return err
	}

	rows := make([]batchRow, len(names))
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, name := range names {
		g.Go(func() error {
			rows[i] = runBatchSample(filepath.Join(*dir, name), filepath.Join(*outDir, strings.TrimSuffix(name, filepath.Ext(name))),
				*maxSteps, intr, log.WithValues("exe", name))
			return nil
		})
	}
	_ = g.Wait()

	diagTotal := 0
	for _, r := range rows {
		diagTotal += r.Diags
		fmt.Fprintf(os.Stderr, "%-32s %-12s code=0x%-7x funcs=%-5d decompiled=%-5d files=%-3d diags=%d\n",
			r.Name, r.Status, r.CodeSize, r.Functions, r.Decompiled, r.Files, r.Diags)
	}

	reportPath := filepath.Join(*outDir, "report.md")
	if err := output.WriteReport(*outDir, batchReport(rows)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nWrote %s (%d executables)\n", reportPath, len(rows))

	if *strict && diagTotal > 0 {
		return fmt.Errorf("strict: %d diagnostics recorded across %d executables", diagTotal, len(rows))
	}
	return nil
}

func runBatchSample(path, outDir string, maxSteps int, intr decompile.Intrinsics, log logr.Logger) batchRow {
	row := batchRow{Name: filepath.Base(path)}
	fail := func(status string, err error) batchRow {
		row.Status = status
		row.Error = err.Error()
		log.Error(err, "sample failed", "status", status)
		return row
	}

	data, err := pex.ReadBBC(path)
	if err != nil {
		return fail("EXTRACT_FAIL", err)
	}
	a, err := analyze(data, maxSteps, log)
	if err != nil {
		return fail("PARSE_FAIL", err)
	}
	row.CodeSize = a.res.CodeSize()

	if err := mkdirOut(outDir); err != nil {
		return fail("WRITE_FAIL", err)
	}
	if err := writeDump(outDir, a, true); err != nil {
		return fail("WRITE_FAIL", err)
	}
	dec, paths, err := writeDecompiled(outDir, a, intr, log)
	if err != nil {
		return fail("WRITE_FAIL", err)
	}
	if _, err := writeGraphs(outDir, a, row.Name, 0, false); err != nil {
		return fail("WRITE_FAIL", err)
	}
	// Rewrite diagnostics with the decompiler's included.
	if err := output.WriteDiagnosticsJSON(outDir, &a.diags); err != nil {
		return fail("WRITE_FAIL", err)
	}

	edges := a.callEdges()
	row.Status = "OK"
	row.Functions = len(a.funcs)
	row.Decompiled = len(dec.Order)
	row.Files = len(paths)
	row.Diags = a.diags.Len()
	row.Stats = render.ComputeStats(a.funcRecords(a.reachable(edges), dec), edges)
	return row
}

func batchReport(rows []batchRow) string {
	var b strings.Builder
	statusCounts := make(map[string]int)
	var totalFuncs, totalDecompiled, totalReachable, totalEdges int
	provTotals := make(map[string]int)
	callees := make(map[string]int)
	for _, r := range rows {
		statusCounts[r.Status]++
		if r.Status != "OK" {
			continue
		}
		totalFuncs += r.Functions
		totalDecompiled += r.Decompiled
		totalReachable += r.Stats.Reachable
		totalEdges += r.Stats.TotalEdges
		for k, v := range r.Stats.ProvCounts {
			provTotals[k] += v
		}
		for _, nc := range r.Stats.TopCallees {
			callees[nc.Name] += nc.Count
		}
	}

	fmt.Fprintf(&b, "# BlitzLens Batch Report\n\n")
	fmt.Fprintf(&b, "Total executables: %d\n\n", len(rows))

	fmt.Fprintf(&b, "## Status\n\n")
	fmt.Fprintf(&b, "| Status | Count |\n|--------|-------|\n")
	for _, st := range []string{"OK", "EXTRACT_FAIL", "PARSE_FAIL", "WRITE_FAIL"} {
		if c, ok := statusCounts[st]; ok {
			fmt.Fprintf(&b, "| %s | %d |\n", st, c)
		}
	}

	fmt.Fprintf(&b, "\n## Totals (OK executables only)\n\n")
	fmt.Fprintf(&b, "| Metric | Total |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Functions | %d |\n", totalFuncs)
	fmt.Fprintf(&b, "| Decompiled | %d |\n", totalDecompiled)
	fmt.Fprintf(&b, "| Reachable | %d |\n", totalReachable)
	fmt.Fprintf(&b, "| Call edges | %d |\n", totalEdges)
	for _, prov := range []string{render.ProvDirect, render.ProvRuntime, render.ProvTail, render.ProvIndirect} {
		fmt.Fprintf(&b, "| Edges (%s) | %d |\n", prov, provTotals[prov])
	}

	if len(callees) > 0 {
		type kv struct {
			name  string
			count int
		}
		var top []kv
		for n, c := range callees {
			top = append(top, kv{n, c})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].count != top[j].count {
				return top[i].count > top[j].count
			}
			return top[i].name < top[j].name
		})
		if len(top) > 20 {
			top = top[:20]
		}
		fmt.Fprintf(&b, "\n## Top Callees\n\n")
		fmt.Fprintf(&b, "| Callee | Calls |\n|--------|-------|\n")
		for _, e := range top {
			fmt.Fprintf(&b, "| %s | %d |\n", e.name, e.count)
		}
	}

	fmt.Fprintf(&b, "\n## Executables\n\n")
	fmt.Fprintf(&b, "| Name | Status | Code | Functions | Decompiled | Files | Diags | Error |\n")
	fmt.Fprintf(&b, "|------|--------|------|-----------|------------|-------|-------|-------|\n")
	for _, r := range rows {
		errMsg := r.Error
		if len(errMsg) > 80 {
			errMsg = errMsg[:80] + "..."
		}
		errMsg = strings.ReplaceAll(errMsg, "|", "\\|")
		fmt.Fprintf(&b, "| %s | %s | 0x%x | %d | %d | %d | %d | %s |\n",
			r.Name, r.Status, r.CodeSize, r.Functions, r.Decompiled, r.Files, r.Diags, errMsg)
	}
	return b.String()
}
