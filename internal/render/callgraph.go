package render

import (
	"fmt"
	"sort"
	"strings"

	"blitzlens/internal/disasm"
)

// Provenance categories of a call edge.
const (
	ProvDirect   = "direct"
	ProvRuntime  = "runtime"
	ProvTail     = "tail"
	ProvIndirect = "indirect"
)

// ClassifyEdgeProv returns the provenance category for a call edge. funcs
// is the set of known function labels.
func ClassifyEdgeProv(e disasm.CallEdgeRecord, funcs map[string]bool) string {
	switch {
	case e.Kind == "tail":
		return ProvTail
	case e.Kind == "indirect":
		return ProvIndirect
	case funcs[e.Target]:
		return ProvDirect
	}
	return ProvRuntime
}

func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvRuntime:
		return t.EdgeRuntime
	case ProvTail:
		return t.EdgeTail
	case ProvIndirect:
		return t.EdgeIndirect
	}
	return t.EdgeDirect
}

func edgeStyle(prov string) string {
	switch prov {
	case ProvTail:
		return "dotted"
	case ProvIndirect:
		return "dashed"
	}
	return "solid"
}

// CallgraphDOT renders a callgraph from functions and call edges as DOT.
// Functions are clustered by source file. Runtime and unresolved targets
// are shown as plaintext nodes. maxNodes limits the number of function
// nodes rendered (0 = all).
func CallgraphDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	funcSet := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		funcSet[f.Label] = true
	}
	known := funcSet

	type edgeKey struct {
		from, to, prov string
	}
	dedup := make(map[edgeKey]int)
	for _, e := range edges {
		if e.Target == "" {
			continue
		}
		dedup[edgeKey{e.FromFunc, e.Target, ClassifyEdgeProv(e, known)}]++
	}

	refNodes := make(map[string]bool)
	for k := range dedup {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}
	var renderFuncs []disasm.FuncRecord
	for _, f := range funcs {
		if refNodes[f.Label] {
			renderFuncs = append(renderFuncs, f)
		}
	}
	if maxNodes > 0 && len(renderFuncs) > maxNodes {
		renderFuncs = renderFuncs[:maxNodes]
		funcSet = make(map[string]bool, len(renderFuncs))
		for _, f := range renderFuncs {
			funcSet[f.Label] = true
		}
	}

	externalNodes := make(map[string]bool)
	for k := range dedup {
		if funcSet[k.from] && !funcSet[k.to] {
			externalNodes[k.to] = true
		}
	}

	fileFuncs := make(map[string][]disasm.FuncRecord)
	var noFile []disasm.FuncRecord
	for _, f := range renderFuncs {
		if f.File != "" {
			fileFuncs[f.File] = append(fileFuncs[f.File], f)
		} else {
			noFile = append(noFile, f)
		}
	}

	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	writeGraphHeader(&b, title, t)

	writeFunc := func(indent string, f disasm.FuncRecord) {
		label := truncLabel(f.Name, 50)
		switch {
		case f.Label == disasm.EntryLabel:
			fmt.Fprintf(&b, "%s%s [label=%q, penwidth=1.5, color=%q];\n", indent, dotID(f.Label), label, t.EntryBorder)
		case strings.HasPrefix(f.Label, "sub_"):
			fmt.Fprintf(&b, "%s%s [label=%q, fillcolor=%q];\n", indent, dotID(f.Label), label, t.StubFill)
		default:
			fmt.Fprintf(&b, "%s%s [label=%q];\n", indent, dotID(f.Label), label)
		}
	}

	files := make([]string, 0, len(fileFuncs))
	for file := range fileFuncs {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		inFile := fileFuncs[file]
		if len(inFile) < 2 {
			noFile = append(noFile, inFile...)
			continue
		}
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(file))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(file))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, f := range inFile {
			writeFunc("    ", f)
		}
		b.WriteString("  }\n")
	}
	for _, f := range noFile {
		writeFunc("  ", f)
	}
	b.WriteByte('\n')

	ext := make([]string, 0, len(externalNodes))
	for name := range externalNodes {
		ext = append(ext, name)
	}
	sort.Strings(ext)
	for _, name := range ext {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	keys := make([]edgeKey, 0, len(dedup))
	for k := range dedup {
		if funcSet[k.from] {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		if keys[i].to != keys[j].to {
			return keys[i].to < keys[j].to
		}
		return keys[i].prov < keys[j].prov
	})
	for _, k := range keys {
		count := dedup[k]
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov))
		if count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
			if count > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, count)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// CallgraphStats summarizes functions and call edges.
type CallgraphStats struct {
	TotalFunctions int
	TotalEdges     int
	Reachable      int
	Files          int
	ProvCounts     map[string]int
	TopCallers     []NameCount // sorted desc
	TopCallees     []NameCount // sorted desc
	TopFiles       []NameCount // sorted desc by function count
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes callgraph statistics from function and edge records.
func ComputeStats(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) CallgraphStats {
	stats := CallgraphStats{
		TotalFunctions: len(funcs),
		TotalEdges:     len(edges),
		ProvCounts:     make(map[string]int),
	}

	known := make(map[string]bool, len(funcs))
	fileCount := make(map[string]int)
	for _, f := range funcs {
		known[f.Label] = true
		if f.Reachable {
			stats.Reachable++
		}
		if f.File != "" {
			fileCount[f.File]++
		}
	}
	stats.Files = len(fileCount)

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	for _, e := range edges {
		stats.ProvCounts[ClassifyEdgeProv(e, known)]++
		callerCount[e.FromFunc]++
		if e.Target != "" {
			calleeCount[e.Target]++
		}
	}

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	stats.TopFiles = topNMap(fileCount, 30)
	return stats
}

// topNMap returns the top N entries from a map, sorted descending by count
// then ascending by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
