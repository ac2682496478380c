package render

import (
	"fmt"
	"sort"
	"strings"

	"blitzlens/internal/disasm"
)

// followsControl reports whether an edge transfers control to a named
// function: direct calls and tail jumps.
func followsControl(e disasm.CallEdgeRecord) bool {
	return (e.Kind == "call" || e.Kind == "tail") && e.Target != ""
}

// FindEntryPoints returns the program entry label when present, plus every
// user function that no direct call or tail jump targets.
// Placeholder groups (sub_*) are excluded.
func FindEntryPoints(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) []string {
	targets := make(map[string]bool)
	for _, e := range edges {
		if followsControl(e) {
			targets[e.Target] = true
		}
	}

	var entries []string
	for _, f := range funcs {
		if strings.HasPrefix(f.Label, "sub_") {
			continue
		}
		if f.Label == disasm.EntryLabel || !targets[f.Label] {
			entries = append(entries, f.Label)
		}
	}
	sort.Strings(entries)
	return entries
}

// ReachableSet performs BFS from entry points following direct call and
// tail edges and returns the set of all reachable function labels.
func ReachableSet(entryPoints []string, edges []disasm.CallEdgeRecord) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		if followsControl(e) {
			adj[e.FromFunc] = append(adj[e.FromFunc], e.Target)
		}
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, ep := range entryPoints {
		if !reachable[ep] {
			reachable[ep] = true
			queue = append(queue, ep)
		}
	}

	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// ReachabilityDOT renders a callgraph filtered to the reachable set.
// Entry points are highlighted and functions are clustered by source file.
// Only edges between reachable functions are shown.
func ReachabilityDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, reachable map[string]bool, entryPoints []string, title string, t Theme) string {
	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}

	funcFile := make(map[string]string, len(funcs))
	for _, f := range funcs {
		funcFile[f.Label] = f.File
	}

	type edgeKey struct{ from, to string }
	edgeCount := make(map[edgeKey]int)
	for _, e := range edges {
		if !followsControl(e) {
			continue
		}
		if !reachable[e.FromFunc] || !reachable[e.Target] {
			continue
		}
		edgeCount[edgeKey{e.FromFunc, e.Target}]++
	}

	refNodes := make(map[string]bool)
	for k := range edgeCount {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}
	// Entry points are drawn even without edges.
	for _, ep := range entryPoints {
		refNodes[ep] = true
	}

	fileFuncs := make(map[string][]string)
	var noFile []string
	for name := range refNodes {
		if file := funcFile[name]; file != "" {
			fileFuncs[file] = append(fileFuncs[file], name)
		} else {
			noFile = append(noFile, name)
		}
	}

	var b strings.Builder
	b.WriteString("digraph reachable {\n")
	writeGraphHeader(&b, title, t)

	writeNode := func(name string) {
		id := dotID(name)
		label := truncLabel(name, 50)
		if entrySet[name] {
			fmt.Fprintf(&b, "    %s [label=%q, penwidth=1.5, color=%q];\n", id, label, t.EntryBorder)
		} else {
			fmt.Fprintf(&b, "    %s [label=%q];\n", id, label)
		}
	}

	files := make([]string, 0, len(fileFuncs))
	for file := range fileFuncs {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		names := fileFuncs[file]
		if len(names) < 2 {
			noFile = append(noFile, names...)
			continue
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(file))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(file))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, name := range names {
			writeNode(name)
		}
		b.WriteString("  }\n")
	}
	sort.Strings(noFile)
	for _, name := range noFile {
		b.WriteString("  ")
		writeNode(name)
	}
	b.WriteByte('\n')

	keys := make([]edgeKey, 0, len(edgeCount))
	for k := range edgeCount {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		attrs := fmt.Sprintf("color=%q", t.EdgeDirect)
		if count := edgeCount[k]; count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

func writeGraphHeader(b *strings.Builder, title string, t Theme) {
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  compound=true;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		fmt.Fprintf(b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')
}
