package render

import (
	"fmt"
	"sort"
	"strings"

	"blitzlens/internal/signal"
)

const (
	signalMaxDepth   = 8
	signalMaxStrings = 5
)

// SignalDOT renders a focused callgraph showing paths from root functions to
// signal functions. Paths are the BFS shortest paths over call and tail
// edges. Signal functions show their referenced strings and signal-bearing
// runtime calls as leaf nodes. Indirect edges between path nodes are dashed.
func SignalDOT(g *signal.SignalGraph, title string, t Theme) string {
	funcMap := make(map[string]*signal.SignalFunc, len(g.Funcs))
	for i := range g.Funcs {
		funcMap[g.Funcs[i].Label] = &g.Funcs[i]
	}

	fwd := make(map[string][]string)
	hasCaller := make(map[string]bool)
	var indirect [][2]string
	for _, e := range g.Edges {
		if funcMap[e.To] == nil {
			continue
		}
		if e.Kind == "indirect" {
			indirect = append(indirect, [2]string{e.From, e.To})
			continue
		}
		fwd[e.From] = append(fwd[e.From], e.To)
		hasCaller[e.To] = true
	}

	// High and medium severity first; any signal when there are none.
	signalSet := make(map[string]bool)
	for _, f := range g.Funcs {
		if f.Role == "signal" && (f.Severity == signal.SeverityHigh || f.Severity == signal.SeverityMedium) {
			signalSet[f.Label] = true
		}
	}
	if len(signalSet) == 0 {
		for _, f := range g.Funcs {
			if f.Role == "signal" {
				signalSet[f.Label] = true
			}
		}
	}

	parent := make(map[string]string)
	dist := make(map[string]int)
	type bfsItem struct {
		name string
		d    int
	}
	var queue []bfsItem
	for _, f := range g.Funcs {
		if !hasCaller[f.Label] {
			dist[f.Label] = 0
			queue = append(queue, bfsItem{f.Label, 0})
		}
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.d >= signalMaxDepth {
			continue
		}
		for _, next := range fwd[item.name] {
			if _, ok := dist[next]; !ok {
				dist[next] = item.d + 1
				parent[next] = item.name
				queue = append(queue, bfsItem{next, item.d + 1})
			}
		}
	}

	pathNodes := make(map[string]bool)
	pathEdges := make(map[[2]string]bool)
	for name := range signalSet {
		if _, ok := dist[name]; !ok {
			continue
		}
		for cur := name; ; {
			pathNodes[cur] = true
			p, ok := parent[cur]
			if !ok {
				break
			}
			pathEdges[[2]string{p, cur}] = true
			cur = p
		}
	}
	if len(pathEdges) == 0 {
		for name := range signalSet {
			pathNodes[name] = true
			for _, callee := range fwd[name] {
				pathNodes[callee] = true
				pathEdges[[2]string{name, callee}] = true
			}
		}
	}
	for name := range signalSet {
		pathNodes[name] = true
	}

	var b strings.Builder
	b.WriteString("digraph signal {\n")
	writeGraphHeader(&b, title, t)

	nodes := sortedKeys(pathNodes)
	byFile := make(map[string][]string)
	var noFile []string
	for _, name := range nodes {
		if f := funcMap[name].File; f != "" {
			byFile[f] = append(byFile[f], name)
		} else {
			noFile = append(noFile, name)
		}
	}

	writeNode := func(indent, name string) {
		f := funcMap[name]
		label := truncLabel(f.Name, 40)
		var attrs string
		switch {
		case signalSet[name]:
			switch f.Severity {
			case signal.SeverityHigh:
				attrs = `, fillcolor="#FCE4EC", color="#C62828", penwidth=1.5, fontcolor="#C62828"`
			case signal.SeverityMedium:
				attrs = `, fillcolor="#FFF3E0", color="#E65100", penwidth=1.2, fontcolor="#E65100"`
			default:
				attrs = `, fillcolor="#E3F2FD", color="#1565C0", penwidth=1.0`
			}
			if len(f.Categories) > 0 {
				label += "\\n" + truncLabel(strings.Join(f.Categories, ","), 30)
			}
		case !hasCaller[name]:
			attrs = fmt.Sprintf(`, color=%q, penwidth=1.2`, t.EntryBorder)
		default:
			attrs = fmt.Sprintf(`, fillcolor=%q, color=%q, fontcolor=%q`, t.StubFill, t.ClusterBorder, t.ClusterLabel)
		}
		fmt.Fprintf(&b, "%s%s [label=%q%s];\n", indent, dotID(name), label, attrs)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		names := byFile[file]
		if len(names) < 2 {
			noFile = append(noFile, names...)
			continue
		}
		fmt.Fprintf(&b, "  subgraph %s {\n", "cluster_"+dotID(file))
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n", t.ClusterLabel, dotEscape(file))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, name := range names {
			writeNode("    ", name)
		}
		b.WriteString("  }\n")
	}
	sort.Strings(noFile)
	for _, name := range noFile {
		writeNode("  ", name)
	}
	b.WriteByte('\n')

	// Leaves: strings and runtime calls of each signal function.
	var leafEdges []string
	strIdx := 0
	runtimeNodes := make(map[string]bool)
	for _, name := range nodes {
		f := funcMap[name]
		if !signalSet[name] {
			continue
		}
		seen := make(map[string]bool)
		for _, sr := range f.StringRefs {
			if seen[sr.Value] {
				continue
			}
			seen[sr.Value] = true
			sid := fmt.Sprintf("str_%d", strIdx)
			strIdx++
			label := truncLabel(sr.Value, 60)
			if len(seen) > signalMaxStrings {
				label = fmt.Sprintf("+%d more", len(f.StringRefs)-signalMaxStrings)
			}
			color := "#C2185B"
			if len(sr.Categories) > 0 {
				color = stringCategoryColor(sr.Categories[0])
			}
			fmt.Fprintf(&b, "  %s [shape=rect, style=\"filled,rounded\", fillcolor=\"#FFF8E1\", color=%q, penwidth=0.3, fontsize=7, fontcolor=%q, fontname=\"Courier,monospace\", margin=\"0.06,0.03\", height=0.2, label=%q];\n",
				sid, color, color, label)
			leafEdges = append(leafEdges, fmt.Sprintf("  %s -> %s [style=dotted, arrowsize=0.3, penwidth=0.4, color=\"#C2185B\"];\n", dotID(name), sid))
			if len(seen) > signalMaxStrings {
				break
			}
		}
		for _, call := range f.RuntimeCalls {
			if !runtimeNodes[call] {
				runtimeNodes[call] = true
				fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
					dotID(call), truncLabel(call, 50), t.EdgeRuntime)
			}
			leafEdges = append(leafEdges, fmt.Sprintf("  %s -> %s [color=%q];\n", dotID(name), dotID(call), t.EdgeRuntime))
		}
	}
	b.WriteByte('\n')

	edges := make([][2]string, 0, len(pathEdges))
	for e := range pathEdges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	for _, e := range edges {
		attrs := fmt.Sprintf("color=%q", t.EdgeDirect)
		if signalSet[e[1]] {
			attrs = fmt.Sprintf("color=%q, penwidth=1.0", t.EdgeTail)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(e[0]), dotID(e[1]), attrs)
	}
	for _, e := range indirect {
		if pathNodes[e[0]] && pathNodes[e[1]] && e[0] != e[1] && !pathEdges[e] {
			fmt.Fprintf(&b, "  %s -> %s [style=dashed, color=%q, penwidth=0.5];\n", dotID(e[0]), dotID(e[1]), t.EdgeIndirect)
		}
	}
	for _, le := range leafEdges {
		b.WriteString(le)
	}

	b.WriteString("}\n")
	return b.String()
}

func stringCategoryColor(cat string) string {
	switch cat {
	case signal.CatURL, signal.CatHost, signal.CatNet:
		return "#0B3D91"
	case signal.CatAuth, signal.CatCheat:
		return "#AD1457"
	case signal.CatEncoding, signal.CatBase64Key, signal.CatRegistry, signal.CatExec:
		return "#C62828"
	}
	return "#C2185B"
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
