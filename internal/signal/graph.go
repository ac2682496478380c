// Package signal ranks functions by the behavior their string constants and
// runtime calls reveal, with surrounding call-graph context.
package signal

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"blitzlens/internal/disasm"
	"blitzlens/internal/variable"
)

// StringRef is a reference from a function to a string constant.
type StringRef struct {
	Func  string `json:"func"`
	PC    string `json:"pc"`
	Var   string `json:"var"`
	Value string `json:"value"`
}

// ClassifiedStringRef is a string reference with its signal categories.
type ClassifiedStringRef struct {
	StringRef
	Categories []string `json:"categories,omitempty"`
}

// SignalFunc is a function in the signal graph.
type SignalFunc struct {
	Name         string                `json:"name"`
	Label        string                `json:"label"`
	File         string                `json:"file,omitempty"`
	PC           string                `json:"pc"`
	Size         int                   `json:"size"`
	StringRefs   []ClassifiedStringRef `json:"string_refs,omitempty"`
	RuntimeCalls []string              `json:"runtime_calls,omitempty"`
	Categories   []string              `json:"categories"`
	Severity     string                `json:"severity"` // "high", "medium", "low"
	Role         string                `json:"role"`     // "signal", "context", ""
	IsEntryPoint bool                  `json:"is_entry_point,omitempty"`
}

// SignalEdge is an edge in the signal graph.
type SignalEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "call", "tail", "indirect"
}

// SignalGraph is the complete signal graph.
type SignalGraph struct {
	Funcs []SignalFunc `json:"funcs"`
	Edges []SignalEdge `json:"edges"`
	Stats SignalStats  `json:"stats"`
}

// SignalStats holds summary statistics.
type SignalStats struct {
	TotalFuncs     int            `json:"total_funcs"`
	SignalFuncs    int            `json:"signal_funcs"`
	ContextFuncs   int            `json:"context_funcs"`
	TotalEdges     int            `json:"total_edges"`
	StringRefCount int            `json:"string_ref_count"`
	Categories     map[string]int `json:"categories"`
}

// StringRefs collects the string constants each function's operands name.
func StringRefs(funcs []disasm.Func, set *variable.Set) []StringRef {
	var out []StringRef
	for _, f := range funcs {
		for _, l := range f.Lines {
			for _, tok := range idents(l.Text) {
				if !variable.IsStringName(tok) {
					continue
				}
				v, ok := set.Lookup(tok)
				if !ok {
					continue
				}
				if s, ok := v.Literal(); ok {
					out = append(out, StringRef{Func: f.Name, PC: fmt.Sprintf("0x%x", l.Offset), Var: tok, Value: s})
				}
			}
		}
	}
	return out
}

func idents(text string) []string {
	_, ops, _ := strings.Cut(text, " ")
	return strings.FieldsFunc(ops, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
}

// Build constructs a signal graph. Functions are keyed by label.
// k = number of context hops from each signal function.
// isDLL reports whether a call target is a DLL import stub (may be nil).
// entryPoints is the set of functions with no incoming call edges (may be nil).
func Build(
	funcs []disasm.FuncRecord,
	edges []disasm.CallEdgeRecord,
	stringRefs []StringRef,
	isDLL func(string) bool,
	k int,
	entryPoints map[string]bool,
) *SignalGraph {
	if isDLL == nil {
		isDLL = func(string) bool { return false }
	}

	type funcSignal struct {
		refs       []ClassifiedStringRef
		calls      []string
		categories map[string]bool
	}
	funcSignals := make(map[string]*funcSignal)
	signalOf := func(name string) *funcSignal {
		fs, ok := funcSignals[name]
		if !ok {
			fs = &funcSignal{categories: make(map[string]bool)}
			funcSignals[name] = fs
		}
		return fs
	}

	catCounts := make(map[string]int)
	mark := func(fs *funcSignal, cats ...string) {
		for _, c := range cats {
			if !fs.categories[c] {
				fs.categories[c] = true
				catCounts[c]++
			}
		}
	}

	for _, sr := range stringRefs {
		cats := ClassifyString(sr.Value)
		if len(cats) == 0 {
			continue
		}
		fs := signalOf(sr.Func)
		fs.refs = append(fs.refs, ClassifiedStringRef{StringRef: sr, Categories: cats})
		mark(fs, cats...)
	}

	for _, e := range edges {
		cat := ClassifyRuntimeCall(e.Target, isDLL(e.Target))
		if cat == "" {
			continue
		}
		fs := signalOf(e.FromFunc)
		if !containsCat(fs.calls, e.Target) {
			fs.calls = append(fs.calls, e.Target)
		}
		mark(fs, cat)
	}

	signalSet := make(map[string]bool, len(funcSignals))
	for name := range funcSignals {
		signalSet[name] = true
	}

	// Bidirectional adjacency for BFS context expansion.
	fwd := make(map[string][]string)
	rev := make(map[string][]string)
	for _, e := range edges {
		if e.Kind != "indirect" && e.Target != "" {
			fwd[e.FromFunc] = append(fwd[e.FromFunc], e.Target)
			rev[e.Target] = append(rev[e.Target], e.FromFunc)
		}
	}

	contextSet := make(map[string]bool)
	visited := make(map[string]bool)
	type queueItem struct {
		name  string
		depth int
	}
	var queue []queueItem
	for name := range signalSet {
		visited[name] = true
		queue = append(queue, queueItem{name, 0})
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= k {
			continue
		}
		for _, next := range slices.Concat(fwd[item.name], rev[item.name]) {
			if !visited[next] {
				visited[next] = true
				contextSet[next] = true
				queue = append(queue, queueItem{next, item.depth + 1})
			}
		}
	}

	known := make(map[string]bool, len(funcs))
	var allFuncs []SignalFunc
	for _, f := range funcs {
		known[f.Label] = true
		sf := SignalFunc{
			Name:         f.Name,
			Label:        f.Label,
			File:         f.File,
			PC:           f.PC,
			Size:         f.Size,
			IsEntryPoint: entryPoints[f.Label],
		}
		if signalSet[f.Label] {
			sf.Role = "signal"
		} else if contextSet[f.Label] {
			sf.Role = "context"
		}
		if fs, ok := funcSignals[f.Label]; ok {
			sf.StringRefs = fs.refs
			sf.RuntimeCalls = fs.calls
			for c := range fs.categories {
				sf.Categories = append(sf.Categories, c)
			}
			sort.Strings(sf.Categories)
			sf.Severity = MaxSeverity(sf.Categories)
		}
		allFuncs = append(allFuncs, sf)
	}

	// Sort: signal, then context, then other.
	// Within signal: entry points first, then severity, then category count.
	roleOrd := map[string]int{"signal": 0, "context": 1, "": 2}
	sevOrd := map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2, "": 3}
	sort.SliceStable(allFuncs, func(i, j int) bool {
		si, sj := &allFuncs[i], &allFuncs[j]
		if si.Role != sj.Role {
			return roleOrd[si.Role] < roleOrd[sj.Role]
		}
		if si.Role == "signal" && si.IsEntryPoint != sj.IsEntryPoint {
			return si.IsEntryPoint
		}
		if si.Severity != sj.Severity {
			return sevOrd[si.Severity] < sevOrd[sj.Severity]
		}
		if len(si.Categories) != len(sj.Categories) {
			return len(si.Categories) > len(sj.Categories)
		}
		return si.Label < sj.Label
	})

	// Function-to-function edges, plus runtime edges that carry signal.
	var allEdges []SignalEdge
	seen := make(map[string]bool)
	for _, e := range edges {
		if e.Target == "" {
			continue
		}
		if !known[e.Target] && ClassifyRuntimeCall(e.Target, isDLL(e.Target)) == "" {
			continue
		}
		key := e.FromFunc + "|" + e.Target + "|" + e.Kind
		if seen[key] {
			continue
		}
		seen[key] = true
		allEdges = append(allEdges, SignalEdge{From: e.FromFunc, To: e.Target, Kind: e.Kind})
	}

	signalFuncs, contextFuncs := 0, 0
	for _, f := range allFuncs {
		switch f.Role {
		case "signal":
			signalFuncs++
		case "context":
			contextFuncs++
		}
	}

	return &SignalGraph{
		Funcs: allFuncs,
		Edges: allEdges,
		Stats: SignalStats{
			TotalFuncs:     len(funcs),
			SignalFuncs:    signalFuncs,
			ContextFuncs:   contextFuncs,
			TotalEdges:     len(allEdges),
			StringRefCount: len(stringRefs),
			Categories:     catCounts,
		},
	}
}

// DLLSymbols returns the call-slot symbols of every DLL function in set.
func DLLSymbols(set *variable.Set) map[string]bool {
	out := make(map[string]bool)
	if set == nil || set.Libs == nil {
		return out
	}
	for _, lib := range set.Libs.Libraries() {
		for _, fn := range lib.Funcs {
			out[fn.Symbol] = true
		}
	}
	return out
}
