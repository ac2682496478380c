// Package output writes blitzlens analysis results to files.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/decompile"
	"blitzlens/internal/disasm"
	"blitzlens/internal/resource"
	"blitzlens/internal/signal"
	"blitzlens/internal/variable"
)

// SymbolTable is the content of symbols.json.
type SymbolTable struct {
	CodeSize uint32            `json:"code_size"`
	Symbols  []resource.Symbol `json:"symbols"`
	Aliases  []resource.Alias  `json:"aliases,omitempty"`
	Relative []resource.Reloc  `json:"relative_relocs"`
	Absolute []resource.Reloc  `json:"absolute_relocs"`
}

// NewSymbolTable collects the symbol and relocation tables of res.
func NewSymbolTable(res *resource.Resource) SymbolTable {
	return SymbolTable{
		CodeSize: res.CodeSize(),
		Symbols:  res.Symbols(),
		Aliases:  res.Aliases(),
		Relative: res.RelativeRelocs(),
		Absolute: res.AbsoluteRelocs(),
	}
}

// WriteSymbolsJSON writes the symbol table to symbols.json.
func WriteSymbolsJSON(dir string, res *resource.Resource) error {
	return writeJSON(filepath.Join(dir, "symbols.json"), NewSymbolTable(res))
}

// WriteImportsJSON writes synthesized import addresses to imports.json.
func WriteImportsJSON(dir string, res *resource.Resource) error {
	return writeJSON(filepath.Join(dir, "imports.json"), nonNil(res.Imports()))
}

// WriteVariablesJSON writes rendered variables to variables.json.
func WriteVariablesJSON(dir string, set *variable.Set) error {
	return writeJSON(filepath.Join(dir, "variables.json"), nonNil(set.Vars))
}

// WriteLibsJSON writes the decoded DLL import table to libs.json.
func WriteLibsJSON(dir string, set *variable.Set) error {
	return writeJSON(filepath.Join(dir, "libs.json"), nonNil(set.Libs.Libraries()))
}

// WriteDiagnosticsJSON writes accumulated diagnostics to diagnostics.json.
func WriteDiagnosticsJSON(dir string, diags *bbcfmt.Diags) error {
	return writeJSON(filepath.Join(dir, "diagnostics.json"), nonNil(diags.Items()))
}

// WriteListing writes the disassembly listing to listing.asm.
func WriteListing(dir, text string) error {
	return writeFile(filepath.Join(dir, "listing.asm"), text)
}

// WriteFunctionsJSONL writes one record per function to functions.jsonl.
func WriteFunctionsJSONL(dir string, funcs []disasm.FuncRecord) error {
	return writeJSONL(filepath.Join(dir, "functions.jsonl"), funcs)
}

// WriteCallEdgesJSONL writes one record per call site to call_edges.jsonl.
func WriteCallEdgesJSONL(dir string, edges []disasm.CallEdgeRecord) error {
	return writeJSONL(filepath.Join(dir, "call_edges.jsonl"), edges)
}

// WriteSignalJSON writes the signal graph to signal.json.
func WriteSignalJSON(dir string, g *signal.SignalGraph) error {
	return writeJSON(filepath.Join(dir, "signal.json"), g)
}

// WriteDecompiled writes one decompiled/<file> per source file group and
// returns the paths written.
func WriteDecompiled(dir string, res *decompile.Result) ([]string, error) {
	root := filepath.Join(dir, "decompiled")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("output: mkdir decompiled: %w", err)
	}
	var paths []string
	seen := make(map[string]bool)
	for _, g := range res.ByFile() {
		name := SourceFileName(g.File)
		if seen[name] {
			// Distinct debug paths can share a base name.
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, filepath.Ext(name)), len(paths), filepath.Ext(name))
		}
		seen[name] = true
		path := filepath.Join(root, name)
		if err := writeFile(path, res.Source(g)); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SourceFileName maps a debug file name to a safe base name ending .bb.
func SourceFileName(file string) string {
	name := filepath.Base(strings.ReplaceAll(file, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "unnamed"
	}
	if !strings.EqualFold(filepath.Ext(name), ".bb") {
		name += ".bb"
	}
	return name
}

// WriteDOT writes a DOT graph to <name>.dot. name may contain path
// separators (e.g., "cfg/_fmain") for directory grouping.
func WriteDOT(dir, name, dot string) error {
	path := filepath.Join(dir, name+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	return writeFile(path, dot)
}

// WriteReport writes a markdown summary to report.md.
func WriteReport(dir, text string) error {
	return writeFile(filepath.Join(dir, "report.md"), text)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeFile(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

func writeJSONL[T any](path string, recs []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("output: flush %s: %w", path, err)
	}
	return nil
}
