package resource

import (
	"fmt"
	"slices"
	"sort"

	"blitzlens/internal/bbcfmt"
)

// CodeSize returns the length of the code buffer.
func (r *Resource) CodeSize() uint32 { return uint32(len(r.raw)) }

// RawCode returns the code bytes as stored, before relocation.
func (r *Resource) RawCode() []byte { return r.raw }

// RelocatedCode returns the code bytes with every relocation site patched.
func (r *Resource) RelocatedCode() []byte { return r.relocated }

// Data returns size bytes of relocated code starting at off.
func (r *Resource) Data(off, size uint32) ([]byte, error) {
	end := uint64(off) + uint64(size)
	if end > uint64(len(r.relocated)) {
		return nil, fmt.Errorf("resource: data [0x%x, 0x%x) past code size 0x%x: %w",
			off, end, len(r.relocated), bbcfmt.ErrOutOfRange)
	}
	return r.relocated[off:end], nil
}

// Canonical maps an alias to its canonical symbol name. Other names are
// returned unchanged.
func (r *Resource) Canonical(name string) string {
	if canon, ok := r.remap[name]; ok {
		return canon
	}
	return name
}

// Symbol returns the address bound to name. Aliases resolve to the address
// of their canonical symbol.
func (r *Resource) Symbol(name string) (uint32, bool) {
	addr, ok := r.byName[r.Canonical(name)]
	return addr, ok
}

// HasSymbol reports whether name (or the symbol it aliases) is defined.
func (r *Resource) HasSymbol(name string) bool {
	_, ok := r.Symbol(name)
	return ok
}

// SymbolName returns the canonical symbol at addr.
func (r *Resource) SymbolName(addr uint32) (string, bool) {
	name, ok := r.byAddr[addr]
	return name, ok
}

// Symbols returns the canonical symbols in file order.
func (r *Resource) Symbols() []Symbol { return slices.Clone(r.symbols) }

// Aliases returns the alias -> canonical mapping, sorted by alias.
func (r *Resource) Aliases() []Alias {
	out := make([]Alias, 0, len(r.remap))
	for a, c := range r.remap {
		out = append(out, Alias{Alias: a, Canonical: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Alias is a secondary name for an already-bound address.
type Alias struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
}

// Import returns the synthesized address for an undefined symbol.
func (r *Resource) Import(name string) (uint32, bool) {
	addr, ok := r.importByName[r.Canonical(name)]
	return addr, ok
}

// HasImport reports whether name was synthesized as an import.
func (r *Resource) HasImport(name string) bool {
	_, ok := r.Import(name)
	return ok
}

// ImportName returns the import synthesized at addr.
func (r *Resource) ImportName(addr uint32) (string, bool) {
	name, ok := r.importByAddr[addr]
	return name, ok
}

// HasImportAddr reports whether addr is a synthesized import slot.
func (r *Resource) HasImportAddr(addr uint32) bool {
	_, ok := r.importByAddr[addr]
	return ok
}

// Imports returns the synthesized imports in first-seen order.
func (r *Resource) Imports() []Symbol { return slices.Clone(r.imports) }

// Resolve returns the address of name as a symbol, then as an import.
func (r *Resource) Resolve(name string) (uint32, bool) {
	if addr, ok := r.Symbol(name); ok {
		return addr, true
	}
	return r.Import(name)
}

// AnyName returns the symbol or import name at addr.
func (r *Resource) AnyName(addr uint32) (string, bool) {
	if name, ok := r.byAddr[addr]; ok {
		return name, true
	}
	return r.ImportName(addr)
}

// RelativeReloc returns the target of the relative relocation at off.
func (r *Resource) RelativeReloc(off uint32) (string, bool) {
	name, ok := r.relAt[off]
	return name, ok
}

// AbsoluteReloc returns the target of the absolute relocation at off.
func (r *Resource) AbsoluteReloc(off uint32) (string, bool) {
	name, ok := r.absAt[off]
	return name, ok
}

// RelativeRelocs returns the relative relocation table in file order.
func (r *Resource) RelativeRelocs() []Reloc { return slices.Clone(r.rel) }

// AbsoluteRelocs returns the absolute relocation table in file order.
func (r *Resource) AbsoluteRelocs() []Reloc { return slices.Clone(r.abs) }

// OrderedVariableSymbols returns the distinct absolute relocation targets
// sorted by resolved address. Imports sort after every code address.
func (r *Resource) OrderedVariableSymbols() []string { return slices.Clone(r.orderedVars) }

// Variables returns the data boundaries of the defined variable symbols in
// ascending address order. Each size runs to the next variable; the last one
// runs to the end of the code buffer.
func (r *Resource) Variables() []Variable { return slices.Clone(r.vars) }

// FirstVariable returns the address of the lowest defined variable; code
// decoding stops there.
func (r *Resource) FirstVariable() (uint32, bool) {
	if len(r.vars) == 0 {
		return 0, false
	}
	return r.vars[0].Addr, true
}
