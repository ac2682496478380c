// Package resource parses and links the BBC code resource: a code blob, a
// symbol table, and relative and absolute relocation tables.
package resource

import (
	"fmt"
	"slices"
	"sort"

	"github.com/go-logr/logr"

	"blitzlens/internal/bbcfmt"
)

// ImportBase is the first address handed to synthesized imports. The Nth
// unresolved symbol (counting from 1) lands at ImportBase + N*4.
const ImportBase uint32 = 0x10000000

// Symbol is a name bound to a code offset.
type Symbol struct {
	Name string `json:"name"`
	Addr uint32 `json:"address"`
}

// Reloc is one relocation site. Symbol is the canonical (alias-resolved)
// name; Raw is the name exactly as stored in the resource.
type Reloc struct {
	Offset uint32 `json:"offset"`
	Symbol string `json:"symbol"`
	Raw    string `json:"-"`
}

// Variable is a data region bounded by the next variable's address.
type Variable struct {
	Name string `json:"name"`
	Addr uint32 `json:"address"`
	Size uint32 `json:"size"`
}

// Resource is a parsed and relocated BBC code resource. It is immutable once
// Parse returns.
type Resource struct {
	raw       []byte
	relocated []byte

	entries []Symbol          // every symbol record in file order, aliases included
	symbols []Symbol          // canonical symbols in file order
	byName  map[string]uint32 // canonical name -> address
	byAddr  map[uint32]string // address -> canonical name
	remap   map[string]string // alias -> canonical

	rel   []Reloc
	abs   []Reloc
	relAt map[uint32]string
	absAt map[uint32]string

	imports      []Symbol
	importByName map[string]uint32
	importByAddr map[uint32]string

	orderedVars []string
	vars        []Variable
}

// Parse decodes a BBC resource and applies its relocations. Any structural
// problem yields an error wrapping bbcfmt.ErrMalformedResource.
func Parse(data []byte, log logr.Logger) (*Resource, error) {
	s := bbcfmt.NewStream(data)
	r := &Resource{
		byName:       make(map[string]uint32),
		byAddr:       make(map[uint32]string),
		remap:        make(map[string]string),
		relAt:        make(map[uint32]string),
		absAt:        make(map[uint32]string),
		importByName: make(map[string]uint32),
		importByAddr: make(map[uint32]string),
	}

	codeSize, err := readCount(s, "code size")
	if err != nil {
		return nil, err
	}
	r.raw, err = s.ReadBytes(codeSize)
	if err != nil {
		return nil, malformed(s, "code bytes (size %d)", codeSize)
	}

	if err := r.readSymbols(s); err != nil {
		return nil, err
	}
	r.rel, err = r.readRelocs(s, "relative", r.relAt)
	if err != nil {
		return nil, err
	}
	r.abs, err = r.readRelocs(s, "absolute", r.absAt)
	if err != nil {
		return nil, err
	}
	if s.Remaining() > 0 {
		log.V(1).Info("trailing bytes after relocation tables", "count", s.Remaining())
	}

	r.applyRelocations()
	r.orderVariables()

	log.V(1).Info("parsed code resource",
		"codeSize", len(r.raw),
		"symbols", len(r.symbols),
		"aliases", len(r.remap),
		"relative", len(r.rel),
		"absolute", len(r.abs),
		"imports", len(r.imports),
		"variables", len(r.vars))
	return r, nil
}

func malformed(s *bbcfmt.Stream, format string, args ...any) error {
	return fmt.Errorf("resource: %s at offset %d: %w",
		fmt.Sprintf(format, args...), s.Position(), bbcfmt.ErrMalformedResource)
}

func readCount(s *bbcfmt.Stream, what string) (int, error) {
	n, err := s.ReadInt32()
	if err != nil {
		return 0, malformed(s, "truncated %s", what)
	}
	if n < 0 {
		return 0, malformed(s, "negative %s %d", what, n)
	}
	return int(n), nil
}

func readEntry(s *bbcfmt.Stream, what string, i int) (string, uint32, error) {
	name, err := s.ReadCString()
	if err != nil {
		return "", 0, malformed(s, "truncated %s name #%d", what, i)
	}
	v, err := s.ReadUint32()
	if err != nil {
		return "", 0, malformed(s, "truncated %s value #%d", what, i)
	}
	return name, v, nil
}

func (r *Resource) readSymbols(s *bbcfmt.Stream) error {
	n, err := readCount(s, "symbol count")
	if err != nil {
		return err
	}
	for i := range n {
		name, addr, err := readEntry(s, "symbol", i)
		if err != nil {
			return err
		}
		r.entries = append(r.entries, Symbol{Name: name, Addr: addr})

		if canon, ok := r.byAddr[addr]; ok {
			// A second name for an already-bound address is an alias.
			if canon != name {
				if _, dup := r.byName[name]; dup {
					return malformed(s, "symbol %q bound twice", name)
				}
				if prev, dup := r.remap[name]; dup && prev != canon {
					return malformed(s, "symbol %q bound twice", name)
				}
				r.remap[name] = canon
			}
			continue
		}
		if _, dup := r.byName[name]; dup {
			return malformed(s, "symbol %q bound twice", name)
		}
		if _, dup := r.remap[name]; dup {
			return malformed(s, "symbol %q bound twice", name)
		}
		r.byName[name] = addr
		r.byAddr[addr] = name
		r.symbols = append(r.symbols, Symbol{Name: name, Addr: addr})
	}
	return nil
}

func (r *Resource) readRelocs(s *bbcfmt.Stream, what string, at map[uint32]string) ([]Reloc, error) {
	n, err := readCount(s, what+" relocation count")
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, 0, n)
	for i := range n {
		raw, off, err := readEntry(s, what+" relocation", i)
		if err != nil {
			return nil, err
		}
		if uint64(off)+4 > uint64(len(r.raw)) {
			return nil, malformed(s, "%s relocation #%d offset 0x%x outside code (size 0x%x)", what, i, off, len(r.raw))
		}
		if _, dup := at[off]; dup {
			return nil, malformed(s, "duplicate %s relocation at 0x%x", what, off)
		}
		name := r.Canonical(raw)
		at[off] = name
		out = append(out, Reloc{Offset: off, Symbol: name, Raw: raw})
	}
	return out, nil
}

// applyRelocations patches every relocation site in a copy of the raw code
// with the absolute address of its target. Relative sites are patched first.
// Offsets were bounds-checked while reading, so patching cannot fail.
func (r *Resource) applyRelocations() {
	r.relocated = slices.Clone(r.raw)
	for _, table := range [][]Reloc{r.rel, r.abs} {
		for _, rl := range table {
			addr := r.resolveOrImport(rl.Symbol)
			_ = bbcfmt.PutUint32(r.relocated, rl.Offset, addr)
		}
	}
}

// resolveOrImport returns the address of a defined symbol, or the address of
// the import synthesized for it on first sight.
func (r *Resource) resolveOrImport(name string) uint32 {
	if addr, ok := r.byName[name]; ok {
		return addr
	}
	if addr, ok := r.importByName[name]; ok {
		return addr
	}
	addr := ImportBase + uint32(len(r.imports)+1)*4
	r.imports = append(r.imports, Symbol{Name: name, Addr: addr})
	r.importByName[name] = addr
	r.importByAddr[addr] = name
	return addr
}

// orderVariables builds the address-ordered list of absolute relocation
// targets and the data boundaries for the defined ones.
func (r *Resource) orderVariables() {
	seen := make(map[string]bool, len(r.abs))
	for _, rl := range r.abs {
		if seen[rl.Symbol] {
			continue
		}
		seen[rl.Symbol] = true
		r.orderedVars = append(r.orderedVars, rl.Symbol)
	}
	sort.SliceStable(r.orderedVars, func(i, j int) bool {
		return r.resolveOrImport(r.orderedVars[i]) < r.resolveOrImport(r.orderedVars[j])
	})

	size := uint32(len(r.raw))
	for _, name := range r.orderedVars {
		addr, ok := r.byName[name]
		if !ok || addr >= size {
			continue
		}
		r.vars = append(r.vars, Variable{Name: name, Addr: addr})
	}
	for i := range r.vars {
		end := size
		if i+1 < len(r.vars) {
			end = r.vars[i+1].Addr
		}
		r.vars[i].Size = end - r.vars[i].Addr
	}
}
