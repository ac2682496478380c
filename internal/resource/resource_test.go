package resource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"blitzlens/internal/bbcfmt"
)

func mustParse(t *testing.T, b *Builder) *Resource {
	t.Helper()
	r, err := Parse(b.Bytes(), logr.Discard())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return r
}

func TestParse_Empty(t *testing.T) {
	code := bytes.Repeat([]byte{0xAB}, 16)
	r := mustParse(t, &Builder{Code: code})
	if r.CodeSize() != 16 {
		t.Errorf("code size = %d, want 16", r.CodeSize())
	}
	if !bytes.Equal(r.RelocatedCode(), code) {
		t.Errorf("relocated code differs from raw code")
	}
	if len(r.Imports()) != 0 || len(r.Symbols()) != 0 {
		t.Errorf("imports = %v, symbols = %v", r.Imports(), r.Symbols())
	}
}

func TestParse_ImportSynthesis(t *testing.T) {
	r := mustParse(t, &Builder{
		Code:     make([]byte, 16),
		Absolute: []Reloc{{Offset: 4, Symbol: "score"}},
	})
	addr, ok := r.Import("score")
	if !ok || addr != 0x10000004 {
		t.Fatalf("Import(score) = 0x%x, %v; want 0x10000004", addr, ok)
	}
	got := binary.LittleEndian.Uint32(r.RelocatedCode()[4:])
	if got != 0x10000004 {
		t.Errorf("patched u32 = 0x%x, want 0x10000004", got)
	}
	if name, ok := r.AnyName(0x10000004); !ok || name != "score" {
		t.Errorf("AnyName = %q, %v", name, ok)
	}
	if r.HasSymbol("score") {
		t.Error("import must not be reported as a symbol")
	}
	// Raw code is untouched.
	if binary.LittleEndian.Uint32(r.RawCode()[4:]) != 0 {
		t.Error("raw code was modified")
	}
}

func TestParse_ImportOrderAndUniqueness(t *testing.T) {
	r := mustParse(t, &Builder{
		Code: make([]byte, 32),
		Relative: []Reloc{
			{Offset: 0, Symbol: "__bbStrConst"},
			{Offset: 8, Symbol: "__bbDebugStmt"},
		},
		Absolute: []Reloc{
			{Offset: 4, Symbol: "__bbDebugStmt"},
			{Offset: 12, Symbol: "_vscore"},
			{Offset: 16, Symbol: "__bbStrConst"},
		},
	})
	want := []Symbol{
		{Name: "__bbStrConst", Addr: 0x10000004},
		{Name: "__bbDebugStmt", Addr: 0x10000008},
		{Name: "_vscore", Addr: 0x1000000C},
	}
	if diff := cmp.Diff(want, r.Imports()); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	seen := map[uint32]bool{}
	for _, imp := range r.Imports() {
		if seen[imp.Addr] {
			t.Errorf("duplicate import address 0x%x", imp.Addr)
		}
		seen[imp.Addr] = true
	}
}

func TestParse_RelocationsResolveSymbols(t *testing.T) {
	r := mustParse(t, &Builder{
		Code:     make([]byte, 24),
		Symbols:  []Symbol{{Name: "_fmain", Addr: 0}, {Name: "_vhp", Addr: 16}},
		Relative: []Reloc{{Offset: 1, Symbol: "_fmain"}},
		Absolute: []Reloc{{Offset: 8, Symbol: "_vhp"}},
	})
	code := r.RelocatedCode()
	if got := binary.LittleEndian.Uint32(code[1:]); got != 0 {
		t.Errorf("relative site = 0x%x, want 0", got)
	}
	if got := binary.LittleEndian.Uint32(code[8:]); got != 16 {
		t.Errorf("absolute site = 0x%x, want 0x10", got)
	}
	if name, ok := r.RelativeReloc(1); !ok || name != "_fmain" {
		t.Errorf("RelativeReloc(1) = %q, %v", name, ok)
	}
	if _, ok := r.AbsoluteReloc(1); ok {
		t.Error("AbsoluteReloc(1) should be absent")
	}
}

func TestParse_Alias(t *testing.T) {
	r := mustParse(t, &Builder{
		Code:     make([]byte, 8),
		Symbols:  []Symbol{{Name: "a", Addr: 0}, {Name: "b", Addr: 0}},
		Absolute: []Reloc{{Offset: 4, Symbol: "b"}},
	})
	if diff := cmp.Diff([]Alias{{Alias: "b", Canonical: "a"}}, r.Aliases()); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"a", "b"} {
		if addr, ok := r.Symbol(name); !ok || addr != 0 {
			t.Errorf("Symbol(%q) = 0x%x, %v", name, addr, ok)
		}
	}
	if name, _ := r.SymbolName(0); name != "a" {
		t.Errorf("SymbolName(0) = %q, want a", name)
	}
	if name, _ := r.AbsoluteReloc(4); name != "a" {
		t.Errorf("reloc target = %q, want canonical a", name)
	}
	if len(r.Symbols()) != 1 {
		t.Errorf("canonical symbols = %v", r.Symbols())
	}
}

func TestParse_Malformed(t *testing.T) {
	valid := (&Builder{
		Code:     make([]byte, 8),
		Symbols:  []Symbol{{Name: "_fmain", Addr: 0}},
		Absolute: []Reloc{{Offset: 4, Symbol: "x"}},
	}).Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short size", []byte{1, 0}},
		{"code truncated", []byte{16, 0, 0, 0, 1, 2}},
		{"negative code size", []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"missing tables", valid[:12]},
		{"truncated name", valid[:18]},
		{"truncated last reloc", valid[:len(valid)-1]},
		{"reloc outside code", (&Builder{
			Code:     make([]byte, 8),
			Absolute: []Reloc{{Offset: 6, Symbol: "x"}},
		}).Bytes()},
		{"duplicate reloc offset", (&Builder{
			Code:     make([]byte, 8),
			Relative: []Reloc{{Offset: 0, Symbol: "x"}, {Offset: 0, Symbol: "y"}},
		}).Bytes()},
		{"symbol bound twice", (&Builder{
			Code:    make([]byte, 8),
			Symbols: []Symbol{{Name: "a", Addr: 0}, {Name: "a", Addr: 4}},
		}).Bytes()},
	}
	for _, tt := range tests {
		r, err := Parse(tt.data, logr.Discard())
		if !errors.Is(err, bbcfmt.ErrMalformedResource) {
			t.Errorf("%s: err = %v, want ErrMalformedResource", tt.name, err)
		}
		if r != nil {
			t.Errorf("%s: partial resource returned", tt.name)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	code := []byte{0xE8, 0, 0, 0, 0, 0xA1, 0, 0, 0, 0, 0xC3, 0, 'H', 'I', 0, 0}
	data := (&Builder{
		Code: code,
		Symbols: []Symbol{
			{Name: "_fmain", Addr: 0},
			{Name: "__MAIN", Addr: 0},
			{Name: "_7", Addr: 12},
		},
		Relative: []Reloc{{Offset: 1, Symbol: "__MAIN"}},
		Absolute: []Reloc{{Offset: 6, Symbol: "_7"}},
	}).Bytes()

	r, err := Parse(data, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.Encode(), data) {
		t.Errorf("Encode() differs from input\n got  % x\n want % x", r.Encode(), data)
	}
	// Re-parsing the encoding yields identical relocated code.
	r2, err := Parse(r.Encode(), logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r.RelocatedCode(), r2.RelocatedCode()) {
		t.Error("relocated code not deterministic")
	}
}

func TestVariables_Boundaries(t *testing.T) {
	r := mustParse(t, &Builder{
		Code: make([]byte, 64),
		Symbols: []Symbol{
			{Name: "_fmain", Addr: 0},
			{Name: "_vb", Addr: 48},
			{Name: "_va", Addr: 40},
			{Name: "_7", Addr: 56},
		},
		Absolute: []Reloc{
			{Offset: 4, Symbol: "_vb"},
			{Offset: 8, Symbol: "_7"},
			{Offset: 12, Symbol: "_va"},
			{Offset: 16, Symbol: "_vb"},
			{Offset: 20, Symbol: "__bbNull"},
		},
	})

	wantOrder := []string{"_va", "_vb", "_7", "__bbNull"}
	if diff := cmp.Diff(wantOrder, r.OrderedVariableSymbols()); diff != "" {
		t.Errorf("ordered symbols mismatch (-want +got):\n%s", diff)
	}

	vars := r.Variables()
	want := []Variable{
		{Name: "_va", Addr: 40, Size: 8},
		{Name: "_vb", Addr: 48, Size: 8},
		{Name: "_7", Addr: 56, Size: 8},
	}
	if diff := cmp.Diff(want, vars); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}

	var sum uint32
	for _, v := range vars {
		sum += v.Size
	}
	if sum != r.CodeSize()-vars[0].Addr {
		t.Errorf("sizes sum to %d, want %d", sum, r.CodeSize()-vars[0].Addr)
	}
	if first, ok := r.FirstVariable(); !ok || first != 40 {
		t.Errorf("FirstVariable = %d, %v", first, ok)
	}
}

func TestData_OutOfRange(t *testing.T) {
	r := mustParse(t, &Builder{Code: make([]byte, 4)})
	if _, err := r.Data(2, 4); !errors.Is(err, bbcfmt.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if b, err := r.Data(0, 4); err != nil || len(b) != 4 {
		t.Errorf("Data(0,4) = %v, %v", b, err)
	}
}
