package disasm

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/resource"
	"blitzlens/internal/variable"
)

type fakeDecoder []Inst

func (f fakeDecoder) DecodeAll([]byte, uint32) []Inst { return f }

func parse(t *testing.T, b *resource.Builder) *resource.Resource {
	t.Helper()
	res, err := resource.Parse(b.Bytes(), logr.Discard())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return res
}

// sampleCode is a small function followed by one 4-byte variable at 0x20.
//
//	0x00 push ebp
//	0x01 mov ebp, esp
//	0x03 sub esp, 8
//	0x06 nop
//	0x07 mov eax, [_vscore]        abs reloc at 0x08
//	0x0c call __bbStrConst         rel reloc at 0x0d
//	0x11 mov dword [ebp-4], 42
//	0x18 ret 4
//	0x1b ret
//	0x1c nop x4
//	0x20 _vscore: dd 42
func sampleCode() *resource.Builder {
	code := []byte{
		0x55,
		0x89, 0xE5,
		0x83, 0xEC, 0x08,
		0x90,
		0xA1, 0x00, 0x00, 0x00, 0x00,
		0xE8, 0x00, 0x00, 0x00, 0x00,
		0xC7, 0x45, 0xFC, 0x2A, 0x00, 0x00, 0x00,
		0xC2, 0x04, 0x00,
		0xC3,
		0x90, 0x90, 0x90, 0x90,
		0x2A, 0x00, 0x00, 0x00,
	}
	return &resource.Builder{
		Code:     code,
		Symbols:  []resource.Symbol{{Name: "_fmain", Addr: 0}, {Name: "_vscore", Addr: 0x20}},
		Relative: []resource.Reloc{{Offset: 0x0d, Symbol: "__bbStrConst"}},
		Absolute: []resource.Reloc{{Offset: 0x08, Symbol: "_vscore"}},
	}
}

func TestDisassemble_Symbolized(t *testing.T) {
	res := parse(t, sampleCode())
	d := Disassemble(res, Options{Log: testr.New(t)})

	wantOffsets := []uint32{0x00, 0x01, 0x03, 0x07, 0x0c, 0x11, 0x18, 0x1b}
	if diff := cmp.Diff(wantOffsets, d.Offsets()); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		"push ebp",
		"mov ebp, esp",
		"sub esp, 0x8",
		"mov eax, [_vscore]",
		"call __bbStrConst",
		"mov [ebp-0x4], 0x2a",
		"ret word 0x4",
		"ret",
	}
	var got []string
	for _, off := range d.Offsets() {
		text, _ := d.Text(off)
		got = append(got, text)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
	if d.Diags.Len() != 0 {
		t.Errorf("diags = %v, want none", d.Diags.Items())
	}

	call := d.Lines[4]
	if !call.HasTarget || call.Target != 0x10000004 || call.TargetName != "__bbStrConst" {
		t.Errorf("call target = 0x%x %q (has=%v), want 0x10000004 __bbStrConst",
			call.Target, call.TargetName, call.HasTarget)
	}
}

func TestDisassemble_SingleRet(t *testing.T) {
	res := parse(t, &resource.Builder{Code: []byte{0xC3}})
	d := Disassemble(res, Options{Log: logr.Discard(), Decoder: fakeDecoder{{Offset: 0, Len: 1, Mnemonic: "ret"}}})
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
	if text, ok := d.Text(0); !ok || text != "ret" {
		t.Errorf("Text(0) = %q, %v; want ret", text, ok)
	}
}

func TestDisassemble_DecodeErrorStops(t *testing.T) {
	// ret, then a call with its displacement cut off.
	res := parse(t, &resource.Builder{Code: []byte{0xC3, 0xE8, 0x00}})
	d := Disassemble(res, Options{Log: logr.Discard()})
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
	if d.Diags.Len() != 1 {
		t.Fatalf("diags = %d, want 1", d.Diags.Len())
	}
	diag := d.Diags.Items()[0]
	if diag.Kind != bbcfmt.DiagDecode || diag.Offset != 1 {
		t.Errorf("diag = %+v, want decode at 1", diag)
	}
}

func TestDisassemble_BoundaryBeforeError(t *testing.T) {
	res := parse(t, &resource.Builder{
		Code:     []byte{0xC3, 0x00, 0x00, 0x00, 0x00},
		Symbols:  []resource.Symbol{{Name: "_vx", Addr: 1}},
		Absolute: []resource.Reloc{{Offset: 1, Symbol: "_vx"}},
	})
	dec := fakeDecoder{
		{Offset: 0, Len: 1, Mnemonic: "ret"},
		{Offset: 1, Len: 1, Err: errors.New("bad opcode")},
	}
	d := Disassemble(res, Options{Log: logr.Discard(), Decoder: dec})
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
	if d.Diags.Len() != 0 {
		t.Errorf("diags = %v, want none past the variable boundary", d.Diags.Items())
	}
}

func TestDisassemble_RelativeToFunction(t *testing.T) {
	// call _fhelper; ret; _fhelper: ret
	res := parse(t, &resource.Builder{
		Code:     []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0xC3, 0xC3},
		Symbols:  []resource.Symbol{{Name: "_fmain", Addr: 0}, {Name: "_fhelper", Addr: 6}},
		Relative: []resource.Reloc{{Offset: 1, Symbol: "_fhelper"}},
	})
	d := Disassemble(res, Options{Log: logr.Discard()})
	if text, _ := d.Text(0); text != "call _fhelper" {
		t.Errorf("Text(0) = %q, want call _fhelper", text)
	}
	if l := d.Lines[0]; l.Target != 6 || l.TargetName != "_fhelper" {
		t.Errorf("target = 0x%x %q", l.Target, l.TargetName)
	}
}

func TestRender_OperandForms(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"imul3", []byte{0x6B, 0xC0, 0x05}, "imul eax, 0x5"},
		{"faddp", []byte{0xDE, 0xC1}, "faddp st(1)"},
		{"fld", []byte{0xD9, 0xC1}, "fld st1"},
		{"sib", []byte{0x8B, 0x44, 0x83, 0x10}, "mov eax, [ebx+eax*4+0x10]"},
		{"byte store", []byte{0xC6, 0x00, 0x07}, "mov byte [eax], 0x7"},
		{"byte reg", []byte{0xB0, 0x07}, "mov byte al, 0x7"},
		{"word regs", []byte{0x66, 0x89, 0xC8}, "mov word ax, word cx"},
		{"movzx", []byte{0x0F, 0xB6, 0xC1}, "movzx eax, byte cl"},
		{"push imm", []byte{0x6A, 0xFF}, "push 0xffffffff"},
		{"rep movsd", []byte{0xF3, 0xA5}, "rep movsd"},
		{"fs moffs", []byte{0x64, 0xA1, 0x00, 0x00, 0x00, 0x00}, "mov eax, fs:[0x0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parse(t, &resource.Builder{Code: tt.code})
			d := Disassemble(res, Options{Log: logr.Discard()})
			if d.Len() != 1 {
				t.Fatalf("len = %d, want 1 (diags %v)", d.Len(), d.Diags.Items())
			}
			if got, _ := d.Text(0); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestX86Decoder_MaxSteps(t *testing.T) {
	insts := X86Decoder{MaxSteps: 3}.DecodeAll([]byte(strings.Repeat("\xC3", 10)), 0)
	if len(insts) != 4 {
		t.Fatalf("decoded %d, want 3 plus the cap marker", len(insts))
	}
	last := insts[3]
	if !errors.Is(last.Err, bbcfmt.ErrDecode) || last.Offset != 3 {
		t.Errorf("last = %+v, want ErrDecode at 3", last)
	}

	exact := X86Decoder{MaxSteps: 3}.DecodeAll([]byte("\xC3\xC3\xC3"), 0)
	if len(exact) != 3 || exact[2].Err != nil {
		t.Errorf("exact fit = %+v, want 3 clean instructions", exact)
	}
}

func TestDisassemble_MaxStepsReported(t *testing.T) {
	res := parse(t, &resource.Builder{Code: []byte{0xC3, 0xC3, 0xC3, 0xC3}})
	d := Disassemble(res, Options{Log: testr.New(t), MaxSteps: 2})
	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	if d.Diags.Len() != 1 {
		t.Fatalf("diags = %v, want 1", d.Diags.Items())
	}
	if diag := d.Diags.Items()[0]; diag.Kind != bbcfmt.DiagDecode || diag.Offset != 2 {
		t.Errorf("diag = %+v, want decode at 2", diag)
	}
}

func TestFormat(t *testing.T) {
	res := parse(t, sampleCode())
	d := Disassemble(res, Options{Log: logr.Discard()})
	set := variable.NewRenderer(logr.Discard()).RenderAll(res)
	got := Format(d, res, set.Vars)

	want := `_fmain:
    push ebp
    mov ebp, esp
    sub esp, 0x8
    mov eax, [_vscore]
    call __bbStrConst
    mov [ebp-0x4], 0x2a
    ret word 0x4
    ret

_vscore:
    .dd 0x2A
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Format mismatch (-want +got):\n%s", diff)
	}
}

func TestFunctions(t *testing.T) {
	res := parse(t, &resource.Builder{
		Code: []byte{0xC3, 0xC3, 0xC3, 0xC3},
		Symbols: []resource.Symbol{
			{Name: "__MAIN", Addr: 1},
			{Name: "_fa", Addr: 2},
			{Name: "_l_loop", Addr: 3},
		},
	})
	d := Disassemble(res, Options{Log: logr.Discard()})
	fns := Functions(d, res)
	var names []string
	for _, f := range fns {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"sub_0", "__MAIN", "_fa"}, names); diff != "" {
		t.Fatalf("functions mismatch (-want +got):\n%s", diff)
	}
	if len(fns[2].Lines) != 2 || fns[2].Size() != 2 {
		t.Errorf("_fa lines = %d size = %d, want 2 2", len(fns[2].Lines), fns[2].Size())
	}
	if FunctionName("_fa") != "a" || FunctionName("_f") != "_f" || FunctionName("__MAIN") != "__MAIN" {
		t.Error("FunctionName prefix stripping")
	}
}
