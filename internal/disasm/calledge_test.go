package disasm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractCallEdges(t *testing.T) {
	f := Func{Name: "_fmain", Addr: 0, Lines: []Line{
		{Offset: 0x00, Len: 5, Mnemonic: "call", Text: "call _fhelper", Target: 0x40, HasTarget: true, TargetName: "_fhelper"},
		{Offset: 0x05, Len: 2, Mnemonic: "call", Text: "call eax"},
		{Offset: 0x07, Len: 6, Mnemonic: "call", Text: "call [_vtable]", TargetName: "_vtable"},
		{Offset: 0x0d, Len: 2, Mnemonic: "jmp", Text: "jmp 0x0", Target: 0, HasTarget: true, TargetName: "_fmain"},
		{Offset: 0x0f, Len: 2, Mnemonic: "jne", Text: "jne _fother", Target: 0x80, HasTarget: true, TargetName: "_fother"},
		{Offset: 0x11, Len: 5, Mnemonic: "jmp", Text: "jmp _fother", Target: 0x80, HasTarget: true, TargetName: "_fother"},
	}}
	got := ExtractCallEdges(f)
	want := []CallEdge{
		{FromPC: 0x00, Kind: "call", TargetPC: 0x40, TargetName: "_fhelper"},
		{FromPC: 0x05, Kind: "indirect", Operand: "eax"},
		{FromPC: 0x07, Kind: "indirect", TargetName: "_vtable", Operand: "[_vtable]"},
		{FromPC: 0x11, Kind: "tail", TargetPC: 0x80, TargetName: "_fother"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestCallEdge_Callee(t *testing.T) {
	tests := []struct {
		e    CallEdge
		want string
	}{
		{CallEdge{TargetName: "_fa", Operand: "eax"}, "_fa"},
		{CallEdge{Operand: "eax"}, "eax"},
		{CallEdge{TargetPC: 0x1c}, "0x1c"},
	}
	for _, tt := range tests {
		if got := tt.e.Callee(); got != tt.want {
			t.Errorf("Callee(%+v) = %q, want %q", tt.e, got, tt.want)
		}
	}
}
