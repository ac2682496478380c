package disasm

import "testing"

func TestDecodeBranch_Ret(t *testing.T) {
	for _, m := range []string{"ret", "lret", "iretd"} {
		bi := DecodeBranch(Line{Mnemonic: m, Text: m})
		if bi == nil || !bi.IsRet {
			t.Errorf("%s: expected IsRet", m)
		}
	}
}

func TestDecodeBranch_Jmp(t *testing.T) {
	bi := DecodeBranch(Line{Offset: 0x10, Len: 2, Mnemonic: "jmp", Text: "jmp 0x40", Target: 0x40, HasTarget: true})
	if bi == nil {
		t.Fatal("expected jmp")
	}
	if bi.Target != 0x40 || !bi.HasTarget {
		t.Errorf("target = 0x%x (has=%v), want 0x40", bi.Target, bi.HasTarget)
	}
	if bi.Cond {
		t.Error("jmp should not be conditional")
	}
}

func TestDecodeBranch_Indirect(t *testing.T) {
	bi := DecodeBranch(Line{Mnemonic: "jmp", Text: "jmp eax"})
	if bi == nil || bi.HasTarget {
		t.Fatalf("indirect jmp = %+v, want branch without target", bi)
	}
}

func TestDecodeBranch_Conditional(t *testing.T) {
	for _, m := range []string{"je", "jne", "jg", "loop", "jecxz"} {
		bi := DecodeBranch(Line{Mnemonic: m, Target: 0x20, HasTarget: true})
		if bi == nil || !bi.Cond {
			t.Errorf("%s: expected conditional branch", m)
		}
	}
}

func TestDecodeBranch_NonBranch(t *testing.T) {
	for _, m := range []string{"call", "mov", "push", "cmp"} {
		if IsBranchTerminator(Line{Mnemonic: m}) {
			t.Errorf("%s should not terminate a block", m)
		}
	}
}
