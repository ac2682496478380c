package disasm

// x86 control-transfer detection over emitted lines. These identify
// basic-block terminators and extract branch targets.

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target    uint32 // absolute target (valid when HasTarget)
	HasTarget bool   // false for RET and indirect jumps
	Cond      bool   // true if conditional (has fallthrough)
	IsRet     bool   // true if RET
}

var condJumps = map[string]bool{
	"ja": true, "jae": true, "jb": true, "jbe": true,
	"je": true, "jne": true, "jg": true, "jge": true,
	"jl": true, "jle": true, "jo": true, "jno": true,
	"jp": true, "jnp": true, "js": true, "jns": true,
	"jcxz": true, "jecxz": true,
	"loop": true, "loope": true, "loopne": true,
}

// DecodeBranch returns the branch semantics of l, or nil if l falls through
// to the next instruction. Calls are not branches: they return.
func DecodeBranch(l Line) *BranchInfo {
	switch {
	case l.Mnemonic == "ret" || l.Mnemonic == "lret" || l.Mnemonic == "iretd":
		return &BranchInfo{IsRet: true}
	case l.Mnemonic == "jmp":
		return &BranchInfo{Target: l.Target, HasTarget: l.HasTarget}
	case condJumps[l.Mnemonic]:
		return &BranchInfo{Target: l.Target, HasTarget: l.HasTarget, Cond: true}
	}
	return nil
}

// IsBranchTerminator returns true if the line terminates a basic block.
func IsBranchTerminator(l Line) bool {
	return DecodeBranch(l) != nil
}
