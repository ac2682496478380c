package disasm

import "fmt"

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromPC     uint32 `json:"from_pc"`
	Kind       string `json:"kind"`                // "call", "tail" or "indirect"
	TargetPC   uint32 `json:"target_pc,omitempty"` // resolved target for direct calls
	TargetName string `json:"target_name,omitempty"`
	Operand    string `json:"operand,omitempty"` // operand text for calls through a register or slot
}

// Callee returns the best name for the edge target.
func (e CallEdge) Callee() string {
	switch {
	case e.TargetName != "":
		return e.TargetName
	case e.Operand != "":
		return e.Operand
	}
	return fmt.Sprintf("0x%x", e.TargetPC)
}

// ExtractCallEdges returns the calls made by f. A jmp whose target is a
// named function other than f is a tail call.
func ExtractCallEdges(f Func) []CallEdge {
	var out []CallEdge
	for _, l := range f.Lines {
		switch l.Mnemonic {
		case "call":
			e := CallEdge{FromPC: l.Offset, Kind: "call", TargetPC: l.Target, TargetName: l.TargetName}
			if !l.HasTarget {
				e.Kind = "indirect"
				e.Operand = operandText(l)
			}
			out = append(out, e)
		case "jmp":
			if l.HasTarget && l.TargetName != "" && l.TargetName != f.Name && StartsFunction(l.TargetName) {
				out = append(out, CallEdge{FromPC: l.Offset, Kind: "tail", TargetPC: l.Target, TargetName: l.TargetName})
			}
		}
	}
	return out
}

func operandText(l Line) string {
	if len(l.Text) > len(l.Mnemonic)+1 {
		return l.Text[len(l.Mnemonic)+1:]
	}
	return ""
}
