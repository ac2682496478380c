package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"blitzlens/internal/bbcfmt"
)

// OperandKind classifies a decoded operand.
type OperandKind int

const (
	OpReg OperandKind = iota
	OpMem
	OpImm
	OpRel
)

// Operand is one decoded operand. Text is its rendering without a size
// prefix. Value is the raw numeric field: the displacement of a memory
// operand, an immediate, or a relative branch displacement. Width is in bits.
type Operand struct {
	Kind  OperandKind
	Text  string
	Value uint32
	Width int
}

// Inst is one decoded x86-32 instruction at a code offset. A failed decode
// is reported as an Inst with Err set; decoders stop after it.
type Inst struct {
	Offset   uint32
	Len      int
	Mnemonic string
	Args     []Operand
	Err      error
}

// Decoder turns a code buffer into an instruction sequence starting at
// start and running to the end of the buffer or the first failure.
type Decoder interface {
	DecodeAll(code []byte, start uint32) []Inst
}

// X86Decoder decodes 32-bit x86 with golang.org/x/arch.
type X86Decoder struct {
	MaxSteps int // 0 = bbcfmt.DefaultMaxSteps
}

func (d X86Decoder) DecodeAll(code []byte, start uint32) []Inst {
	maxSteps := bbcfmt.Options{MaxSteps: d.MaxSteps}.EffectiveMaxSteps()
	var out []Inst
	pc := int(start)
	for ; pc < len(code); pc += out[len(out)-1].Len {
		if len(out) == maxSteps {
			// Stopping early is reported like a decode failure.
			return append(out, Inst{
				Offset: uint32(pc),
				Len:    1,
				Err:    fmt.Errorf("%w at 0x%x: step cap %d reached", bbcfmt.ErrDecode, pc, maxSteps),
			})
		}
		xi, err := x86asm.Decode(code[pc:], 32)
		if err != nil {
			return append(out, Inst{
				Offset: uint32(pc),
				Len:    1,
				Err:    fmt.Errorf("%w at 0x%x: %v", bbcfmt.ErrDecode, pc, err),
			})
		}
		out = append(out, convert(xi, uint32(pc)))
	}
	return out
}

func convert(xi x86asm.Inst, pc uint32) Inst {
	inst := Inst{
		Offset:   pc,
		Len:      xi.Len,
		Mnemonic: mnemonic(xi),
	}
	if isStringOp(xi.Op) {
		return inst
	}
	mask := immMask(xi)
	for _, a := range xi.Args {
		if a == nil {
			break
		}
		inst.Args = append(inst.Args, operand(xi, pc, a, mask))
	}
	return inst
}

func mnemonic(xi x86asm.Inst) string {
	m := strings.ToLower(xi.Op.String())
	for _, p := range xi.Prefix {
		if p == 0 {
			break
		}
		if p&x86asm.PrefixIgnored != 0 {
			continue
		}
		switch p & 0xFF {
		case x86asm.PrefixLOCK:
			m = "lock " + m
		case x86asm.PrefixREP:
			if isStringOp(xi.Op) {
				m = "rep " + m
			}
		case x86asm.PrefixREPN:
			if isStringOp(xi.Op) {
				m = "repne " + m
			}
		}
	}
	return m
}

func isStringOp(op x86asm.Op) bool {
	switch op {
	case x86asm.MOVSB, x86asm.MOVSW, x86asm.MOVSD,
		x86asm.STOSB, x86asm.STOSW, x86asm.STOSD,
		x86asm.LODSB, x86asm.LODSW, x86asm.LODSD,
		x86asm.SCASB, x86asm.SCASW, x86asm.SCASD,
		x86asm.CMPSB, x86asm.CMPSW, x86asm.CMPSD:
		return true
	}
	return false
}

// immMask is the display width of immediates: the destination's width, or
// the operand size when the immediate stands alone.
func immMask(xi x86asm.Inst) uint32 {
	w := xi.DataSize
	switch a := xi.Args[0].(type) {
	case x86asm.Reg:
		w = regWidth(a)
	case x86asm.Mem:
		if xi.MemBytes > 0 {
			w = xi.MemBytes * 8
		}
	}
	switch xi.Op {
	case x86asm.RET, x86asm.LRET, x86asm.ENTER:
		w = 16
	}
	switch w {
	case 8:
		return 0xFF
	case 16:
		return 0xFFFF
	}
	return 0xFFFFFFFF
}

func operand(xi x86asm.Inst, pc uint32, a x86asm.Arg, mask uint32) Operand {
	switch a := a.(type) {
	case x86asm.Reg:
		return Operand{Kind: OpReg, Text: regName(a), Width: regWidth(a)}
	case x86asm.Mem:
		w := xi.MemBytes * 8
		if w == 0 {
			w = 32
		}
		return Operand{Kind: OpMem, Text: memText(a), Value: uint32(a.Disp), Width: w}
	case x86asm.Imm:
		v := uint32(a) & mask
		return Operand{Kind: OpImm, Text: fmt.Sprintf("0x%x", v), Value: v, Width: immWidth(xi)}
	case x86asm.Rel:
		target := pc + uint32(xi.Len) + uint32(int32(a))
		return Operand{Kind: OpRel, Text: fmt.Sprintf("0x%x", target), Value: uint32(int32(a)), Width: 32}
	}
	return Operand{Kind: OpImm, Text: strings.ToLower(a.String()), Width: 32}
}

// immWidth is 32 except where the encoding fixes a narrower immediate that
// the assembler needs spelled out.
func immWidth(xi x86asm.Inst) int {
	switch xi.Op {
	case x86asm.RET, x86asm.LRET:
		return 16
	case x86asm.PUSH:
		return xi.DataSize
	}
	return 32
}

func regName(r x86asm.Reg) string {
	if r >= x86asm.F0 && r <= x86asm.F7 {
		return fmt.Sprintf("st%d", r-x86asm.F0)
	}
	return strings.ToLower(r.String())
}

func regWidth(r x86asm.Reg) int {
	switch {
	case r >= x86asm.AL && r <= x86asm.R15B:
		return 8
	case r >= x86asm.AX && r <= x86asm.R15W:
		return 16
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return 32
	case r >= x86asm.RAX && r <= x86asm.R15:
		return 64
	case r >= x86asm.F0 && r <= x86asm.F7:
		return 80
	}
	return 32
}

func memText(m x86asm.Mem) string {
	var b strings.Builder
	switch m.Segment {
	case x86asm.ES, x86asm.CS, x86asm.FS, x86asm.GS:
		b.WriteString(strings.ToLower(m.Segment.String()))
		b.WriteByte(':')
	}
	b.WriteByte('[')
	hasReg := false
	if m.Base != 0 {
		b.WriteString(strings.ToLower(m.Base.String()))
		hasReg = true
	}
	if m.Index != 0 {
		if hasReg {
			b.WriteByte('+')
		}
		b.WriteString(strings.ToLower(m.Index.String()))
		if m.Scale > 1 {
			fmt.Fprintf(&b, "*%d", m.Scale)
		}
		hasReg = true
	}
	switch {
	case !hasReg:
		fmt.Fprintf(&b, "0x%x", uint32(m.Disp))
	case m.Disp > 0:
		fmt.Fprintf(&b, "+0x%x", m.Disp)
	case m.Disp < 0:
		fmt.Fprintf(&b, "-0x%x", -m.Disp)
	}
	b.WriteByte(']')
	return b.String()
}
