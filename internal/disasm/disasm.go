// Package disasm provides x86-32 disassembly of relocated BBC code with
// relocation-driven operand symbolization.
package disasm

import (
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap"
	"github.com/go-logr/logr"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/resource"
)

// Line is one emitted instruction. Target is the control-flow destination of
// a relative operand: the relocated symbol's address when the operand was
// symbolized, else offset+len+displacement.
type Line struct {
	Offset     uint32 `json:"offset"`
	Len        int    `json:"len"`
	Mnemonic   string `json:"mnemonic"`
	Text       string `json:"text"`
	Target     uint32 `json:"target,omitempty"`
	HasTarget  bool   `json:"-"`
	TargetName string `json:"target_name,omitempty"`
}

// Disassembly is the address-ordered listing of the code region.
type Disassembly struct {
	Map   *orderedmap.OrderedMap // uint32 offset -> instruction text
	Lines []Line
	Diags bbcfmt.Diags
}

// Text returns the instruction text at off.
func (d *Disassembly) Text(off uint32) (string, bool) {
	v, ok := d.Map.Get(off)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len returns the number of emitted instructions.
func (d *Disassembly) Len() int { return d.Map.Len() }

// Offsets returns the instruction offsets in program order.
func (d *Disassembly) Offsets() []uint32 {
	out := make([]uint32, 0, d.Map.Len())
	for el := d.Map.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key.(uint32))
	}
	return out
}

// Options controls disassembly behavior.
type Options struct {
	Log      logr.Logger
	MaxSteps int // decoder cap when Decoder is nil; 0 = default
	Decoder  Decoder
}

// Disassemble decodes the relocated code from offset 0. NOPs are skipped.
// Decoding stops at the first variable boundary or the first decode
// failure, keeping what was emitted before it.
func Disassemble(res *resource.Resource, opts Options) *Disassembly {
	log := opts.Log.WithName("disasm")
	dec := opts.Decoder
	if dec == nil {
		dec = X86Decoder{MaxSteps: opts.MaxSteps}
	}
	d := &Disassembly{Map: orderedmap.NewOrderedMap()}
	limit, bounded := res.FirstVariable()

	for _, inst := range dec.DecodeAll(res.RelocatedCode(), 0) {
		if inst.Mnemonic == "nop" && inst.Err == nil {
			continue
		}
		if bounded && inst.Offset >= limit {
			break
		}
		if name, ok := res.SymbolName(inst.Offset); ok {
			log.V(1).Info("label", "addr", fmt.Sprintf("%08X", inst.Offset), "name", name)
		}
		if inst.Err != nil {
			d.Diags.Report(log, uint64(inst.Offset), bbcfmt.DiagDecode, "%v", inst.Err)
			break
		}
		line := render(res, inst)
		d.Map.Set(inst.Offset, line.Text)
		d.Lines = append(d.Lines, line)
	}
	log.V(1).Info("disassembled", "instructions", d.Map.Len())
	return d
}

// popOps take a single stack register operand in the listing syntax.
var popOps = map[string]bool{
	"faddp": true, "fsubp": true, "fmulp": true,
	"fdivp": true, "fsubrp": true, "fdivrp": true,
}

func render(res *resource.Resource, inst Inst) Line {
	line := Line{Offset: inst.Offset, Len: inst.Len, Mnemonic: inst.Mnemonic}
	args := inst.Args
	// Three-operand imul is written in its two-operand form.
	if inst.Mnemonic == "imul" && len(args) == 3 {
		args = args[1:]
	}
	if popOps[inst.Mnemonic] && len(args) == 2 {
		args = args[:1]
	}

	parts := make([]string, 0, len(args))
	for _, op := range args {
		text := op.Text
		if sym, addr, ok := symbolize(res, inst, op); ok {
			text = strings.Replace(text, hexText(op, inst), sym, 1)
			switch {
			case op.Kind == OpRel:
				line.Target, line.HasTarget, line.TargetName = addr, true, sym
			case inst.Mnemonic == "call":
				// Indirect call through a named slot.
				line.TargetName = sym
			}
		} else if op.Kind == OpRel {
			line.Target, line.HasTarget = inst.Offset+uint32(inst.Len)+op.Value, true
			if name, ok := res.SymbolName(line.Target); ok {
				line.TargetName = name
			}
		}
		if popOps[inst.Mnemonic] && op.Kind == OpReg && strings.HasPrefix(text, "st") {
			text = "st(" + text[2:] + ")"
		}
		parts = append(parts, sizePrefix(op)+text)
	}

	line.Text = inst.Mnemonic
	if len(parts) > 0 {
		line.Text += " " + strings.Join(parts, ", ")
	}
	return line
}

// hexText is the literal the operand text carries for its value.
func hexText(op Operand, inst Inst) string {
	if op.Kind == OpRel {
		return fmt.Sprintf("0x%x", inst.Offset+uint32(inst.Len)+op.Value)
	}
	return fmt.Sprintf("0x%x", op.Value)
}

// symbolize finds a relocation inside the instruction whose resolved target
// equals the operand's value. The absolute table is searched first.
func symbolize(res *resource.Resource, inst Inst, op Operand) (string, uint32, bool) {
	if op.Kind == OpReg {
		return "", 0, false
	}
	lookups := []func(uint32) (string, bool){res.AbsoluteReloc, res.RelativeReloc}
	for _, lookup := range lookups {
		for i := range uint32(inst.Len) {
			sym, ok := lookup(inst.Offset + i)
			if !ok {
				continue
			}
			addr, ok := res.Resolve(sym)
			if !ok || op.Value != addr {
				continue
			}
			return sym, addr, true
		}
	}
	return "", 0, false
}

// sizePrefix spells out every operand width other than 32 bits. x87 stack
// registers carry no prefix.
func sizePrefix(op Operand) string {
	switch op.Width {
	case 8:
		return "byte "
	case 16:
		return "word "
	case 64:
		return "qword "
	}
	return ""
}
