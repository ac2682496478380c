package decompile

import (
	"fmt"
	"strconv"
	"strings"

	"blitzlens/internal/disasm"
	"blitzlens/internal/tokenizer"
	"blitzlens/internal/variable"
)

// regBases maps every general purpose register view to its 32-bit name.
var regBases = map[string]string{
	"eax": "eax", "ax": "eax", "al": "eax", "ah": "eax",
	"ebx": "ebx", "bx": "ebx", "bl": "ebx", "bh": "ebx",
	"ecx": "ecx", "cx": "ecx", "cl": "ecx", "ch": "ecx",
	"edx": "edx", "dx": "edx", "dl": "edx", "dh": "edx",
	"esi": "esi", "si": "esi",
	"edi": "edi", "di": "edi",
	"ebp": "ebp", "bp": "ebp",
	"esp": "esp", "sp": "esp",
}

// callerSaved registers are clobbered by any call.
var callerSaved = []string{"eax", "ecx", "edx"}

// regDef is the source expression last moved into a register.
type regDef struct {
	value string
	age   int // instructions since definition
}

// regTracker tracks last-def values for the general purpose registers.
// Definitions older than the window are expired.
type regTracker struct {
	defs map[string]regDef
	w    int
}

func newRegTracker(w int) *regTracker {
	return &regTracker{defs: make(map[string]regDef), w: w}
}

// tick ages all definitions by 1 and expires those beyond the window.
func (rt *regTracker) tick() {
	for r, d := range rt.defs {
		d.age++
		if d.age > rt.w {
			delete(rt.defs, r)
			continue
		}
		rt.defs[r] = d
	}
}

func (rt *regTracker) define(reg, value string) {
	if base, ok := regBases[reg]; ok {
		rt.defs[base] = regDef{value: value}
	}
}

func (rt *regTracker) lookup(reg string) (string, bool) {
	base, ok := regBases[reg]
	if !ok || base != reg {
		// Partial views are not tracked.
		return "", false
	}
	d, ok := rt.defs[base]
	return d.value, ok
}

func (rt *regTracker) kill(reg string) {
	if base, ok := regBases[reg]; ok {
		delete(rt.defs, base)
	}
}

// noWrite lists mnemonics that read their first operand without writing it.
var noWrite = map[string]bool{"cmp": true, "test": true, "push": true, "call": true, "jmp": true}

// apply records the register effect of in.
func (e *env) apply(rt *regTracker, c tokenizer.Cursor) {
	in, ok := c.Get(0)
	if !ok {
		return
	}
	dst, _ := in.Operand(0)
	src, _ := in.Operand(1)
	switch m := in.Mnemonic(); {
	case m == "mov":
		if _, isReg := regBases[dst]; isReg {
			rt.define(dst, e.valueOf(src, rt))
		}
	case m == "xor" && dst == src:
		rt.define(dst, "0")
	case m == "call":
		for _, r := range callerSaved {
			rt.kill(r)
		}
		if kind, ok := e.intr.Lookup(dst); ok && kind == IntrinsicStrConst {
			if lit, ok := e.stringConst(lookback(c, 3)); ok {
				rt.define("eax", quote(lit))
			}
		}
	case !noWrite[m]:
		rt.kill(dst)
	}
}

// trackRegs replays up to e.window instructions before c, stopping at the
// start of the enclosing function, and returns the resulting tracker.
func (e *env) trackRegs(c tokenizer.Cursor) *regTracker {
	from := 0
	for d := -1; d >= -e.window; d-- {
		in, ok := c.Get(d)
		if !ok {
			break
		}
		from = d
		if name, ok := e.res.SymbolName(in.Offset); ok && disasm.StartsFunction(name) {
			break
		}
	}
	rt := newRegTracker(e.window)
	for d := from; d < 0; d++ {
		e.apply(rt, c.Shift(d))
		rt.tick()
	}
	return rt
}

// lookback collects the operands of up to n instructions before c, nearest
// first.
func lookback(c tokenizer.Cursor, n int) []string {
	var out []string
	for d := -1; d >= -n; d-- {
		in, ok := c.Get(d)
		if !ok {
			break
		}
		for k := range in.Operands() {
			op, _ := in.Operand(k)
			out = append(out, op)
		}
	}
	return out
}

// stringConst returns the contents of the first string constant named in
// candidates. Already reconstructed literals are accepted as well.
func (e *env) stringConst(candidates []string) (string, bool) {
	for _, c := range candidates {
		if len(c) >= 2 && c[0] == '"' && c[len(c)-1] == '"' {
			return c[1 : len(c)-1], true
		}
		if !variable.IsStringName(c) {
			continue
		}
		v, ok := e.vars.Lookup(c)
		if !ok {
			continue
		}
		if lit, ok := v.Literal(); ok {
			return lit, true
		}
	}
	return "", false
}

func quote(s string) string { return `"` + s + `"` }

// valueOf renders an operand as a source expression.
func (e *env) valueOf(op string, rt *regTracker) string {
	if _, isReg := regBases[op]; isReg {
		if v, ok := rt.lookup(op); ok {
			return v
		}
		return op
	}
	if n, ok := parseImm(op); ok {
		return strconv.FormatInt(int64(int32(n)), 10)
	}
	if base, disp, ok := memRef(op); ok {
		switch base {
		case "ebp":
			if name, ok := frameSlot(disp); ok {
				return name
			}
		case "esp":
			if disp >= 0 && disp%4 == 0 {
				return fmt.Sprintf("a%d", disp/4)
			}
		}
		return op
	}
	if lit, ok := e.stringConst([]string{op}); ok {
		return quote(lit)
	}
	if name, ok := strings.CutPrefix(op, "["); ok {
		if name, ok := strings.CutSuffix(name, "]"); ok && e.res.HasSymbol(name) {
			return name
		}
	}
	return op
}

// parseImm parses an unsigned hex immediate as rendered by the disassembler.
func parseImm(op string) (uint32, bool) {
	digits, ok := strings.CutPrefix(op, "0x")
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// memRef parses a base-plus-displacement memory operand such as
// "[ebp-0x8]" or "[esp]". Indexed and segment-qualified forms are rejected.
func memRef(op string) (string, int32, bool) {
	inner, ok := strings.CutPrefix(op, "[")
	if !ok {
		return "", 0, false
	}
	inner, ok = strings.CutSuffix(inner, "]")
	if !ok {
		return "", 0, false
	}
	i := strings.IndexAny(inner, "+-")
	if i < 0 {
		if _, isReg := regBases[inner]; !isReg {
			return "", 0, false
		}
		return inner, 0, true
	}
	base := inner[:i]
	if _, isReg := regBases[base]; !isReg {
		return "", 0, false
	}
	n, ok := parseImm(inner[i+1:])
	if !ok || n >= 1<<31 {
		return "", 0, false
	}
	disp := int32(n)
	if inner[i] == '-' {
		disp = -disp
	}
	return base, disp, true
}

// frameSlot names an ebp-relative slot: negative displacements are locals,
// positive ones parameters.
func frameSlot(disp int32) (string, bool) {
	switch {
	case disp < 0:
		return fmt.Sprintf("local%d", -disp/4), true
	case disp > 0:
		return fmt.Sprintf("param%d", disp/4), true
	}
	return "", false
}

// callName renders a call target as a source identifier: user functions
// lose their label prefix and runtime commands their library prefix.
func callName(target string) string {
	if disasm.IsFunctionLabel(target) {
		return disasm.FunctionName(target)
	}
	if cmd, ok := strings.CutPrefix(target, "_bb"); ok && cmd != "" && !strings.HasPrefix(cmd, "_") {
		return cmd
	}
	return target
}
