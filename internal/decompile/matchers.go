package decompile

import (
	"fmt"
	"path"
	"strings"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/resource"
	"blitzlens/internal/tokenizer"
	"blitzlens/internal/variable"
)

// Match is a recognized statement: the instructions it covers, the source
// lines it produces, and an optional change of current source file.
type Match struct {
	Consumed int
	Lines    []string
	File     string
	Diags    []bbcfmt.Diag
}

// matcher recognizes one statement shape anchored at the cursor. Matchers
// only read the cursor and the environment.
type matcher struct {
	name  string
	match func(e *env, c tokenizer.Cursor) (Match, bool)
}

// env is the read-only context shared by all matchers.
type env struct {
	res    *resource.Resource
	vars   *variable.Set
	intr   Intrinsics
	window int
}

func defaultMatchers() []matcher {
	return []matcher{
		{"intrinsic", matchIntrinsic},
		{"stack_call", matchStackCall},
		{"call", matchCall},
		{"frame_write", matchFrameWrite},
		{"arg_write", matchArgWrite},
	}
}

func (e *env) labeled(in tokenizer.Instruction) bool {
	_, ok := e.res.SymbolName(in.Offset)
	return ok
}

func matchIntrinsic(e *env, c tokenizer.Cursor) (Match, bool) {
	in, ok := c.Get(0)
	if !ok || in.Mnemonic() != "call" {
		return Match{}, false
	}
	target, _ := in.Operand(0)
	kind, ok := e.intr.Lookup(target)
	if !ok {
		return Match{}, false
	}
	m := e.intrinsic(kind, target, in, lookback(c, 3))
	m.Consumed = 1
	return m, true
}

// intrinsic reconstructs a runtime-support call from the operands that
// feed it.
func (e *env) intrinsic(kind IntrinsicKind, target string, call tokenizer.Instruction, candidates []string) Match {
	var m Match
	switch kind {
	case IntrinsicStrConst:
		lit, ok := e.stringConst(candidates)
		if !ok {
			m.Diags = append(m.Diags, bbcfmt.Diag{
				Offset: uint64(call.Offset),
				Kind:   bbcfmt.DiagUnresolvedSymbol,
				Msg:    fmt.Sprintf("%s: missing string constant", target),
			})
			m.Lines = append(m.Lines, "; "+call.Text)
			return m
		}
		m.Lines = append(m.Lines, quote(lit))
	case IntrinsicDebugStmt:
		p, ok := e.stringConst(candidates)
		if !ok {
			m.Diags = append(m.Diags, bbcfmt.Diag{
				Offset: uint64(call.Offset),
				Kind:   bbcfmt.DiagUnresolvedSymbol,
				Msg:    fmt.Sprintf("%s: missing source path", target),
			})
			m.Lines = append(m.Lines, "; missing symbol: "+call.Text)
			return m
		}
		m.File = path.Base(strings.ReplaceAll(p, `\`, "/"))
	}
	return m
}

// matchStackCall recognizes "sub esp, N", stores into the N/4 argument
// slots, then the call that consumes them.
func matchStackCall(e *env, c tokenizer.Cursor) (Match, bool) {
	in, ok := c.Get(0)
	if !ok || in.Mnemonic() != "sub" {
		return Match{}, false
	}
	if dst, _ := in.Operand(0); dst != "esp" {
		return Match{}, false
	}
	src, _ := in.Operand(1)
	n, ok := parseImm(src)
	if !ok || n == 0 || n%4 != 0 || n/4 > 64 {
		return Match{}, false
	}
	args := make([]string, n/4)
	for i := range args {
		args[i] = fmt.Sprintf("a%d", i)
	}

	rt := e.trackRegs(c)
	for d := 1; d <= e.window; d++ {
		cur, ok := c.Get(d)
		if !ok || e.labeled(cur) {
			return Match{}, false
		}
		op0, _ := cur.Operand(0)
		switch cur.Mnemonic() {
		case "sub":
			if op0 == "esp" {
				return Match{}, false
			}
		case "call":
			if kind, ok := e.intr.Lookup(op0); ok {
				m := e.intrinsic(kind, op0, cur, args)
				m.Consumed = d + 1
				return m, true
			}
			line := fmt.Sprintf("%s(%s)", callName(op0), strings.Join(args, ", "))
			return Match{Consumed: d + 1, Lines: []string{line}}, true
		case "mov":
			if base, disp, ok := memRef(op0); ok && base == "esp" && disp >= 0 && disp%4 == 0 && int(disp/4) < len(args) {
				src, _ := cur.Operand(1)
				args[disp/4] = e.valueOf(src, rt)
			}
		}
		e.apply(rt, c.Shift(d))
		rt.tick()
	}
	return Match{}, false
}

// matchCall recognizes a direct call with no stack setup.
func matchCall(e *env, c tokenizer.Cursor) (Match, bool) {
	in, ok := c.Get(0)
	if !ok || in.Mnemonic() != "call" {
		return Match{}, false
	}
	target, _ := in.Operand(0)
	if target == "" || strings.HasPrefix(target, "[") || strings.HasPrefix(target, "0x") {
		return Match{}, false
	}
	if _, isReg := regBases[target]; isReg {
		return Match{}, false
	}
	return Match{Consumed: 1, Lines: []string{callName(target) + "()"}}, true
}

// matchFrameWrite recognizes "mov [ebp±k], v".
func matchFrameWrite(e *env, c tokenizer.Cursor) (Match, bool) {
	base, disp, src, ok := movStore(c)
	if !ok || base != "ebp" {
		return Match{}, false
	}
	slot, ok := frameSlot(disp)
	if !ok {
		return Match{}, false
	}
	line := fmt.Sprintf("%s = %s", slot, e.valueOf(src, e.trackRegs(c)))
	return Match{Consumed: 1, Lines: []string{line}}, true
}

// matchArgWrite recognizes "mov [esp+k], v" outside a call sequence.
func matchArgWrite(e *env, c tokenizer.Cursor) (Match, bool) {
	base, disp, src, ok := movStore(c)
	if !ok || base != "esp" || disp < 0 || disp%4 != 0 {
		return Match{}, false
	}
	line := fmt.Sprintf("a%d = %s", disp/4, e.valueOf(src, e.trackRegs(c)))
	return Match{Consumed: 1, Lines: []string{line}}, true
}

func movStore(c tokenizer.Cursor) (base string, disp int32, src string, ok bool) {
	in, ok := c.Get(0)
	if !ok || in.Mnemonic() != "mov" {
		return "", 0, "", false
	}
	dst, _ := in.Operand(0)
	base, disp, ok = memRef(dst)
	if !ok {
		return "", 0, "", false
	}
	src, ok = in.Operand(1)
	return base, disp, src, ok
}
