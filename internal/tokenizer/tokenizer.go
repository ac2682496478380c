// Package tokenizer provides a bounds-checked cursor over a disassembly
// listing. Every out-of-range access reports "no instruction" instead of
// faulting, so callers may probe freely past either end.
package tokenizer

import (
	"strings"

	"blitzlens/internal/disasm"
)

// Instruction is one listing entry.
type Instruction struct {
	Offset uint32
	Text   string
}

var prefixes = map[string]bool{"rep": true, "repne": true, "lock": true}

var sizePrefixes = []string{"byte ", "word ", "dword ", "qword "}

// Mnemonic returns the opcode word, including any rep/lock prefix.
func (i Instruction) Mnemonic() string {
	m, _ := i.split()
	return m
}

// Operands returns the operand texts as written, size prefixes included.
func (i Instruction) Operands() []string {
	_, rest := i.split()
	if rest == "" {
		return nil
	}
	ops := strings.Split(rest, ",")
	for k := range ops {
		ops[k] = strings.TrimSpace(ops[k])
	}
	return ops
}

// Operand returns operand n without its size prefix.
func (i Instruction) Operand(n int) (string, bool) {
	ops := i.Operands()
	if n < 0 || n >= len(ops) {
		return "", false
	}
	op := ops[n]
	for _, p := range sizePrefixes {
		op = strings.TrimPrefix(op, p)
	}
	return op, true
}

func (i Instruction) split() (string, string) {
	fields := strings.Fields(i.Text)
	if len(fields) == 0 {
		return "", ""
	}
	n := 0
	for n < len(fields)-1 && prefixes[fields[n]] {
		n++
	}
	mnemonic := strings.Join(fields[:n+1], " ")
	rest := strings.TrimSpace(strings.TrimPrefix(i.Text, mnemonic))
	return mnemonic, rest
}

// Tokenizer is a movable cursor over an ordered listing.
type Tokenizer struct {
	offsets []uint32
	texts   []string
	index   int
}

// New builds a tokenizer positioned on the first instruction of d.
func New(d *disasm.Disassembly) *Tokenizer {
	t := &Tokenizer{}
	for el := d.Map.Front(); el != nil; el = el.Next() {
		t.offsets = append(t.offsets, el.Key.(uint32))
		t.texts = append(t.texts, el.Value.(string))
	}
	return t
}

// FromInstructions builds a tokenizer over an explicit sequence.
func FromInstructions(insts []Instruction) *Tokenizer {
	t := &Tokenizer{}
	for _, in := range insts {
		t.offsets = append(t.offsets, in.Offset)
		t.texts = append(t.texts, in.Text)
	}
	return t
}

// Len returns the number of instructions.
func (t *Tokenizer) Len() int { return len(t.offsets) }

// Index returns the cursor position.
func (t *Tokenizer) Index() int { return t.index }

// Get returns the instruction delta positions away from the cursor.
func (t *Tokenizer) Get(delta int) (Instruction, bool) {
	return t.At(t.index + delta)
}

// At returns the instruction at absolute index i.
func (t *Tokenizer) At(i int) (Instruction, bool) {
	if i < 0 || i >= len(t.offsets) {
		return Instruction{}, false
	}
	return Instruction{Offset: t.offsets[i], Text: t.texts[i]}, true
}

// Next returns the current instruction and advances past it.
func (t *Tokenizer) Next() (Instruction, bool) {
	in, ok := t.Get(0)
	if ok {
		t.index++
	}
	return in, ok
}

// Advance moves the cursor n instructions forward, clamped to the end.
func (t *Tokenizer) Advance(n int) {
	t.index = min(max(t.index+n, 0), len(t.offsets))
}

// Prev moves the cursor one instruction back, stopping at the start.
func (t *Tokenizer) Prev() {
	if t.index > 0 {
		t.index--
	}
}

// HasNext reports whether an instruction follows the current one.
func (t *Tokenizer) HasNext() bool { return t.index+1 < len(t.offsets) }

// HasPrev reports whether an instruction precedes the current one.
func (t *Tokenizer) HasPrev() bool { return t.index > 0 }

// Done reports whether the cursor has moved past the last instruction.
func (t *Tokenizer) Done() bool { return t.index >= len(t.offsets) }

// SeekAddress moves the cursor to the instruction at addr. The cursor is
// left unchanged when no instruction starts there.
func (t *Tokenizer) SeekAddress(addr uint32) bool {
	for i, off := range t.offsets {
		if off == addr {
			t.index = i
			return true
		}
	}
	return false
}

// SeekIndex moves the cursor to absolute index i, clamped to the listing.
func (t *Tokenizer) SeekIndex(i int) {
	t.index = min(max(i, 0), len(t.offsets))
}

// Snapshot returns a read-only view positioned at the current instruction.
func (t *Tokenizer) Snapshot() Cursor {
	return Cursor{t: t, index: t.index}
}

// Cursor is an immutable position in a listing. Matchers receive a Cursor
// so that probing never moves the driving tokenizer.
type Cursor struct {
	t     *Tokenizer
	index int
}

// Get returns the instruction delta positions away from the cursor.
func (c Cursor) Get(delta int) (Instruction, bool) {
	if c.t == nil {
		return Instruction{}, false
	}
	return c.t.At(c.index + delta)
}

// Index returns the absolute position of the cursor.
func (c Cursor) Index() int { return c.index }

// Shift returns a cursor delta positions away from c.
func (c Cursor) Shift(delta int) Cursor {
	return Cursor{t: c.t, index: c.index + delta}
}

// Len returns the listing length.
func (c Cursor) Len() int {
	if c.t == nil {
		return 0
	}
	return c.t.Len()
}

// Remaining returns the number of instructions from the cursor to the end,
// current one included.
func (c Cursor) Remaining() int { return max(c.Len()-c.index, 0) }
