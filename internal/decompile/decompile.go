// Package decompile reconstructs BlitzBasic-like source from a symbolized
// disassembly listing.
//
// A single pass walks the listing. Outside a function nothing is emitted;
// inside one, prioritized statement matchers are tried at the cursor and
// the first that recognizes a shape consumes its instructions and appends
// source lines. Functions are closed when the next function label arrives
// or the listing ends.
package decompile

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/disasm"
	"blitzlens/internal/resource"
	"blitzlens/internal/tokenizer"
	"blitzlens/internal/variable"
)

// DefaultWindow bounds how far matchers look around the cursor.
const DefaultWindow = 32

// UnattributedFile collects functions closed before any source file was
// named by a debug statement.
const UnattributedFile = "_unattributed.bb"

// Options configures a Decompiler.
type Options struct {
	Log        logr.Logger
	Intrinsics Intrinsics // nil = DefaultIntrinsics()
	Window     int        // 0 = DefaultWindow
}

// Decompiler turns a disassembly listing into per-function source text.
type Decompiler struct {
	env      env
	log      logr.Logger
	matchers []matcher
}

// New creates a decompiler over res and its rendered variables.
func New(res *resource.Resource, vars *variable.Set, opts Options) *Decompiler {
	intr := opts.Intrinsics
	if intr == nil {
		intr = DefaultIntrinsics()
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Decompiler{
		env:      env{res: res, vars: vars, intr: intr, window: window},
		log:      opts.Log.WithName("decompile"),
		matchers: defaultMatchers(),
	}
}

// Result is the output of one decompile pass.
type Result struct {
	Order        []string          // function names in closing order
	Code         map[string]string // function name -> source text
	FunctionFile map[string]string // function name -> source file
	Files        []string          // source files in first-seen order
	Diags        bbcfmt.Diags
}

// FileGroup is the functions attributed to one source file.
type FileGroup struct {
	File      string
	Functions []string
}

// ByFile groups functions by source file, in file first-seen order, with
// unattributed functions last.
func (r *Result) ByFile() []FileGroup {
	idx := make(map[string]int, len(r.Files)+1)
	var groups []FileGroup
	for _, f := range r.Files {
		idx[f] = len(groups)
		groups = append(groups, FileGroup{File: f})
	}
	var rest []string
	for _, name := range r.Order {
		f, ok := r.FunctionFile[name]
		if !ok {
			rest = append(rest, name)
			continue
		}
		i, ok := idx[f]
		if !ok {
			idx[f] = len(groups)
			i = len(groups)
			groups = append(groups, FileGroup{File: f})
		}
		groups[i].Functions = append(groups[i].Functions, name)
	}
	if len(rest) > 0 {
		groups = append(groups, FileGroup{File: UnattributedFile, Functions: rest})
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.Functions) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// Source returns the text of a file group: its functions separated by
// blank lines.
func (r *Result) Source(g FileGroup) string {
	parts := make([]string, 0, len(g.Functions))
	for _, name := range g.Functions {
		parts = append(parts, r.Code[name])
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// state is the mutable context of one pass.
type state struct {
	file     string
	label    string
	function string
	open     bool
	entry    bool
	body     []string
}

// Decompile runs one pass over d.
func (dc *Decompiler) Decompile(d *disasm.Disassembly) *Result {
	res := &Result{Code: make(map[string]string), FunctionFile: make(map[string]string)}
	st := &state{}
	tok := tokenizer.New(d)

	if err := dc.run(tok, st, res); err != nil {
		dc.log.Error(err, "decompile pass stopped", "index", tok.Index(), "functions", len(res.Order))
		res.Diags.Add(dc.offsetAt(tok), bbcfmt.DiagProbeOutOfRange, err.Error())
		return res
	}
	dc.finalize(st, res)
	dc.log.Info("decompiled", "functions", len(res.Order), "files", len(res.Files))
	return res
}

func (dc *Decompiler) offsetAt(tok *tokenizer.Tokenizer) uint64 {
	if in, ok := tok.Get(0); ok {
		return uint64(in.Offset)
	}
	return 0
}

func (dc *Decompiler) run(tok *tokenizer.Tokenizer, st *state, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", bbcfmt.ErrProbeOutOfRange, r)
		}
	}()
	for !tok.Done() {
		dc.step(tok, st, res)
	}
	return nil
}

func (dc *Decompiler) step(tok *tokenizer.Tokenizer, st *state, res *Result) {
	in, _ := tok.Get(0)
	if label, ok := dc.env.res.SymbolName(in.Offset); ok {
		st.label = label
		if disasm.StartsFunction(label) {
			dc.finalize(st, res)
			st.function = disasm.FunctionName(label)
			st.open = true
			st.entry = label == disasm.EntryLabel
			st.body = nil
			dc.log.V(1).Info("function", "name", st.function, "addr", fmt.Sprintf("%08X", in.Offset))
		}
	}
	if !st.open || st.entry {
		tok.Advance(1)
		return
	}

	m := dc.match(tok.Snapshot())
	st.body = append(st.body, m.Lines...)
	for _, d := range m.Diags {
		res.Diags.Report(dc.log, d.Offset, d.Kind, "%s", d.Msg)
	}
	if m.File != "" && m.File != st.file {
		st.file = m.File
		if !slices.Contains(res.Files, m.File) {
			res.Files = append(res.Files, m.File)
			dc.log.V(1).Info("source file", "file", m.File)
		}
	}
	tok.Advance(max(m.Consumed, 1))
}

// match returns the first matcher result at c, or a one-instruction
// pass-through.
func (dc *Decompiler) match(c tokenizer.Cursor) Match {
	for _, mt := range dc.matchers {
		m, ok, err := dc.try(mt, c)
		if err != nil {
			dc.log.V(1).Info("matcher probe failed", "matcher", mt.name, "index", c.Index(), "err", err.Error())
			continue
		}
		if ok && m.Consumed > 0 {
			return m
		}
	}
	return Match{Consumed: 1}
}

func (dc *Decompiler) try(mt matcher, c tokenizer.Cursor) (m Match, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, ok = Match{}, false
			if e, isErr := r.(error); isErr && errors.Is(e, bbcfmt.ErrProbeOutOfRange) {
				err = e
				return
			}
			err = fmt.Errorf("%w: %s: %v", bbcfmt.ErrProbeOutOfRange, mt.name, r)
		}
	}()
	m, ok = mt.match(&dc.env, c)
	return m, ok, nil
}

// finalize closes the open function and records it.
func (dc *Decompiler) finalize(st *state, res *Result) {
	if !st.open {
		return
	}
	st.open = false
	name := st.function
	if _, dup := res.Code[name]; dup {
		res.Diags.Report(dc.log, 0, bbcfmt.DiagDuplicate, "duplicate function %s; keeping first", name)
		return
	}
	res.Order = append(res.Order, name)
	res.Code[name] = renderFunction(name, st.body)
	if st.file != "" {
		res.FunctionFile[name] = st.file
	}
}

func renderFunction(name string, body []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Function %s()\n", name)
	for _, l := range body {
		b.WriteString("    ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("End Function")
	return b.String()
}
