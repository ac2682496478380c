package disasm

import (
	"fmt"
	"strings"

	"blitzlens/internal/resource"
)

// EntryLabel marks the program's top-level initialization code.
const EntryLabel = "__MAIN"

// functionPrefix starts every user function label.
const functionPrefix = "_f"

// IsFunctionLabel reports whether a symbol names a user function.
func IsFunctionLabel(name string) bool {
	return strings.HasPrefix(name, functionPrefix)
}

// StartsFunction reports whether a label opens a new function block.
func StartsFunction(name string) bool {
	return IsFunctionLabel(name) || name == EntryLabel
}

// FunctionName strips the function label prefix. The entry label and bare
// prefixes are returned unchanged.
func FunctionName(label string) string {
	if IsFunctionLabel(label) && len(label) > len(functionPrefix) {
		return label[len(functionPrefix):]
	}
	return label
}

// Func is a contiguous run of lines opened by a function or entry label.
type Func struct {
	Name  string // label as it appears in the symbol table
	Addr  uint32
	Lines []Line
}

// Size returns the byte span of the function.
func (f Func) Size() uint32 {
	if len(f.Lines) == 0 {
		return 0
	}
	last := f.Lines[len(f.Lines)-1]
	return last.Offset + uint32(last.Len) - f.Addr
}

// Functions partitions the listing at function labels. Lines before the
// first label are grouped under a sub_<hex> placeholder.
func Functions(d *Disassembly, res *resource.Resource) []Func {
	var out []Func
	for _, l := range d.Lines {
		if name, ok := res.SymbolName(l.Offset); ok && StartsFunction(name) {
			out = append(out, Func{Name: name, Addr: l.Offset})
		} else if len(out) == 0 {
			out = append(out, Func{Name: fmt.Sprintf("sub_%x", l.Offset), Addr: l.Offset})
		}
		f := &out[len(out)-1]
		f.Lines = append(f.Lines, l)
	}
	return out
}
