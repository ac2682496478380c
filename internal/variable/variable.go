// Package variable renders the data regions of a BBC code resource as
// assembler data directives.
package variable

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-logr/logr"
	"golang.org/x/text/encoding/charmap"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/resource"
)

// Kind is the rendering rule that matched a variable.
type Kind string

const (
	KindString Kind = "string"
	KindArray  Kind = "array"
	KindLibs   Kind = "libs"
	KindData   Kind = "data"
	KindScalar Kind = "scalar"
	KindBytes  Kind = "bytes"
)

// Reserved variable names with their own layout.
const (
	LibsName = "__LIBS"
	DataName = "__DATA"
)

// Rendered is one variable's listing text.
type Rendered struct {
	Name  string `json:"name"`
	Addr  uint32 `json:"address"`
	Size  uint32 `json:"size"`
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"` // decoded string contents for KindString
}

// Literal returns the string constant held by a string variable. A
// one-byte string variable is the empty string.
func (v Rendered) Literal() (string, bool) {
	switch {
	case v.Kind == KindString:
		return v.Value, true
	case IsStringName(v.Name) && v.Size == 1:
		return "", true
	}
	return "", false
}

// IsStringName reports whether name follows the string constant convention:
// an underscore followed by decimal digits.
func IsStringName(name string) bool {
	if len(name) <= 1 || name[0] != '_' {
		return false
	}
	for _, c := range name[1:] {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}

// IsArrayName reports whether name follows the array descriptor convention.
func IsArrayName(name string) bool {
	return len(name) > 2 && strings.HasPrefix(name, "_a")
}

// Renderer renders variables and records recoverable problems.
type Renderer struct {
	log   logr.Logger
	diags bbcfmt.Diags
}

// NewRenderer returns a renderer that reports through log.
func NewRenderer(log logr.Logger) *Renderer {
	return &Renderer{log: log.WithName("variable")}
}

// Diags returns the diagnostics recorded so far.
func (r *Renderer) Diags() *bbcfmt.Diags { return &r.diags }

// Render produces the listing text for the variable name occupying
// [off, off+size) of the relocated code. The first matching rule wins:
// string, array, __LIBS, __DATA, 1/2/4-byte scalar, byte list. It does not
// fail; malformed contents degrade to a comment and a raw dump.
func (r *Renderer) Render(name string, res *resource.Resource, off, size uint32, libs *Libs) Rendered {
	r.log.V(1).Info("variable", "addr", fmt.Sprintf("%08X", off), "name", name, "size", size)
	out := Rendered{Name: name, Addr: off, Size: size}

	data, err := res.Data(off, size)
	if err != nil {
		r.diags.Report(r.log, uint64(off), bbcfmt.DiagTruncated, "variable %s: %v", name, err)
		out.Kind = KindBytes
		out.Text = "; unreadable"
		return out
	}

	switch {
	case IsStringName(name) && size > 1:
		out.Kind = KindString
		out.Value = decodeString(data)
		out.Text = ".db \"" + escape(out.Value) + "\", 0x00"
	case IsArrayName(name):
		out.Kind = KindArray
		out.Text = r.renderArray(name, off, data)
	case name == LibsName:
		out.Kind = KindLibs
		out.Text = r.renderLibs(off, data, res, libs)
	case name == DataName:
		out.Kind = KindData
		out.Text = r.renderData(off, data, res)
	case size == 1:
		out.Kind = KindScalar
		out.Text = fmt.Sprintf(".db 0x%02X", data[0])
	case size == 2:
		out.Kind = KindScalar
		out.Text = fmt.Sprintf(".dw 0x%02X", binary.LittleEndian.Uint16(data))
	case size == 4:
		out.Kind = KindScalar
		out.Text = fmt.Sprintf(".dd 0x%02X", binary.LittleEndian.Uint32(data))
	default:
		out.Kind = KindBytes
		out.Text = byteList(data)
	}
	return out
}

// decodeString returns the Windows-1252 text before the first NUL.
func decodeString(data []byte) string {
	if i := indexNUL(data); i >= 0 {
		data = data[:i]
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(s)
}

func indexNUL(data []byte) int {
	for i, b := range data {
		if b == 0 {
			return i
		}
	}
	return -1
}

func escape(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}

func byteList(data []byte) string {
	var b strings.Builder
	b.WriteString(".db ")
	for i, v := range data {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "0x%02X", v)
	}
	return b.String()
}

// Set is the rendered variable table of one resource.
type Set struct {
	Vars   []Rendered
	Libs   *Libs
	byName map[string]int
}

// Lookup returns the rendered variable called name.
func (s *Set) Lookup(name string) (Rendered, bool) {
	if s == nil {
		return Rendered{}, false
	}
	i, ok := s.byName[name]
	if !ok {
		return Rendered{}, false
	}
	return s.Vars[i], true
}

// RenderAll renders every variable boundary of res in address order.
func (r *Renderer) RenderAll(res *resource.Resource) *Set {
	set := &Set{Libs: NewLibs(), byName: make(map[string]int)}
	for _, v := range res.Variables() {
		set.byName[v.Name] = len(set.Vars)
		set.Vars = append(set.Vars, r.Render(v.Name, res, v.Addr, v.Size, set.Libs))
	}
	return set
}
