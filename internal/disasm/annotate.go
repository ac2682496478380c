package disasm

import (
	"strconv"
	"strings"

	"blitzlens/internal/variable"
)

// Annotator returns an optional inline comment for a listing line.
// Empty string means no annotation.
type Annotator func(l Line) string

// StringAnnotator comments lines that reference a string constant with the
// quoted contents of that constant.
func StringAnnotator(set *variable.Set) Annotator {
	return func(l Line) string {
		for _, tok := range operandIdents(l) {
			if !variable.IsStringName(tok) {
				continue
			}
			v, ok := set.Lookup(tok)
			if !ok {
				continue
			}
			if s, ok := v.Literal(); ok {
				return strconv.Quote(s)
			}
		}
		return ""
	}
}

// ImportAnnotator marks calls into the runtime's import table.
func ImportAnnotator(isImport func(addr uint32) bool) Annotator {
	return func(l Line) string {
		if l.Mnemonic == "call" && l.HasTarget && isImport(l.Target) {
			return "import"
		}
		return ""
	}
}

// Chain returns the first non-empty annotation of anns.
func Chain(anns ...Annotator) Annotator {
	return func(l Line) string {
		for _, a := range anns {
			if s := a(l); s != "" {
				return s
			}
		}
		return ""
	}
}

// operandIdents splits the operand text into identifier-like tokens.
func operandIdents(l Line) []string {
	return strings.FieldsFunc(operandText(l), func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
}
