package disasm

import (
	"strings"

	"blitzlens/internal/resource"
	"blitzlens/internal/variable"
)

const indent = "    "

// Format renders the listing: a "name:" line before every labeled
// instruction (blank-line separated after the first), instructions indented
// by four spaces, then every variable as a label followed by its data.
func Format(d *Disassembly, res *resource.Resource, vars []variable.Rendered) string {
	return FormatAnnotated(d, res, vars, nil)
}

// FormatAnnotated is Format with an optional "; comment" after each
// instruction that ann annotates.
func FormatAnnotated(d *Disassembly, res *resource.Resource, vars []variable.Rendered, ann Annotator) string {
	var b strings.Builder
	for i, l := range d.Lines {
		name, labeled := res.SymbolName(l.Offset)
		if labeled {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(name)
			b.WriteString(":\n")
		}
		b.WriteString(indent)
		b.WriteString(l.Text)
		if ann != nil {
			if c := ann(l); c != "" {
				b.WriteString(" ; ")
				b.WriteString(c)
			}
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	for _, v := range vars {
		b.WriteString(v.Name)
		b.WriteString(":\n")
		if !strings.HasPrefix(v.Text, indent) {
			b.WriteString(indent)
		}
		b.WriteString(strings.TrimSuffix(v.Text, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
