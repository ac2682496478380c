package variable

import (
	"fmt"
	"math"
	"strings"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/resource"
)

// DataType tags the entries of __DATA and the element type of arrays.
type DataType int32

const (
	DataEnd     DataType = 0
	DataInteger DataType = 1
	DataFloat   DataType = 2
	DataString  DataType = 3
	DataCString DataType = 4
	DataObj     DataType = 5
	DataVec     DataType = 6
)

var dataTypeNames = [...]string{"End", "Integer", "Float", "String", "CString", "Obj", "Vec"}

func (t DataType) String() string {
	if t >= 0 && int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("%d", int32(t))
}

// arrayHeaderSize is pointer, element type, dimension count and scales.
const arrayHeaderSize = 16

func (r *Renderer) renderArray(name string, off uint32, data []byte) string {
	if len(data) < arrayHeaderSize {
		r.diags.Report(r.log, uint64(off), bbcfmt.DiagUnexpectedEncoding,
			"array %s: %d bytes, descriptor needs %d", name, len(data), arrayHeaderSize)
		return "    ; Truncated array descriptor\n" + byteList(data)
	}
	s := bbcfmt.NewStream(data)
	ptr, _ := s.ReadUint32()
	typ, _ := s.ReadInt32()
	dims, _ := s.ReadInt32()
	scales, _ := s.ReadInt32()

	var b strings.Builder
	fmt.Fprintf(&b, "    .dd 0x%08X ; Pointer\n", ptr)
	fmt.Fprintf(&b, "    .dd 0x%02X ; Type: %s\n", uint32(typ), DataType(typ))
	fmt.Fprintf(&b, "    .dd 0x%02X ; Dimensions: %d\n", uint32(dims), dims)
	fmt.Fprintf(&b, "    .dd 0x%02X ; Scales\n", uint32(scales))
	return b.String()
}

// renderLibs walks the __LIBS table: repeated DLL records of a DLL name,
// (function name, u32 offset) pairs, and an empty name closing the DLL. An
// empty DLL name ends the table.
func (r *Renderer) renderLibs(off uint32, data []byte, res *resource.Resource, libs *Libs) string {
	var b strings.Builder
	s := bbcfmt.NewStream(data)
	truncated := func() string {
		r.diags.Report(r.log, uint64(off)+uint64(s.Position()), bbcfmt.DiagTruncated, "__LIBS truncated")
		b.WriteString("    ; Truncated __LIBS\n")
		return b.String()
	}

	for !s.EOF() {
		dll, err := s.ReadCString()
		if err != nil {
			return truncated()
		}
		if strings.TrimSpace(dll) == "" {
			b.WriteString("    .db 0x00")
			break
		}
		fmt.Fprintf(&b, "    .db \"%s\", 0x00\n", escape(dll))
		if libs != nil {
			libs.AddDLL(dll)
		}

		for !s.EOF() {
			fn, err := s.ReadCString()
			if err != nil {
				return truncated()
			}
			if strings.TrimSpace(fn) == "" {
				b.WriteString("    .db 0x00\n")
				break
			}
			fmt.Fprintf(&b, "    .db \"%s\", 0x00\n", escape(fn))

			addr, err := s.ReadUint32()
			if err != nil {
				return truncated()
			}
			sym, ok := res.AnyName(addr)
			if !ok {
				sym = fmt.Sprintf("0x%02X", addr)
				r.diags.Report(r.log, uint64(off)+uint64(s.Position()-4), bbcfmt.DiagUnresolvedSymbol,
					"Missing __LIBS Symbol for: %s -> %s", dll, fn)
			}
			fmt.Fprintf(&b, "    .dd %s\n", sym)
			if libs != nil {
				libs.Add(dll, fn, sym)
			}
		}
	}
	return b.String()
}

// renderData walks the __DATA table of (tag, value) pairs up to the End tag.
func (r *Renderer) renderData(off uint32, data []byte, res *resource.Resource) string {
	var b strings.Builder
	s := bbcfmt.NewStream(data)
	for !s.EOF() {
		pos := s.Position()
		raw, err := s.ReadInt32()
		if err != nil {
			r.diags.Report(r.log, uint64(off)+uint64(pos), bbcfmt.DiagTruncated, "__DATA truncated tag")
			b.WriteString("    ; Truncated __DATA\n")
			break
		}
		typ := DataType(raw)
		fmt.Fprintf(&b, "    .dd 0x%02X ; %s", uint32(raw), typ)
		if typ == DataEnd {
			return b.String()
		}
		b.WriteByte('\n')

		val, err := s.ReadUint32()
		if err != nil {
			r.diags.Report(r.log, uint64(off)+uint64(pos), bbcfmt.DiagTruncated, "__DATA truncated %s value", typ)
			b.WriteString("    ; Truncated __DATA\n")
			break
		}
		switch typ {
		case DataInteger:
			fmt.Fprintf(&b, "    .dd 0x%02X", val)
		case DataFloat:
			fmt.Fprintf(&b, "    .dd 0x%08X ; %g", val, math.Float32frombits(val))
		case DataCString:
			sym, ok := res.AnyName(val)
			if !ok {
				sym = fmt.Sprintf("0x%02X", val)
				r.diags.Report(r.log, uint64(off)+uint64(pos)+4, bbcfmt.DiagUnresolvedSymbol,
					"Missing __DATA CString symbol 0x%X", val)
			}
			fmt.Fprintf(&b, "    .dd %s", sym)
		default:
			fmt.Fprintf(&b, "    ; Invalid Type For __DATA: %s => %02X", typ, val)
			r.diags.Report(r.log, uint64(off)+uint64(pos), bbcfmt.DiagUnexpectedEncoding,
				"Invalid Type For __DATA: %s => %02X", typ, val)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
