package resource

import "blitzlens/internal/bbcfmt"

// Encode serializes the resource back into the BBC wire format. The output
// reproduces the bytes Parse consumed: raw (unrelocated) code, every symbol
// record including aliases, and relocation names as originally stored.
func (r *Resource) Encode() []byte {
	var w bbcfmt.Writer
	w.WriteInt32(int32(len(r.raw)))
	w.WriteBytes(r.raw)

	w.WriteInt32(int32(len(r.entries)))
	for _, e := range r.entries {
		w.WriteCString(e.Name)
		w.WriteUint32(e.Addr)
	}
	for _, table := range [][]Reloc{r.rel, r.abs} {
		w.WriteInt32(int32(len(table)))
		for _, rl := range table {
			w.WriteCString(rl.Raw)
			w.WriteUint32(rl.Offset)
		}
	}
	return w.Bytes()
}

// Builder assembles a BBC resource image. It is used to produce fixtures and
// to repack edited resources.
type Builder struct {
	Code     []byte
	Symbols  []Symbol
	Relative []Reloc
	Absolute []Reloc
}

// Bytes encodes the builder contents. Reloc.Symbol is written as the stored
// name.
func (b *Builder) Bytes() []byte {
	var w bbcfmt.Writer
	w.WriteInt32(int32(len(b.Code)))
	w.WriteBytes(b.Code)
	w.WriteInt32(int32(len(b.Symbols)))
	for _, s := range b.Symbols {
		w.WriteCString(s.Name)
		w.WriteUint32(s.Addr)
	}
	for _, table := range [][]Reloc{b.Relative, b.Absolute} {
		w.WriteInt32(int32(len(table)))
		for _, rl := range table {
			w.WriteCString(rl.Symbol)
			w.WriteUint32(rl.Offset)
		}
	}
	return w.Bytes()
}
