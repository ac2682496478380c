// Package pex locates Win32 resources in PE executables. BlitzBasic
// executables carry their compiled program as an RT_RCDATA resource.
package pex

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	ErrNotPE       = errors.New("pex: not a PE file")
	ErrNoRsrc      = errors.New("pex: no resource directory")
	ErrNoResource  = errors.New("pex: resource not found")
	ErrMalformed   = errors.New("pex: malformed resource directory")
	ErrNoSection   = errors.New("pex: no section covers RVA")
	ErrBadResource = errors.New("pex: bad resource identifier")
)

// Location of the BBC code resource in a BlitzBasic executable.
const (
	BBCName = "#1111"
	BBCType = "#10" // RT_RCDATA
)

const (
	dirEntryResource = 2 // IMAGE_DIRECTORY_ENTRY_RESOURCE
	dirHeaderSize    = 16
	dirEntrySize     = 8
	dataEntrySize    = 16
	highBit          = 0x80000000
)

// File wraps a debug/pe.File.
type File struct {
	PE     *pe.File
	closer io.Closer
	size   int64
}

// Open opens a PE file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pex: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pex: stat: %w", err)
	}

	pf, err := NewFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	pf.closer = f
	return pf, nil
}

// NewFile reads a PE image from r.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	pf, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}
	return &File{PE: pf, size: size}, nil
}

// Close releases resources.
func (f *File) Close() error {
	err := f.PE.Close()
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Entry describes one leaf of the resource tree.
type Entry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Lang string `json:"lang"`
	RVA  uint32 `json:"rva"`
	Size uint32 `json:"size"`
}

// BBC returns the BlitzBasic code resource.
func (f *File) BBC() ([]byte, error) {
	return f.Resource(BBCName, BBCType)
}

// Resource returns the data of the first language of the named resource.
// Names and types are either "#<id>" or a string matched case-insensitively.
func (f *File) Resource(name, typ string) ([]byte, error) {
	tree, err := f.tree()
	if err != nil {
		return nil, err
	}
	typDir, err := tree.lookup(0, typ)
	if err != nil {
		return nil, err
	}
	nameDir, err := tree.lookup(typDir, name)
	if err != nil {
		return nil, err
	}
	langs, err := tree.entries(nameDir)
	if err != nil {
		return nil, err
	}
	for _, l := range langs {
		if l.dir {
			continue
		}
		rva, size, err := tree.leaf(l.off)
		if err != nil {
			return nil, err
		}
		return f.readRVA(rva, size)
	}
	return nil, fmt.Errorf("%w: %s/%s has no data", ErrNoResource, typ, name)
}

// Resources lists every leaf of the resource tree in directory order.
func (f *File) Resources() ([]Entry, error) {
	tree, err := f.tree()
	if err != nil {
		return nil, err
	}
	var out []Entry
	types, err := tree.entries(0)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if !t.dir {
			continue
		}
		names, err := tree.entries(t.off)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if !n.dir {
				continue
			}
			langs, err := tree.entries(n.off)
			if err != nil {
				return nil, err
			}
			for _, l := range langs {
				if l.dir {
					continue
				}
				rva, size, err := tree.leaf(l.off)
				if err != nil {
					return nil, err
				}
				out = append(out, Entry{Type: t.name, Name: n.name, Lang: l.name, RVA: rva, Size: size})
			}
		}
	}
	return out, nil
}

// ReadBBC opens path and returns its BBC resource.
func ReadBBC(path string) ([]byte, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.BBC()
}

func (f *File) dataDirectory(idx int) (pe.DataDirectory, bool) {
	switch oh := f.PE.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if uint32(idx) < oh.NumberOfRvaAndSizes {
			return oh.DataDirectory[idx], true
		}
	case *pe.OptionalHeader64:
		if uint32(idx) < oh.NumberOfRvaAndSizes {
			return oh.DataDirectory[idx], true
		}
	}
	return pe.DataDirectory{}, false
}

func (f *File) section(rva uint32) *pe.Section {
	for _, s := range f.PE.Sections {
		span := max(s.VirtualSize, s.Size)
		if rva >= s.VirtualAddress && rva-s.VirtualAddress < span {
			return s
		}
	}
	return nil
}

// readRVA reads size bytes at rva from the section that covers it.
func (f *File) readRVA(rva, size uint32) ([]byte, error) {
	s := f.section(rva)
	if s == nil {
		return nil, fmt.Errorf("%w: 0x%x", ErrNoSection, rva)
	}
	off := rva - s.VirtualAddress
	if uint64(off)+uint64(size) > uint64(s.Size) {
		return nil, fmt.Errorf("pex: RVA 0x%x+0x%x past raw data of %s", rva, size, s.Name)
	}
	buf := make([]byte, size)
	if _, err := s.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pex: read at RVA 0x%x: %w", rva, err)
	}
	return buf, nil
}

// rsrcTree is the raw resource directory. Directory offsets are relative
// to its start; data entry RVAs are image-relative.
type rsrcTree struct {
	data []byte
}

type dirEntry struct {
	name string // "#<id>" or the decoded string name
	off  uint32
	dir  bool
}

func (f *File) tree() (*rsrcTree, error) {
	dd, ok := f.dataDirectory(dirEntryResource)
	if !ok || dd.VirtualAddress == 0 || dd.Size < dirHeaderSize {
		return nil, ErrNoRsrc
	}
	s := f.section(dd.VirtualAddress)
	if s == nil {
		return nil, fmt.Errorf("%w: resource directory 0x%x", ErrNoSection, dd.VirtualAddress)
	}
	raw, err := s.Data()
	if err != nil && len(raw) == 0 {
		return nil, fmt.Errorf("pex: read %s: %w", s.Name, err)
	}
	start := dd.VirtualAddress - s.VirtualAddress
	if uint64(start) >= uint64(len(raw)) {
		return nil, fmt.Errorf("%w: directory past section data", ErrMalformed)
	}
	return &rsrcTree{data: raw[start:]}, nil
}

func (t *rsrcTree) u16(off uint32) (uint16, error) {
	if uint64(off)+2 > uint64(len(t.data)) {
		return 0, fmt.Errorf("%w: read at 0x%x", ErrMalformed, off)
	}
	return binary.LittleEndian.Uint16(t.data[off:]), nil
}

func (t *rsrcTree) u32(off uint32) (uint32, error) {
	if uint64(off)+4 > uint64(len(t.data)) {
		return 0, fmt.Errorf("%w: read at 0x%x", ErrMalformed, off)
	}
	return binary.LittleEndian.Uint32(t.data[off:]), nil
}

// entries decodes the directory at off. Named entries precede ID entries.
func (t *rsrcTree) entries(off uint32) ([]dirEntry, error) {
	named, err := t.u16(off + 12)
	if err != nil {
		return nil, err
	}
	ids, err := t.u16(off + 14)
	if err != nil {
		return nil, err
	}
	n := uint32(named) + uint32(ids)
	out := make([]dirEntry, 0, n)
	for i := range n {
		at := off + dirHeaderSize + i*dirEntrySize
		nameField, err := t.u32(at)
		if err != nil {
			return nil, err
		}
		dataField, err := t.u32(at + 4)
		if err != nil {
			return nil, err
		}
		e := dirEntry{off: dataField &^ highBit, dir: dataField&highBit != 0}
		if nameField&highBit != 0 {
			e.name, err = t.str(nameField &^ highBit)
			if err != nil {
				return nil, err
			}
		} else {
			e.name = "#" + strconv.Itoa(int(nameField&0xFFFF))
		}
		if e.dir && e.off <= off {
			return nil, fmt.Errorf("%w: directory 0x%x points back to 0x%x", ErrMalformed, off, e.off)
		}
		out = append(out, e)
	}
	return out, nil
}

// str decodes a length-prefixed UTF-16LE resource name.
func (t *rsrcTree) str(off uint32) (string, error) {
	n, err := t.u16(off)
	if err != nil {
		return "", err
	}
	end := uint64(off) + 2 + uint64(n)*2
	if end > uint64(len(t.data)) {
		return "", fmt.Errorf("%w: name at 0x%x", ErrMalformed, off)
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	b, err := dec.Bytes(t.data[off+2 : end])
	if err != nil {
		return "", fmt.Errorf("%w: name at 0x%x: %v", ErrMalformed, off, err)
	}
	return string(b), nil
}

// leaf returns the RVA and size recorded by the data entry at off.
func (t *rsrcTree) leaf(off uint32) (uint32, uint32, error) {
	if uint64(off)+dataEntrySize > uint64(len(t.data)) {
		return 0, 0, fmt.Errorf("%w: data entry at 0x%x", ErrMalformed, off)
	}
	return binary.LittleEndian.Uint32(t.data[off:]), binary.LittleEndian.Uint32(t.data[off+4:]), nil
}

// lookup finds the subdirectory for key in the directory at off.
func (t *rsrcTree) lookup(off uint32, key string) (uint32, error) {
	if key == "" || key == "#" {
		return 0, fmt.Errorf("%w: %q", ErrBadResource, key)
	}
	if strings.HasPrefix(key, "#") {
		if _, err := strconv.ParseUint(key[1:], 10, 16); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadResource, key)
		}
	}
	ents, err := t.entries(off)
	if err != nil {
		return 0, err
	}
	for _, e := range ents {
		if e.dir && matchName(e.name, key) {
			return e.off, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoResource, key)
}

func matchName(have, want string) bool {
	if strings.HasPrefix(want, "#") {
		a, err1 := strconv.ParseUint(strings.TrimPrefix(have, "#"), 10, 16)
		b, err2 := strconv.ParseUint(want[1:], 10, 16)
		return strings.HasPrefix(have, "#") && err1 == nil && err2 == nil && a == b
	}
	return !strings.HasPrefix(have, "#") && strings.EqualFold(have, want)
}
