// Little-endian stream reader and writer for the BBC code resource and the
// PE resource directory.
package bbcfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrStreamEOF  = errors.New("stream: unexpected end of data")
	ErrOutOfRange = errors.New("stream: offset out of range")
)

// Stream reads little-endian values from a byte slice.
type Stream struct {
	data []byte
	pos  int
	end  int
}

// NewStream creates a stream over the given data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data, pos: 0, end: len(data)}
}

// NewStreamAt creates a stream starting at offset within data.
func NewStreamAt(data []byte, offset int) *Stream {
	if offset < 0 {
		offset = 0
	}
	if offset > len(data) {
		offset = len(data)
	}
	return &Stream{data: data, pos: offset, end: len(data)}
}

// Position returns the current read position.
func (s *Stream) Position() int { return s.pos }

// SetPosition sets the read position.
func (s *Stream) SetPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > s.end {
		pos = s.end
	}
	s.pos = pos
}

// Remaining returns bytes left to read.
func (s *Stream) Remaining() int { return s.end - s.pos }

// EOF reports whether the stream is exhausted.
func (s *Stream) EOF() bool { return s.pos >= s.end }

// ReadByte reads a single byte.
func (s *Stream) ReadByte() (byte, error) {
	if s.pos >= s.end {
		return 0, ErrStreamEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes reads n bytes into a new slice.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || s.pos+n > s.end {
		return nil, ErrStreamEOF
	}
	out := make([]byte, n)
	copy(out, s.data[s.pos:s.pos+n])
	s.pos += n
	return out, nil
}

// ReadUint16 reads a little-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	if s.pos+2 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint16(s.data[s.pos:])
	s.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	if s.pos+4 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

// ReadInt32 reads a little-endian int32.
func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads a little-endian IEEE-754 single.
func (s *Stream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadCString reads a null-terminated string. The terminator is consumed
// and not included in the result.
func (s *Stream) ReadCString() (string, error) {
	start := s.pos
	for s.pos < s.end {
		if s.data[s.pos] == 0 {
			str := string(s.data[start:s.pos])
			s.pos++ // skip null terminator
			return str, nil
		}
		s.pos++
	}
	s.pos = start
	return "", fmt.Errorf("stream: unterminated string at offset %d: %w", start, ErrStreamEOF)
}

// Skip advances the position by n bytes.
func (s *Stream) Skip(n int) error {
	if n < 0 || s.pos+n > s.end {
		return ErrStreamEOF
	}
	s.pos += n
	return nil
}

// PutUint32 patches a little-endian uint32 into buf at off.
func PutUint32(buf []byte, off uint32, v uint32) error {
	if uint64(off)+4 > uint64(len(buf)) {
		return fmt.Errorf("patch at 0x%x (len 0x%x): %w", off, len(buf), ErrOutOfRange)
	}
	binary.LittleEndian.PutUint32(buf[off:], v)
	return nil
}

// Writer encodes little-endian values. It never fails; Bytes returns the
// accumulated buffer.
type Writer struct {
	buf []byte
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteCString writes s followed by a null terminator.
func (w *Writer) WriteCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}
