package bbcfmt

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
)

func TestReadLittleEndian(t *testing.T) {
	s := NewStream([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF, 0xFF, 0xFF})
	u16, err := s.ReadUint16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadUint16 = 0x%x, %v; want 0x1234", u16, err)
	}
	u32, err := s.ReadUint32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("ReadUint32 = 0x%x, %v; want 0x12345678", u32, err)
	}
	i32, err := s.ReadInt32()
	if err != nil || i32 != -1 {
		t.Fatalf("ReadInt32 = %d, %v; want -1", i32, err)
	}
	if !s.EOF() {
		t.Errorf("EOF = false, remaining %d", s.Remaining())
	}
	if _, err := s.ReadByte(); !errors.Is(err, ErrStreamEOF) {
		t.Errorf("ReadByte at end: err = %v, want ErrStreamEOF", err)
	}
}

func TestReadFloat32(t *testing.T) {
	s := NewStream([]byte{0x00, 0x00, 0x80, 0x3F})
	f, err := s.ReadFloat32()
	if err != nil || f != 1.0 {
		t.Errorf("ReadFloat32 = %v, %v; want 1", f, err)
	}
}

func TestReadShort(t *testing.T) {
	tests := []struct {
		name string
		read func(*Stream) error
	}{
		{"uint16", func(s *Stream) error { _, err := s.ReadUint16(); return err }},
		{"uint32", func(s *Stream) error { _, err := s.ReadUint32(); return err }},
		{"bytes", func(s *Stream) error { _, err := s.ReadBytes(2); return err }},
		{"skip", func(s *Stream) error { return s.Skip(2) }},
	}
	for _, tt := range tests {
		s := NewStream([]byte{1})
		if err := tt.read(s); !errors.Is(err, ErrStreamEOF) {
			t.Errorf("%s: err = %v, want ErrStreamEOF", tt.name, err)
		}
		if s.Position() != 0 {
			t.Errorf("%s: position moved to %d on short read", tt.name, s.Position())
		}
	}
}

func TestReadCString(t *testing.T) {
	s := NewStream([]byte("hello\x00world\x00"))
	got, err := s.ReadCString()
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	got, err = s.ReadCString()
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "world" {
		t.Errorf("got %q, want %q", got, "world")
	}
}

func TestReadCString_Unterminated(t *testing.T) {
	s := NewStream([]byte("abc"))
	if _, err := s.ReadCString(); !errors.Is(err, ErrStreamEOF) {
		t.Fatalf("err = %v, want ErrStreamEOF", err)
	}
	if s.Position() != 0 {
		t.Errorf("position = %d, want 0", s.Position())
	}
}

func TestStreamPosition(t *testing.T) {
	s := NewStreamAt([]byte{0, 0, 0, 0, 7}, 4)
	if s.Position() != 4 {
		t.Errorf("position = %d, want 4", s.Position())
	}
	if s.Remaining() != 1 {
		t.Errorf("remaining = %d, want 1", s.Remaining())
	}
	b, err := s.ReadByte()
	if err != nil || b != 7 {
		t.Errorf("ReadByte = %d, %v; want 7", b, err)
	}
	s.SetPosition(100)
	if s.Position() != 5 {
		t.Errorf("SetPosition clamp = %d, want 5", s.Position())
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var w Writer
	w.WriteInt32(-2)
	w.WriteCString("_fmain")
	w.WriteUint32(0x10)

	s := NewStream(w.Bytes())
	i, _ := s.ReadInt32()
	name, _ := s.ReadCString()
	addr, _ := s.ReadUint32()
	if i != -2 || name != "_fmain" || addr != 0x10 {
		t.Errorf("round trip = %d %q 0x%x", i, name, addr)
	}
	if !s.EOF() {
		t.Errorf("trailing bytes: %d", s.Remaining())
	}
}

func TestPutUint32(t *testing.T) {
	buf := make([]byte, 8)
	if err := PutUint32(buf, 4, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if buf[4] != 0xEF || buf[7] != 0xDE {
		t.Errorf("buf = % x", buf)
	}
	if err := PutUint32(buf, 5, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestDiagsReport(t *testing.T) {
	var d Diags
	d.Report(logr.Discard(), 0x40, DiagUnresolvedSymbol, "missing %s", "score")
	if d.Len() != 1 {
		t.Fatalf("len = %d, want 1", d.Len())
	}
	got := d.Items()[0]
	if got.Offset != 0x40 || got.Kind != DiagUnresolvedSymbol || got.Msg != "missing score" {
		t.Errorf("diag = %+v", got)
	}
	if !errors.Is(got.Kind.Err(), ErrUnresolvedSymbol) {
		t.Errorf("kind err = %v", got.Kind.Err())
	}

	strict := Options{Mode: ModeStrict}
	if err := strict.Check(&d); err == nil {
		t.Error("strict Check should fail with diagnostics")
	}
	if err := (Options{}).Check(&d); err != nil {
		t.Errorf("best-effort Check = %v", err)
	}
}
