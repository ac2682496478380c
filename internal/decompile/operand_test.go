package decompile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"blitzlens/internal/resource"
)

func TestMemRef(t *testing.T) {
	tests := []struct {
		op   string
		base string
		disp int32
		ok   bool
	}{
		{"[ebp-0x4]", "ebp", -4, true},
		{"[ebp+0x8]", "ebp", 8, true},
		{"[esp]", "esp", 0, true},
		{"[ebx+eax*4+0x10]", "", 0, false},
		{"fs:[0x0]", "", 0, false},
		{"[_vscore]", "", 0, false},
		{"eax", "", 0, false},
	}
	for _, tt := range tests {
		base, disp, ok := memRef(tt.op)
		if base != tt.base || disp != tt.disp || ok != tt.ok {
			t.Errorf("memRef(%q) = %q, %d, %v; want %q, %d, %v", tt.op, base, disp, ok, tt.base, tt.disp, tt.ok)
		}
	}
}

func TestCallName(t *testing.T) {
	tests := map[string]string{
		"_fhelper":     "helper",
		"_f":           "_f",
		"_bbPrint":     "Print",
		"__bbStrConst": "__bbStrConst",
		"eax":          "eax",
	}
	for in, want := range tests {
		if got := callName(in); got != want {
			t.Errorf("callName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegTracker(t *testing.T) {
	rt := newRegTracker(2)
	rt.define("eax", "5")
	rt.define("cl", "x")
	if v, ok := rt.lookup("eax"); !ok || v != "5" {
		t.Fatalf("lookup(eax) = %q, %v", v, ok)
	}
	if _, ok := rt.lookup("cl"); ok {
		t.Error("partial register views are not tracked")
	}
	rt.tick()
	rt.tick()
	if _, ok := rt.lookup("eax"); !ok {
		t.Error("definition expired inside the window")
	}
	rt.tick()
	if _, ok := rt.lookup("eax"); ok {
		t.Error("definition should expire after the window")
	}
	rt.define("edx", "1")
	rt.kill("dl")
	if _, ok := rt.lookup("edx"); ok {
		t.Error("writing a partial view kills the full register")
	}
}

func TestValueOf(t *testing.T) {
	e := &env{window: DefaultWindow}
	res, vars, _ := fixture{
		lines:   []string{"ret", "ret", "ret", "ret", "ret", "ret", "ret", "ret"},
		labels:  map[int]string{0: "_fmain"},
		data:    []byte("hi\x00\x00\x07\x00\x00\x00"),
		dataSym: []resource.Symbol{{Name: "_3", Addr: 0}, {Name: "_vcount", Addr: 4}},
	}.build(t)
	e.res, e.vars = res, vars

	rt := newRegTracker(DefaultWindow)
	rt.define("eax", "local1")
	got := []string{
		e.valueOf("0x2a", rt),
		e.valueOf("0xffffffff", rt),
		e.valueOf("eax", rt),
		e.valueOf("ebx", rt),
		e.valueOf("[ebp-0x8]", rt),
		e.valueOf("[ebp+0xc]", rt),
		e.valueOf("[esp+0x4]", rt),
		e.valueOf("_3", rt),
		e.valueOf("[_vcount]", rt),
		e.valueOf("[ebx+eax*4]", rt),
	}
	want := []string{"42", "-1", "local1", "ebx", "local2", "param3", "a1", `"hi"`, "_vcount", "[ebx+eax*4]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("valueOf mismatch (-want +got):\n%s", diff)
	}
}
