package decompile

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// IntrinsicKind selects how a runtime-support call is reconstructed.
type IntrinsicKind string

const (
	// IntrinsicStrConst builds a string object from a string constant.
	IntrinsicStrConst IntrinsicKind = "strconst"
	// IntrinsicDebugStmt marks the source file of the statements that follow.
	IntrinsicDebugStmt IntrinsicKind = "debugstmt"
	// IntrinsicElide is recognized but produces no source line.
	IntrinsicElide IntrinsicKind = "elide"
)

// runtimePrefix marks internal runtime-support symbols.
const runtimePrefix = "__bb"

// Intrinsics maps runtime call targets to their reconstruction.
type Intrinsics map[string]IntrinsicKind

// DefaultIntrinsics returns the built-in table.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{
		"__bbStrConst":   IntrinsicStrConst,
		"__bbDebugStmt":  IntrinsicDebugStmt,
		"__bbDimArray":   IntrinsicElide,
		"__bbUndimArray": IntrinsicElide,
		"__bbDebugEnter": IntrinsicElide,
		"__bbDebugLeave": IntrinsicElide,
	}
}

// Lookup returns the kind for name. Unlisted names carrying the runtime
// prefix are elided.
func (in Intrinsics) Lookup(name string) (IntrinsicKind, bool) {
	if k, ok := in[name]; ok {
		return k, true
	}
	if strings.HasPrefix(name, runtimePrefix) {
		return IntrinsicElide, true
	}
	return "", false
}

// Merge returns a copy of in with the entries of over applied on top.
func (in Intrinsics) Merge(over Intrinsics) Intrinsics {
	out := maps.Clone(in)
	if out == nil {
		out = Intrinsics{}
	}
	maps.Copy(out, over)
	return out
}

// ParseIntrinsics decodes a YAML or JSON mapping of call target to kind.
func ParseIntrinsics(data []byte) (Intrinsics, error) {
	var in Intrinsics
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decompile: parse intrinsics: %w", err)
	}
	for name, k := range in {
		switch k {
		case IntrinsicStrConst, IntrinsicDebugStmt, IntrinsicElide:
		default:
			return nil, fmt.Errorf("decompile: intrinsic %s: unknown kind %q", name, k)
		}
	}
	return in, nil
}

// LoadIntrinsics reads a table from path and merges it over the defaults.
func LoadIntrinsics(path string) (Intrinsics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decompile: read intrinsics: %w", err)
	}
	in, err := ParseIntrinsics(data)
	if err != nil {
		return nil, err
	}
	return DefaultIntrinsics().Merge(in), nil
}
