// Package bbcfmt provides shared binary helpers, error kinds, and diagnostics
// for BBC code resource analysis.
package bbcfmt

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

// Error taxonomy. ErrMalformedResource is the only fatal kind; the others are
// recorded as diagnostics and analysis continues.
var (
	ErrMalformedResource          = errors.New("malformed resource")
	ErrUnresolvedSymbol           = errors.New("unresolved symbol")
	ErrDecode                     = errors.New("instruction decode failure")
	ErrProbeOutOfRange            = errors.New("pattern probe out of range")
	ErrUnexpectedVariableEncoding = errors.New("unexpected variable encoding")
)

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTruncated          DiagKind = "truncated"
	DiagUnresolvedSymbol   DiagKind = "unresolved_symbol"
	DiagDecode             DiagKind = "decode"
	DiagProbeOutOfRange    DiagKind = "probe_out_of_range"
	DiagUnexpectedEncoding DiagKind = "unexpected_encoding"
	DiagDuplicate          DiagKind = "duplicate"
)

// Err returns the taxonomy error for the kind.
func (k DiagKind) Err() error {
	switch k {
	case DiagUnresolvedSymbol:
		return ErrUnresolvedSymbol
	case DiagDecode:
		return ErrDecode
	case DiagProbeOutOfRange:
		return ErrProbeOutOfRange
	case DiagTruncated, DiagUnexpectedEncoding:
		return ErrUnexpectedVariableEncoding
	}
	return errors.New(string(k))
}

// Diag records a non-fatal issue encountered during analysis.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

// Report records a diagnostic and logs it as a warning carrying the
// taxonomy error for its kind.
func (d *Diags) Report(log logr.Logger, offset uint64, kind DiagKind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.Add(offset, kind, msg)
	log.Error(kind.Err(), msg, "offset", fmt.Sprintf("0x%x", offset))
}

// Merge appends all diagnostics from other.
func (d *Diags) Merge(other *Diags) {
	if other == nil {
		return
	}
	d.items = append(d.items, other.items...)
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Mode controls error handling behavior.
type Mode int

const (
	ModeBestEffort Mode = iota // continue past recoverable problems, accumulate diags
	ModeStrict                 // any recorded diagnostic fails the run
)

// Options controls analysis behavior across packages.
type Options struct {
	Mode     Mode
	MaxSteps int // decode loop cap; 0 = use default
}

// DefaultMaxSteps is the global default loop cap.
const DefaultMaxSteps = 10_000_000

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}

// Check returns an error in strict mode when diags is non-empty.
func (o Options) Check(diags *Diags) error {
	if o.Mode != ModeStrict || diags == nil || diags.Len() == 0 {
		return nil
	}
	return fmt.Errorf("strict: %d diagnostics recorded, first: %s", diags.Len(), diags.items[0])
}
