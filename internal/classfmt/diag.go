// Package classfmt holds the big-endian reader and the diagnostics shared by
// the class-file and bytecode decoders.
package classfmt

import (
	"fmt"
	"strings"
)

// DiagKind names what went wrong.
type DiagKind string

const (
	DiagTruncated  DiagKind = "truncated"   // input ended inside a structure
	DiagInvalid    DiagKind = "invalid"     // a field holds an impossible value
	DiagUnknownTag DiagKind = "unknown_tag" // constant tag or opcode outside the table
	DiagUnresolved DiagKind = "unresolved"  // reference to a missing or mistyped slot
)

// Diag is one recoverable problem. Where names the method or structure the
// problem was found in and may be empty; Offset is relative to it.
type Diag struct {
	Where  string   `json:"where,omitempty"`
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	s := fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
	if d.Where != "" {
		s = d.Where + " " + s
	}
	return s
}

// Diags collects diagnostics in the order they are found. The zero value is
// ready to use. At sets the Where stamped on later additions.
type Diags struct {
	where string
	items []Diag
}

func (d *Diags) At(where string) { d.where = where }

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Where: d.where, Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.Add(offset, kind, fmt.Sprintf(format, args...))
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Count returns how many diagnostics have the given kind.
func (d *Diags) Count(kind DiagKind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Err folds the collected diagnostics into one error, or nil when there are
// none. Only the first is spelled out.
func (d *Diags) Err() error {
	switch len(d.items) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("classfmt: %s", d.items[0])
	}
	var kinds []string
	seen := map[DiagKind]bool{}
	for _, it := range d.items {
		if !seen[it.Kind] {
			seen[it.Kind] = true
			kinds = append(kinds, string(it.Kind))
		}
	}
	return fmt.Errorf("classfmt: %s (and %d more: %s)", d.items[0], len(d.items)-1, strings.Join(kinds, ", "))
}

// Mode picks between skipping damaged input and stopping at it.
type Mode int

const (
	ModeBestEffort Mode = iota // record a diagnostic and carry on
	ModeStrict                 // return the first problem as an error
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	if m == ModeBestEffort {
		return "best-effort"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}
