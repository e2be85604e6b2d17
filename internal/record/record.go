// Package record holds the string literals found in an archive and the edits
// made to them.
package record

import (
	"fmt"

	"jarstrings/internal/classfile"
)

// Context names the API a literal is passed to.
type Context string

const (
	ContextNone            Context = ""
	ContextSendMessage     Context = "SendMessage"
	ContextItemDisplayName Context = "ItemDisplayName"
)

// String is one string literal loaded by an ldc or ldc_w instruction.
//
// Class and Method point into the decoded class the record was found in and
// are nil for records restored from a sheet or the catalog. Path and Index
// alone identify the constant to rewrite.
type String struct {
	Path             string               `json:"path"`
	Class            *classfile.ClassFile `json:"-"`
	Method           *classfile.Member    `json:"-"`
	ClassName        string               `json:"class"`
	MethodName       string               `json:"method"`
	MethodDescriptor string               `json:"descriptor"`
	Index            uint16               `json:"index"`
	Value            string               `json:"value"`
	Context          Context              `json:"context,omitempty"`
	Sink             string               `json:"sink,omitempty"`
	Offset           int                  `json:"offset"`
	InstIndex        int                  `json:"inst_index"`
	Line             int                  `json:"line,omitempty"`
	Shared           bool                 `json:"shared,omitempty"`
	Changed          bool                 `json:"changed,omitempty"`
	Edited           string               `json:"edited,omitempty"`
}

// Key identifies the constant a record refers to.
type Key struct {
	Path  string
	Index uint16
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.Path, k.Index) }

func (s *String) Key() Key { return Key{Path: s.Path, Index: s.Index} }

// Edit sets the replacement text and marks the record changed.
func (s *String) Edit(v string) {
	s.Edited = v
	s.Changed = true
}

// Revert discards any edit.
func (s *String) Revert() {
	s.Edited = ""
	s.Changed = false
}

// Text returns the edited value if there is one, the original otherwise.
func (s *String) Text() string {
	if s.Changed {
		return s.Edited
	}
	return s.Value
}

// MethodID is the fully qualified method name.
func (s *String) MethodID() string {
	return s.ClassName + "." + s.MethodName + s.MethodDescriptor
}

// MethodStrings is the literals of one method, in instruction order.
type MethodStrings struct {
	Name       string    `json:"name"`
	Descriptor string    `json:"descriptor"`
	Strings    []*String `json:"strings"`
}

// Group is the literals of one class entry.
type Group struct {
	Path      string               `json:"path"`
	ClassName string               `json:"class"`
	Class     *classfile.ClassFile `json:"-"`
	Methods   []MethodStrings      `json:"methods"`
}

// Strings flattens the group in method order.
func (g *Group) Strings() []*String {
	var out []*String
	for _, m := range g.Methods {
		out = append(out, m.Strings...)
	}
	return out
}

// Len is the number of records in the group.
func (g *Group) Len() int {
	n := 0
	for _, m := range g.Methods {
		n += len(m.Strings)
	}
	return n
}

// Flatten returns every record of every group.
func Flatten(groups []*Group) []*String {
	var out []*String
	for _, g := range groups {
		out = append(out, g.Strings()...)
	}
	return out
}

// Changed filters records down to those with an edit.
func Changed(records []*String) []*String {
	var out []*String
	for _, r := range records {
		if r.Changed {
			out = append(out, r)
		}
	}
	return out
}

// Index maps each record by key. Later duplicates are ignored.
func Index(records []*String) map[Key]*String {
	m := make(map[Key]*String, len(records))
	for _, r := range records {
		if _, ok := m[r.Key()]; !ok {
			m[r.Key()] = r
		}
	}
	return m
}

// Diag records a class entry that could not be scanned.
type Diag struct {
	Path string
	Err  error
}

func (d Diag) String() string { return d.Path + ": " + d.Err.Error() }
