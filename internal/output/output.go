// Package output writes scan results and disassembly.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"jarstrings/internal/bytecode"
	"jarstrings/internal/record"
)

// Summary is the document written by WriteResultJSON.
type Summary struct {
	Source  string          `json:"source"`
	Entries int             `json:"entries"`
	Strings int             `json:"strings"`
	Groups  []*record.Group `json:"groups"`
	Skipped []Skipped       `json:"skipped,omitempty"`
}

type Skipped struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewSummary collects scan results for JSON output.
func NewSummary(source string, entries int, groups []*record.Group, diags []record.Diag) *Summary {
	s := &Summary{Source: source, Entries: entries, Groups: groups}
	for _, g := range groups {
		s.Strings += g.Len()
	}
	for _, d := range diags {
		s.Skipped = append(s.Skipped, Skipped{Path: d.Path, Error: d.Err.Error()})
	}
	return s
}

// WriteJSON writes v indented.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode: %w", err)
	}
	return nil
}

// WriteJSONL writes one record per line.
func WriteJSONL(w io.Writer, records []*record.String) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode %s: %w", r.Key(), err)
		}
	}
	return nil
}

// WriteTable writes records as aligned columns: location, constant index,
// context and quoted text. Edited records show the new text after "=>".
func WriteTable(w io.Writer, records []*record.String) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range records {
		loc := r.MethodID()
		if r.Line > 0 {
			loc += ":" + strconv.Itoa(r.Line)
		}
		ctx := string(r.Context)
		if ctx == "" {
			ctx = "-"
		}
		text := strconv.Quote(r.Value)
		if r.Changed {
			text += " => " + strconv.Quote(r.Edited)
		}
		if r.Shared {
			text += " (shared)"
		}
		fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\n", loc, r.Index, ctx, text)
	}
	return tw.Flush()
}

// WriteASM writes a method listing to <dir>/<class>/<name>.txt, where class
// is an internal name such as com/example/Foo.
func WriteASM(dir, class, name string, insts []bytecode.Inst, annotators ...bytecode.Annotator) error {
	path := filepath.Join(dir, filepath.FromSlash(class), safeName(name)+".txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	return os.WriteFile(path, []byte(bytecode.Format(insts, annotators...)), 0o644)
}

// WriteFile writes a rendered document such as a DOT graph.
func WriteFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// safeName maps a method name and descriptor to a file name.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ';':
			return '_'
		}
		return r
	}, s)
}
