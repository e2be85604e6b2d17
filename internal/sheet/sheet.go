// Package sheet converts scan results to and from translation sheets: flat
// lists of literals that can be edited outside the tool and applied back.
package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"jarstrings/internal/record"
)

// Version is written into every sheet; Unmarshal rejects newer ones.
const Version = 1

var (
	ErrFormat  = errors.New("sheet: unknown format")
	ErrVersion = errors.New("sheet: unsupported version")
)

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
	CBOR Format = "cbor"
)

// Formats lists the supported formats.
func Formats() []Format { return []Format{JSON, YAML, TOML, CBOR} }

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "cbor":
		return CBOR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

// FormatOf picks the format from a file name.
func FormatOf(path string) (Format, error) { return ParseFormat(filepath.Ext(path)) }

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sheet: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// Sheet is the exchanged document. Text starts out equal to Original; a
// translator edits Text only.
type Sheet struct {
	Version int     `json:"version" yaml:"version" toml:"version"`
	Source  string  `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Entries []Entry `json:"entries" yaml:"entries" toml:"entries"`
}

type Entry struct {
	Path     string `json:"path" yaml:"path" toml:"path"`
	Index    uint16 `json:"index" yaml:"index" toml:"index"`
	Class    string `json:"class,omitempty" yaml:"class,omitempty" toml:"class,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
	Context  string `json:"context,omitempty" yaml:"context,omitempty" toml:"context,omitempty"`
	Shared   bool   `json:"shared,omitempty" yaml:"shared,omitempty" toml:"shared,omitempty"`
	Original string `json:"original" yaml:"original" toml:"original"`
	Text     string `json:"text" yaml:"text" toml:"text"`
}

func (e *Entry) Key() record.Key { return record.Key{Path: e.Path, Index: e.Index} }

// Build makes a sheet from records. Text carries any pending edit.
func Build(source string, records []*record.String) *Sheet {
	s := &Sheet{Version: Version, Source: source, Entries: make([]Entry, 0, len(records))}
	for _, r := range records {
		s.Entries = append(s.Entries, Entry{
			Path:     r.Path,
			Index:    r.Index,
			Class:    r.ClassName,
			Method:   r.MethodName + r.MethodDescriptor,
			Line:     r.Line,
			Context:  string(r.Context),
			Shared:   r.Shared,
			Original: r.Value,
			Text:     r.Text(),
		})
	}
	return s
}

func Marshal(s *Sheet, f Format) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch f {
	case JSON:
		out, err = json.MarshalIndent(s, "", "  ")
		out = append(out, '\n')
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(s); err == nil {
			err = enc.Close()
		}
		out = buf.Bytes()
	case TOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(s)
		out = buf.Bytes()
	case CBOR:
		out, err = cborEncMode.Marshal(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: encode %s: %w", f, err)
	}
	return out, nil
}

func Unmarshal(data []byte, f Format) (*Sheet, error) {
	var (
		s   Sheet
		err error
	)
	switch f {
	case JSON:
		err = json.Unmarshal(data, &s)
	case YAML:
		err = yaml.Unmarshal(data, &s)
	case TOML:
		err = toml.Unmarshal(data, &s)
	case CBOR:
		err = cbor.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: decode %s: %w", f, err)
	}
	if s.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}

// WriteFile writes s in the format implied by the file extension.
func WriteFile(path string, s *Sheet) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(s, f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadFile(path string) (*Sheet, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: %w", err)
	}
	return Unmarshal(data, f)
}

// Outcome reports what Apply did to the records.
type Outcome struct {
	Changed  int
	Reverted int          // records whose sheet text equals the original
	Unknown  []record.Key // entries without a matching record
	Stale    []record.Key // entries whose original differs from the record
}

// Apply copies sheet texts onto records matched by path and constant index.
// A record is marked changed only when the text differs from its value;
// otherwise any earlier edit is reverted. Stale entries are still applied.
func Apply(s *Sheet, records []*record.String) Outcome {
	var out Outcome
	idx := record.Index(records)
	for i := range s.Entries {
		e := &s.Entries[i]
		r, ok := idx[e.Key()]
		if !ok {
			out.Unknown = append(out.Unknown, e.Key())
			continue
		}
		if e.Original != r.Value {
			out.Stale = append(out.Stale, e.Key())
		}
		if e.Text == r.Value {
			if r.Changed {
				out.Reverted++
			}
			r.Revert()
			continue
		}
		r.Edit(e.Text)
		out.Changed++
	}
	return out
}

// Records rebuilds records from the sheet alone, enough to drive the patcher
// without rescanning. Entries whose text differs from the original are
// marked changed.
func (s *Sheet) Records() []*record.String {
	out := make([]*record.String, 0, len(s.Entries))
	for _, e := range s.Entries {
		r := &record.String{
			Path:      e.Path,
			ClassName: e.Class,
			Index:     e.Index,
			Value:     e.Original,
			Context:   record.Context(e.Context),
			Line:      e.Line,
			Shared:    e.Shared,
		}
		r.MethodName, r.MethodDescriptor = splitMethod(e.Method)
		if e.Text != e.Original {
			r.Edit(e.Text)
		}
		out = append(out, r)
	}
	return out
}

func splitMethod(id string) (name, desc string) {
	if i := strings.IndexByte(id, '('); i >= 0 {
		return id[:i], id[i:]
	}
	return id, ""
}
