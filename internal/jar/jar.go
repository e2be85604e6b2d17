// Package jar reads and rewrites jar (zip) archives in memory.
package jar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	ErrArchiveIO     = errors.New("jar: archive I/O failure")
	ErrEntryNotFound = errors.New("jar: entry not found")
)

// Compression methods accepted by Package.
const (
	Store   = zip.Store
	Deflate = zip.Deflate
)

type entry struct {
	file *zip.File // nil for entries added by Write
	name string
	data []byte // replacement content; nil means unchanged
}

// Archive is an opened jar. Read and Write are safe for concurrent use.
type Archive struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
	comment string
	level   int
}

// New returns an empty archive; entries are added with Write.
func New() *Archive {
	return &Archive{byName: map[string]*entry{}, level: flate.DefaultCompression}
}

// Open reads the archive at path into memory.
func Open(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	return FromBytes(data)
}

// FromBytes opens an archive held in memory. data must not be modified
// while the archive is in use.
func FromBytes(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	a := &Archive{
		byName:  make(map[string]*entry, len(zr.File)),
		comment: zr.Comment,
		level:   flate.DefaultCompression,
	}
	for _, f := range zr.File {
		e := &entry{file: f, name: f.Name}
		a.entries = append(a.entries, e)
		if _, dup := a.byName[f.Name]; !dup {
			a.byName[f.Name] = e
		}
	}
	return a, nil
}

// SetCompressionLevel sets the flate level used for deflated entries
// (flate.HuffmanOnly through flate.BestCompression).
func (a *Archive) SetCompressionLevel(level int) error {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return fmt.Errorf("jar: invalid compression level %d", level)
	}
	a.level = level
	return nil
}

// Len is the number of entries, directories included.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Entries lists the names of file entries ending in suffix, in archive order.
// An empty suffix lists every file entry.
func (a *Archive) Entries(suffix string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for _, e := range a.entries {
		if strings.HasSuffix(e.name, "/") || !strings.HasSuffix(e.name, suffix) {
			continue
		}
		out = append(out, e.name)
	}
	return out
}

// Read returns the current content of an entry, including any replacement
// made by Write.
func (a *Archive) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	e, ok := a.byName[name]
	var data []byte
	if ok && e.data != nil {
		data = bytes.Clone(e.data)
	}
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if data != nil || e.file == nil {
		return data, nil
	}

	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrArchiveIO, name, err)
	}
	defer rc.Close()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrArchiveIO, name, err)
	}
	return data, nil
}

// Write replaces the content of an entry, or appends a new one.
func (a *Archive) Write(name string, data []byte) error {
	if name == "" || strings.HasSuffix(name, "/") {
		return fmt.Errorf("jar: invalid entry name %q", name)
	}
	if data == nil {
		data = []byte{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.byName[name]; ok {
		e.data = data
		return nil
	}
	e := &entry{name: name, data: data}
	a.entries = append(a.entries, e)
	a.byName[name] = e
	return nil
}

// Modified lists entries replaced or added by Write.
func (a *Archive) Modified() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for _, e := range a.entries {
		if e.data != nil {
			out = append(out, e.name)
		}
	}
	return out
}

// Package writes the archive. Entries changed by Write are compressed with
// method; untouched entries already stored with method are copied without
// recompression, the rest are recompressed. Entry order, names, comments,
// extra fields and timestamps are kept.
func (a *Archive) Package(method uint16) ([]byte, error) {
	if method != Store && method != Deflate {
		return nil, fmt.Errorf("jar: unsupported compression method %d", method)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := a.level
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	for _, e := range a.entries {
		if err := a.writeEntry(zw, e, method); err != nil {
			return nil, err
		}
	}
	if a.comment != "" {
		if err := zw.SetComment(a.comment); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArchiveIO, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	return buf.Bytes(), nil
}

func (a *Archive) writeEntry(zw *zip.Writer, e *entry, method uint16) error {
	if e.file != nil && e.data == nil && (e.file.Method == method || strings.HasSuffix(e.name, "/")) {
		if err := zw.Copy(e.file); err != nil {
			return fmt.Errorf("%w: copy %s: %w", ErrArchiveIO, e.name, err)
		}
		return nil
	}

	var h zip.FileHeader
	data := e.data
	if e.file != nil {
		h = e.file.FileHeader
		// A zero Modified keeps the MS-DOS time fields and the original
		// extra block instead of appending a second timestamp.
		h.Modified = time.Time{}
		if data == nil {
			rc, err := e.file.Open()
			if err != nil {
				return fmt.Errorf("%w: open %s: %w", ErrArchiveIO, e.name, err)
			}
			data, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("%w: read %s: %w", ErrArchiveIO, e.name, err)
			}
		}
	} else {
		h.Name = e.name
		h.Modified = time.Now()
	}
	h.Method = method

	w, err := zw.CreateHeader(&h)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrArchiveIO, e.name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrArchiveIO, e.name, err)
	}
	return nil
}

// Save packages the archive and replaces the file at path atomically.
func (a *Archive) Save(path string, method uint16) error {
	data, err := a.Package(method)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteFile writes data to path through a temporary file in the same
// directory, so readers never see a partial archive.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	return nil
}
