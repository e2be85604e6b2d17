// Package patcher writes edited string literals back into the classes of an
// archive.
package patcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"jarstrings/internal/classfile"
	"jarstrings/internal/jar"
	"jarstrings/internal/record"
)

// ErrSharedText is returned, when shared edits are refused, for an edit to a
// literal whose text is also a member name, descriptor or attribute name of
// the same class.
var ErrSharedText = errors.New("patcher: literal text is shared with other class structures")

// PathError records the archive entry an edit failed on.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *PathError) Unwrap() error { return e.Err }

// Archive is the part of an archive the patcher needs.
type Archive interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(name string, data []byte) error
	Package(method uint16) ([]byte, error)
}

type Option func(*Patcher)

func WithLogger(l *slog.Logger) Option { return func(p *Patcher) { p.log = l } }

// WithWorkers bounds how many records are checked, and how many paths
// rewritten, at once; 0 means one per CPU.
func WithWorkers(n int) Option { return func(p *Patcher) { p.workers = n } }

// WithMethod sets the compression method for rewritten entries, jar.Deflate
// by default.
func WithMethod(m uint16) Option { return func(p *Patcher) { p.method = m } }

// WithRefuseShared makes edits to literals whose Utf8 slot has other users
// fail with ErrSharedText. By default they are applied, renaming the other
// users too, and logged.
func WithRefuseShared(on bool) Option { return func(p *Patcher) { p.refuseShared = on } }

type Patcher struct {
	log          *slog.Logger
	workers      int
	method       uint16
	refuseShared bool
}

func New(opts ...Option) *Patcher {
	p := &Patcher{log: slog.New(slog.DiscardHandler), method: jar.Deflate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Report summarizes an Apply call.
type Report struct {
	Classes []string // entries rewritten, sorted
	Edits   int      // records applied
	Shared  int      // applied edits whose Utf8 slot has other users
}

// ApplyEdits applies the changed records and returns the packaged archive.
// Records that are not changed are ignored. Nothing is packaged when any
// edit fails.
func (p *Patcher) ApplyEdits(ctx context.Context, a Archive, records []*record.String) ([]byte, error) {
	if _, err := p.Apply(ctx, a, records); err != nil {
		return nil, err
	}
	return a.Package(p.method)
}

// loaded is a class decoded at most once per Apply call, however many
// records ask for its path. ready is closed once cf or err is set.
type loaded struct {
	ready chan struct{}
	cf    *classfile.ClassFile
	refs  map[uint16]int
	err   error
}

// Apply rewrites the changed records into a without packaging it.
//
// Every record is checked on its own goroutine against the decoded class of
// its path; records of one path share a single decode. Once all records
// pass, each path applies its edits in record order to that class, encodes
// it once and writes it back. Nothing is written when any check fails.
func (p *Patcher) Apply(ctx context.Context, a Archive, records []*record.String) (*Report, error) {
	changed := record.Changed(records)
	if len(changed) == 0 {
		p.log.Info("no edits to apply")
		return &Report{}, nil
	}
	paths, byPath := groupByPath(changed)

	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cache := xsync.NewMapOf[string, *loaded]()

	var shared atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, r := range changed {
		g.Go(func() error {
			c, err := p.load(gctx, a, cache, r.Path)
			if err != nil {
				return err
			}
			isShared, err := p.check(c, r)
			if isShared {
				shared.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		rep = &Report{Shared: int(shared.Load())}
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		edits := byPath[path]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, _ := cache.Load(path)
			for _, r := range edits {
				if err := c.cf.SetString(r.Index, r.Edited); err != nil {
					return &PathError{Path: path, Err: err}
				}
			}
			out, err := c.cf.Encode()
			if err != nil {
				return &PathError{Path: path, Err: err}
			}
			if err := a.Write(path, out); err != nil {
				return &PathError{Path: path, Err: err}
			}
			p.log.Debug("class rewritten", "path", path, "edits", len(edits), "size", len(out))

			mu.Lock()
			rep.Classes = append(rep.Classes, path)
			rep.Edits += len(edits)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(rep.Classes)
	p.log.Info("edits applied", "classes", len(rep.Classes), "edits", rep.Edits, "shared", rep.Shared)
	return rep, nil
}

// load returns the decoded class of path. The first caller for a path
// decodes it; concurrent callers wait for that result.
func (p *Patcher) load(ctx context.Context, a Archive, cache *xsync.MapOf[string, *loaded], path string) (*loaded, error) {
	c, found := cache.LoadOrCompute(path, func() *loaded {
		return &loaded{ready: make(chan struct{})}
	})
	if !found {
		c.cf, c.err = decode(ctx, a, path)
		if c.err == nil {
			c.refs = c.cf.Utf8RefCounts()
		}
		close(c.ready)
	}
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c, c.err
}

func decode(ctx context.Context, a Archive, path string) (*classfile.ClassFile, error) {
	data, err := a.Read(ctx, path)
	if err != nil {
		return nil, &PathError{Path: path, Err: err}
	}
	cf, err := classfile.Decode(data)
	if err != nil {
		return nil, &PathError{Path: path, Err: err}
	}
	return cf, nil
}

// check resolves the record's slot without modifying the class. It reports
// whether the slot's Utf8 entry has other users.
func (p *Patcher) check(c *loaded, r *record.String) (bool, error) {
	if _, err := c.cf.StringUtf8(r.Index); err != nil {
		return false, &PathError{Path: r.Path, Err: err}
	}
	if !classfile.SharedIn(c.cf.ConstantPool, c.refs, r.Index) {
		return false, nil
	}
	if p.refuseShared {
		return true, &PathError{Path: r.Path, Err: fmt.Errorf("%w: #%d %q", ErrSharedText, r.Index, r.Value)}
	}
	p.log.Warn("edited literal shares its text with other class structures",
		"path", r.Path, "index", r.Index, "value", r.Value)
	return true, nil
}

// groupByPath splits records by entry, keeping paths in order of first
// appearance and records in their original order.
func groupByPath(records []*record.String) ([]string, map[string][]*record.String) {
	var paths []string
	byPath := map[string][]*record.String{}
	for _, r := range records {
		if _, ok := byPath[r.Path]; !ok {
			paths = append(paths, r.Path)
		}
		byPath[r.Path] = append(byPath[r.Path], r)
	}
	return paths, byPath
}
