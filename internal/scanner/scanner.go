// Package scanner finds the string literals loaded by the methods of every
// class in an archive.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"jarstrings/internal/bytecode"
	"jarstrings/internal/classfile"
	"jarstrings/internal/classfmt"
	"jarstrings/internal/record"
)

// DefaultProgressInterval is the number of entries between progress events.
const DefaultProgressInterval = 100

// Archive is the part of an archive the scanner reads.
type Archive interface {
	Entries(suffix string) []string
	Read(ctx context.Context, name string) ([]byte, error)
}

// Result is the outcome of an archive scan. Groups are in archive order and
// only include classes that yielded at least one literal.
type Result struct {
	Groups  []*record.Group
	Diags   []record.Diag
	Entries int // class entries examined
}

// Strings flattens every group.
func (r *Result) Strings() []*record.String { return record.Flatten(r.Groups) }

type Option func(*Scanner)

func WithLogger(l *slog.Logger) Option { return func(s *Scanner) { s.log = l } }

// WithWorkers bounds the number of entries scanned concurrently; 0 means one
// per CPU.
func WithWorkers(n int) Option { return func(s *Scanner) { s.workers = n } }

func WithProgressInterval(n int) Option { return func(s *Scanner) { s.interval = n } }

// WithMode selects how malformed classes are handled. ModeBestEffort (the
// default) records a diagnostic and moves on; ModeStrict aborts the scan.
func WithMode(m classfmt.Mode) Option { return func(s *Scanner) { s.mode = m } }

// Scanner extracts string literals. Observers must be registered before a
// scan starts.
type Scanner struct {
	log        *slog.Logger
	workers    int
	interval   int
	mode       classfmt.Mode
	onProgress []func(n int)
	onFinish   []func(*Result)
}

func New(opts ...Option) *Scanner {
	s := &Scanner{
		log:      slog.New(slog.DiscardHandler),
		interval: DefaultProgressInterval,
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval < 1 {
		s.interval = DefaultProgressInterval
	}
	return s
}

// OnProgress registers fn to receive the number of entries processed so far,
// after every full batch. Calls are serialized and counts increase.
func (s *Scanner) OnProgress(fn func(n int)) { s.onProgress = append(s.onProgress, fn) }

// OnFinish registers fn to receive the complete result of each scan.
func (s *Scanner) OnFinish(fn func(*Result)) { s.onFinish = append(s.onFinish, fn) }

// SearchInArchive scans every .class entry. A class that fails to parse is
// logged and reported in Result.Diags; a failure to read the archive aborts
// the scan.
func (s *Scanner) SearchInArchive(ctx context.Context, a Archive) (*Result, error) {
	names := a.Entries(".class")
	groups := make([]*record.Group, len(names))
	errs := make([]error, len(names))

	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	processed := 0
	tick := func() {
		mu.Lock()
		defer mu.Unlock()
		processed++
		if processed%s.interval == 0 {
			s.log.Debug("scan progress", "processed", processed, "total", len(names))
			for _, fn := range s.onProgress {
				fn(processed)
			}
		}
	}

	for i, name := range names {
		g.Go(func() error {
			data, err := a.Read(gctx, name)
			if err != nil {
				return err
			}
			grp, err := s.SearchInClass(name, data)
			if err != nil {
				if s.mode == classfmt.ModeStrict {
					return fmt.Errorf("scanner: %s: %w", name, err)
				}
				s.log.Warn("skipping class", "path", name, "err", err)
				errs[i] = err
			}
			groups[i] = grp
			tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Entries: len(names)}
	for i, grp := range groups {
		if errs[i] != nil {
			res.Diags = append(res.Diags, record.Diag{Path: names[i], Err: errs[i]})
			continue
		}
		if grp != nil {
			res.Groups = append(res.Groups, grp)
		}
	}
	s.log.Info("scan finished", "entries", len(names), "classes", len(res.Groups),
		"strings", len(res.Strings()), "skipped", len(res.Diags))
	for _, fn := range s.onFinish {
		fn(res)
	}
	return res, nil
}

// SearchInClass scans one class file. It returns nil, nil when the class
// loads no string literals.
func (s *Scanner) SearchInClass(path string, data []byte) (*record.Group, error) {
	cf, err := classfile.Decode(data)
	if err != nil {
		return nil, err
	}
	return searchClass(path, cf)
}

func searchClass(path string, cf *classfile.ClassFile) (*record.Group, error) {
	cp := cf.ConstantPool
	className := cf.Name()
	seen := make(map[uint16]bool)
	var refs map[uint16]int
	grp := &record.Group{Path: path, ClassName: className, Class: cf}

	for _, m := range cf.Methods {
		if m.AccessFlags.IsAbstract() {
			continue
		}
		code, err := m.Code(cp)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name(cp), m.Descriptor(cp), err)
		}
		if code == nil {
			continue
		}
		insts, err := bytecode.Decode(code.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("%w: method %s%s: %w", classfile.ErrMalformed, m.Name(cp), m.Descriptor(cp), err)
		}

		var (
			lines     []classfile.LineNumber
			linesRead bool
		)
		ms := record.MethodStrings{Name: m.Name(cp), Descriptor: m.Descriptor(cp)}
		for i, in := range insts {
			if in.Opcode != bytecode.Ldc && in.Opcode != bytecode.LdcW {
				continue
			}
			idx, _ := in.CPIndex()
			if seen[idx] {
				continue
			}
			value, ok := cf.StringValue(idx)
			if !ok {
				continue
			}
			seen[idx] = true

			if !linesRead {
				if lines, err = code.LineNumbers(cp); err != nil {
					return nil, fmt.Errorf("method %s%s: %w", ms.Name, ms.Descriptor, err)
				}
				linesRead = true
			}
			if refs == nil {
				refs = cf.Utf8RefCounts()
			}
			usage, sig := resolveContext(cp, insts, i)
			rec := &record.String{
				Path:             path,
				Class:            cf,
				Method:           m,
				ClassName:        className,
				MethodName:       ms.Name,
				MethodDescriptor: ms.Descriptor,
				Index:            idx,
				Value:            value,
				Context:          usage,
				Offset:           in.Offset,
				InstIndex:        in.Index,
				Line:             classfile.LineAt(lines, in.Offset),
				Shared:           classfile.SharedIn(cp, refs, idx),
			}
			if sig != (Signature{}) {
				rec.Sink = sig.String()
			}
			ms.Strings = append(ms.Strings, rec)
		}
		if len(ms.Strings) > 0 {
			grp.Methods = append(grp.Methods, ms)
		}
	}
	if len(grp.Methods) == 0 {
		return nil, nil
	}
	return grp, nil
}
