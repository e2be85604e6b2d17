// Package usage builds lattice graphs of where string literals go: which
// methods load them, which APIs receive them, and how they sit in a method's
// control flow.
package usage

import (
	"fmt"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"jarstrings/internal/bytecode"
	"jarstrings/internal/classfile"
	"jarstrings/internal/record"
)

// maxLabel bounds quoted literal labels.
const maxLabel = 50

// Label quotes a literal for use as a graph node, truncated to maxLabel.
func Label(s string) string {
	if r := []rune(s); len(r) > maxLabel {
		s = string(r[:maxLabel-3]) + "..."
	}
	return fmt.Sprintf("%q", s)
}

// Options selects which records become graph edges.
type Options struct {
	// SinksOnly keeps only literals passed straight to an interface call.
	SinksOnly bool
	// KnownOnly keeps only literals with a recognized context.
	KnownOnly bool
}

// Graph links each method to the literals it loads and each literal to the
// interface method receiving it. Methods become nodes even when all their
// edges are filtered out.
func Graph(records []*record.String, opts Options) *lattice.Graph {
	g := &lattice.Graph{}
	seen := map[string]bool{}
	for _, r := range records {
		method := r.MethodID()
		if !seen[method] {
			seen[method] = true
			g.Nodes = append(g.Nodes, method)
		}
		if opts.SinksOnly && r.Sink == "" {
			continue
		}
		if opts.KnownOnly && r.Context == record.ContextNone {
			continue
		}
		lit := Label(r.Text())
		g.Edges = append(g.Edges, lattice.Edge{Caller: method, Callee: lit})
		if r.Sink != "" {
			g.Edges = append(g.Edges, lattice.Edge{Caller: lit, Callee: r.Sink})
		}
	}
	g.Dedup()
	return g
}

// DOT renders a usage graph.
func DOT(g *lattice.Graph, title string) string { return render.DOT(g, title) }

// MethodCFG builds the control flow graph of one method. Each block lists,
// in instruction order, the methods it invokes and the string literals it
// loads. It returns nil for methods without code.
func MethodCFG(cf *classfile.ClassFile, m *classfile.Member) (*lattice.FuncCFG, error) {
	cp := cf.ConstantPool
	code, err := m.Code(cp)
	if err != nil || code == nil {
		return nil, err
	}
	insts, err := bytecode.Decode(code.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("usage: %s%s: %w", m.Name(cp), m.Descriptor(cp), err)
	}
	var handlers []int
	for _, h := range code.ExceptionTable {
		handlers = append(handlers, int(h.HandlerPC))
	}
	dcfg := bytecode.BuildCFG(insts, handlers...)

	lcfg := &lattice.FuncCFG{Name: cf.Name() + "." + m.Name(cp) + m.Descriptor(cp)}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{ID: db.ID, Start: db.Start, End: db.End, Term: db.Term}
		for _, s := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: s.BlockID, Cond: s.Cond})
		}
		for i := db.Start; i < db.End; i++ {
			if callee := siteLabel(cf, dcfg.Insts[i]); callee != "" {
				lb.Calls = append(lb.Calls, lattice.CallSite{Offset: i, Callee: callee})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg, nil
}

func siteLabel(cf *classfile.ClassFile, in bytecode.Inst) string {
	idx, ok := in.CPIndex()
	if !ok {
		return ""
	}
	switch {
	case in.Opcode == bytecode.Ldc || in.Opcode == bytecode.LdcW:
		if v, ok := cf.StringValue(idx); ok {
			return Label(v)
		}
	case in.Opcode.IsInvoke() && in.Opcode != bytecode.InvokeDynamic:
		if ref, ok := cf.ConstantPool.MemberRef(idx); ok {
			return ref.Class + "." + ref.Name
		}
	}
	return ""
}

// ClassCFG builds the graphs of every method of a class that loads at least
// one string literal, or of every method with code when all is set.
func ClassCFG(cf *classfile.ClassFile, all bool) (*lattice.CFGGraph, error) {
	cg := &lattice.CFGGraph{}
	for _, m := range cf.Methods {
		f, err := MethodCFG(cf, m)
		if err != nil {
			return nil, err
		}
		if f == nil || (!all && !loadsString(f)) {
			continue
		}
		cg.Funcs = append(cg.Funcs, f)
	}
	return cg, nil
}

func loadsString(f *lattice.FuncCFG) bool {
	for _, b := range f.Blocks {
		for _, c := range b.Calls {
			if len(c.Callee) > 0 && c.Callee[0] == '"' {
				return true
			}
		}
	}
	return false
}

// DOTCFG renders method graphs.
func DOTCFG(cg *lattice.CFGGraph, title string) string { return render.DOTCFG(cg, title) }
