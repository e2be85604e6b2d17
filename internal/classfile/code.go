package classfile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"jarstrings/internal/classfmt"
)

// Attribute names the package understands.
const (
	AttrCode            = "Code"
	AttrLineNumberTable = "LineNumberTable"
	AttrSourceFile      = "SourceFile"
	AttrSignature       = "Signature"
)

// ExceptionHandler is one exception_table entry of a Code attribute.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Code is a parsed Code attribute. Sub-attributes stay raw.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ParseCode parses the payload of a Code attribute.
func ParseCode(info []byte) (*Code, error) {
	d := &decoder{s: classfmt.NewStream(info)}
	c := &Code{
		MaxStack:  d.u2("max_stack"),
		MaxLocals: d.u2("max_locals"),
	}
	n := d.u4("code_length")
	if d.err == nil && int64(n) > int64(d.s.Remaining()) {
		d.fail(ErrTruncated, "code_length %d exceeds remaining %d", n, d.s.Remaining())
	}
	c.Bytecode = d.bytes(int(n), "code")

	handlers := d.u2("exception_table_length")
	if d.err == nil && handlers > 0 {
		c.ExceptionTable = make([]ExceptionHandler, handlers)
		for i := range c.ExceptionTable {
			c.ExceptionTable[i] = ExceptionHandler{
				StartPC:   d.u2("start_pc"),
				EndPC:     d.u2("end_pc"),
				HandlerPC: d.u2("handler_pc"),
				CatchType: d.u2("catch_type"),
			}
		}
	}
	c.Attributes = d.attributes("code attribute")

	if d.err != nil {
		return nil, fmt.Errorf("code attribute: %w", d.err)
	}
	if rem := d.s.Remaining(); rem != 0 {
		d.fail(ErrTrailingData, "%d bytes after code attributes", rem)
		return nil, fmt.Errorf("code attribute: %w", d.err)
	}
	return c, nil
}

// Encode serializes the Code attribute payload.
func (c *Code) Encode() ([]byte, error) {
	if uint64(len(c.Bytecode)) > math.MaxUint32 || len(c.ExceptionTable) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: code attribute too large", ErrMalformed)
	}
	w := classfmt.NewWriter(12 + len(c.Bytecode) + 8*len(c.ExceptionTable))
	w.PutU2(c.MaxStack)
	w.PutU2(c.MaxLocals)
	w.PutU4(uint32(len(c.Bytecode)))
	w.PutBytes(c.Bytecode)
	w.PutU2(uint16(len(c.ExceptionTable)))
	for _, h := range c.ExceptionTable {
		w.PutU2(h.StartPC)
		w.PutU2(h.EndPC)
		w.PutU2(h.HandlerPC)
		w.PutU2(h.CatchType)
	}
	if err := encodeAttributes(w, c.Attributes); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// LineNumber maps the instruction at StartPC (and those after it, up to the
// next entry) to a source line.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LineNumbers merges every LineNumberTable sub-attribute of c, sorted by
// StartPC. It returns nil when the method was compiled without line info.
func (c *Code) LineNumbers(cp ConstantPool) ([]LineNumber, error) {
	var out []LineNumber
	for i := range c.Attributes {
		a := &c.Attributes[i]
		if a.Name(cp) != AttrLineNumberTable {
			continue
		}
		s := classfmt.NewStream(a.Info)
		n, err := s.ReadU2()
		if err != nil {
			return nil, lineTableErr(err)
		}
		for j := 0; j < int(n); j++ {
			pc, err := s.ReadU2()
			if err != nil {
				return nil, lineTableErr(err)
			}
			line, err := s.ReadU2()
			if err != nil {
				return nil, lineTableErr(err)
			}
			out = append(out, LineNumber{StartPC: pc, Line: line})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartPC < out[j].StartPC })
	return out, nil
}

func lineTableErr(err error) error {
	if errors.Is(err, classfmt.ErrStreamEOF) {
		err = ErrTruncated
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformed, AttrLineNumberTable, err)
}

// EncodeLineNumbers builds a LineNumberTable payload.
func EncodeLineNumbers(table []LineNumber) []byte {
	w := classfmt.NewWriter(2 + 4*len(table))
	w.PutU2(uint16(len(table)))
	for _, ln := range table {
		w.PutU2(ln.StartPC)
		w.PutU2(ln.Line)
	}
	return w.Bytes()
}

// LineAt returns the source line of the instruction at offset: the line of
// the last entry whose StartPC is not after offset. table must be sorted by
// StartPC. It returns 0 when no entry covers offset.
func LineAt(table []LineNumber, offset int) int {
	i := sort.Search(len(table), func(i int) bool { return int(table[i].StartPC) > offset })
	if i == 0 {
		return 0
	}
	return int(table[i-1].Line)
}
