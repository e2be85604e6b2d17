// Package bytecode decodes the instruction stream of a JVM Code attribute.
//
// Decoding is linear: instructions are read in order from offset 0 without
// following branches, which is exact for well-formed code since every byte
// of a code array belongs to exactly one instruction.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"jarstrings/internal/classfmt"
)

var (
	ErrUnknownOpcode = errors.New("bytecode: unknown opcode")
	ErrTruncated     = errors.New("bytecode: truncated instruction")
	ErrBadOperand    = errors.New("bytecode: invalid operand")
)

// Inst is one decoded instruction.
type Inst struct {
	Index    int    // position in the decoded sequence
	Offset   int    // byte offset in the code array
	Opcode   Opcode // for wide forms this is Wide; see WideOpcode
	Operands []byte // raw operand bytes, switch padding included
}

// Size is the encoded length in bytes.
func (in Inst) Size() int { return 1 + len(in.Operands) }

// Bytes returns the full encoding of the instruction.
func (in Inst) Bytes() []byte {
	return append([]byte{byte(in.Opcode)}, in.Operands...)
}

// CPIndex returns the constant pool index the instruction refers to.
func (in Inst) CPIndex() (uint16, bool) {
	info, _ := in.Opcode.Info()
	switch info.Layout {
	case LayoutCP1:
		return uint16(in.Operands[0]), true
	case LayoutCP2, LayoutInvokeInterface, LayoutInvokeDynamic, LayoutMultiANewArray:
		return binary.BigEndian.Uint16(in.Operands), true
	}
	return 0, false
}

// WideOpcode returns the opcode modified by a wide prefix.
func (in Inst) WideOpcode() (Opcode, bool) {
	if in.Opcode != Wide || len(in.Operands) == 0 {
		return 0, false
	}
	return Opcode(in.Operands[0]), true
}

// Local returns the local variable index of a load, store, iinc or ret,
// including wide forms.
func (in Inst) Local() (int, bool) {
	info, _ := in.Opcode.Info()
	switch info.Layout {
	case LayoutLocal, LayoutIinc:
		return int(in.Operands[0]), true
	case LayoutWide:
		return int(binary.BigEndian.Uint16(in.Operands[1:3])), true
	}
	return 0, false
}

// BranchTarget returns the absolute code offset of a jump.
func (in Inst) BranchTarget() (int, bool) {
	info, _ := in.Opcode.Info()
	switch info.Layout {
	case LayoutBranch:
		return in.Offset + int(int16(binary.BigEndian.Uint16(in.Operands))), true
	case LayoutBranchWide:
		return in.Offset + int(int32(binary.BigEndian.Uint32(in.Operands))), true
	}
	return 0, false
}

// Reader decodes instructions one at a time.
type Reader struct {
	code  []byte
	pos   int
	index int
}

func NewReader(code []byte) *Reader { return &Reader{code: code} }

// Reset rewinds to the first instruction.
func (r *Reader) Reset() {
	r.pos = 0
	r.index = 0
}

// Offset is the byte offset of the next instruction.
func (r *Reader) Offset() int { return r.pos }

// Next decodes the next instruction. It returns io.EOF after the last one.
// After any other error the reader does not advance.
func (r *Reader) Next() (Inst, error) {
	if r.pos >= len(r.code) {
		return Inst{}, io.EOF
	}
	off := r.pos
	op := Opcode(r.code[off])
	info, ok := op.Info()
	if !ok {
		return Inst{}, fmt.Errorf("%w 0x%02x at offset %d", ErrUnknownOpcode, uint8(op), off)
	}
	n, err := r.operandLen(off, info.Layout)
	if err != nil {
		return Inst{}, fmt.Errorf("%s at offset %d: %w", op, off, err)
	}
	if off+1+n > len(r.code) {
		return Inst{}, fmt.Errorf("%s at offset %d: %w: need %d operand bytes, have %d",
			op, off, ErrTruncated, n, len(r.code)-off-1)
	}
	in := Inst{
		Index:    r.index,
		Offset:   off,
		Opcode:   op,
		Operands: r.code[off+1 : off+1+n],
	}
	r.pos = off + 1 + n
	r.index++
	return in, nil
}

// operandLen computes the operand length of the instruction at off.
func (r *Reader) operandLen(off int, layout Layout) (int, error) {
	if n := layout.Size(); n >= 0 {
		return n, nil
	}
	switch layout {
	case LayoutWide:
		if off+1 >= len(r.code) {
			return 0, ErrTruncated
		}
		inner := Opcode(r.code[off+1])
		if inner == Iinc {
			return 5, nil
		}
		info, ok := inner.Info()
		if !ok || info.Layout != LayoutLocal {
			return 0, fmt.Errorf("%w: wide %s", ErrBadOperand, inner)
		}
		return 3, nil

	case LayoutTableSwitch:
		pad := padding(off)
		base := off + 1 + pad
		if base+12 > len(r.code) {
			return 0, ErrTruncated
		}
		low := int32(binary.BigEndian.Uint32(r.code[base+4:]))
		high := int32(binary.BigEndian.Uint32(r.code[base+8:]))
		if high < low {
			return 0, fmt.Errorf("%w: tableswitch low %d > high %d", ErrBadOperand, low, high)
		}
		count := int64(high) - int64(low) + 1
		total := int64(pad) + 12 + 4*count
		if int64(off)+1+total > int64(len(r.code)) {
			return 0, ErrTruncated
		}
		return int(total), nil

	case LayoutLookupSwitch:
		pad := padding(off)
		base := off + 1 + pad
		if base+8 > len(r.code) {
			return 0, ErrTruncated
		}
		npairs := int32(binary.BigEndian.Uint32(r.code[base+4:]))
		if npairs < 0 {
			return 0, fmt.Errorf("%w: lookupswitch npairs %d", ErrBadOperand, npairs)
		}
		total := int64(pad) + 8 + 8*int64(npairs)
		if int64(off)+1+total > int64(len(r.code)) {
			return 0, ErrTruncated
		}
		return int(total), nil
	}
	return 0, fmt.Errorf("%w: layout %d", ErrBadOperand, layout)
}

// padding is the number of bytes after a switch opcode at off that align
// the operands to a multiple of four from the start of the code array.
func padding(off int) int {
	return (4 - (off+1)%4) % 4
}

// Decode decodes the whole code array. On error the instructions decoded
// before the failure are returned with it.
func Decode(code []byte) ([]Inst, error) {
	r := NewReader(code)
	var out []Inst
	for {
		in, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, in)
	}
}

// DecodeBestEffort decodes up to the first bad instruction and records the
// failure in diags at its offset.
func DecodeBestEffort(code []byte, diags *classfmt.Diags) []Inst {
	insts, err := Decode(code)
	if err == nil {
		return insts
	}
	off := 0
	if n := len(insts); n > 0 {
		off = insts[n-1].Offset + insts[n-1].Size()
	}
	kind := classfmt.DiagInvalid
	switch {
	case errors.Is(err, ErrTruncated):
		kind = classfmt.DiagTruncated
	case errors.Is(err, ErrUnknownOpcode):
		kind = classfmt.DiagUnknownTag
	}
	diags.Add(uint64(off), kind, err.Error())
	return insts
}
