package bytecode

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Annotator returns an optional inline comment for an instruction. Empty
// string means no annotation.
type Annotator func(in Inst) string

// Switch is a decoded tableswitch or lookupswitch.
type Switch struct {
	Default int     // absolute offset
	Keys    []int32 // match values, in encoding order
	Targets []int   // absolute offsets, parallel to Keys
}

// Switch decodes the jump table of a switch instruction.
func (in Inst) Switch() (Switch, bool) {
	if in.Opcode != TableSwitch && in.Opcode != LookupSwitch {
		return Switch{}, false
	}
	b := in.Operands[padding(in.Offset):]
	s32 := func(i int) int32 { return int32(binary.BigEndian.Uint32(b[i:])) }
	sw := Switch{Default: in.Offset + int(s32(0))}
	if in.Opcode == TableSwitch {
		low, high := s32(4), s32(8)
		for k, i := int64(low), 12; k <= int64(high); k, i = k+1, i+4 {
			sw.Keys = append(sw.Keys, int32(k))
			sw.Targets = append(sw.Targets, in.Offset+int(s32(i)))
		}
		return sw, true
	}
	n := int(s32(4))
	for j, i := 0, 8; j < n; j, i = j+1, i+8 {
		sw.Keys = append(sw.Keys, s32(i))
		sw.Targets = append(sw.Targets, in.Offset+int(s32(i+4)))
	}
	return sw, true
}

var arrayTypes = map[byte]string{
	4: "boolean", 5: "char", 6: "float", 7: "double",
	8: "byte", 9: "short", 10: "int", 11: "long",
}

// OperandText renders the operands the way javap does, without resolving
// constant pool references.
func (in Inst) OperandText() string {
	info, _ := in.Opcode.Info()
	o := in.Operands
	switch info.Layout {
	case LayoutLocal:
		return strconv.Itoa(int(o[0]))
	case LayoutByte:
		return strconv.Itoa(int(int8(o[0])))
	case LayoutShort:
		return strconv.Itoa(int(int16(binary.BigEndian.Uint16(o))))
	case LayoutCP1, LayoutCP2, LayoutInvokeDynamic:
		idx, _ := in.CPIndex()
		return "#" + strconv.Itoa(int(idx))
	case LayoutIinc:
		return fmt.Sprintf("%d, %d", o[0], int8(o[1]))
	case LayoutBranch, LayoutBranchWide:
		target, _ := in.BranchTarget()
		return strconv.Itoa(target)
	case LayoutInvokeInterface:
		idx, _ := in.CPIndex()
		return fmt.Sprintf("#%d, %d", idx, o[2])
	case LayoutNewArray:
		if name, ok := arrayTypes[o[0]]; ok {
			return name
		}
		return strconv.Itoa(int(o[0]))
	case LayoutMultiANewArray:
		idx, _ := in.CPIndex()
		return fmt.Sprintf("#%d, %d", idx, o[2])
	case LayoutWide:
		inner, _ := in.WideOpcode()
		local, _ := in.Local()
		if inner == Iinc {
			return fmt.Sprintf("%s %d, %d", inner, local, int16(binary.BigEndian.Uint16(o[3:])))
		}
		return fmt.Sprintf("%s %d", inner, local)
	case LayoutTableSwitch, LayoutLookupSwitch:
		sw, _ := in.Switch()
		var b strings.Builder
		b.WriteString("{")
		for i, k := range sw.Keys {
			fmt.Fprintf(&b, " %d: %d;", k, sw.Targets[i])
		}
		fmt.Fprintf(&b, " default: %d }", sw.Default)
		return b.String()
	}
	return ""
}

// String renders "mnemonic operands".
func (in Inst) String() string {
	if ops := in.OperandText(); ops != "" {
		return in.Opcode.String() + " " + ops
	}
	return in.Opcode.String()
}

const rawColumn = 6 // instruction bytes shown before eliding

// Format renders instructions as stable text output, one per line:
// <offset>  <hex bytes>  <instruction>  ; <comment>
// Annotators are checked in order; the first non-empty result is used.
func Format(insts []Inst, annotators ...Annotator) string {
	var b strings.Builder
	for _, in := range insts {
		fmt.Fprintf(&b, "%6d  ", in.Offset)

		raw := in.Bytes()
		var hex strings.Builder
		for i, c := range raw {
			if i == rawColumn {
				hex.WriteString("..")
				break
			}
			if i > 0 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02x", c)
		}
		fmt.Fprintf(&b, "%-20s  ", hex.String())

		b.WriteString(in.String())
		for _, ann := range annotators {
			if s := ann(in); s != "" {
				fmt.Fprintf(&b, "  ; %s", s)
				break
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
