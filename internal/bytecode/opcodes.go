package bytecode

import "fmt"

// Opcode is a JVM instruction opcode.
type Opcode uint8

// Opcodes the rest of the module refers to by name.
const (
	Nop             Opcode = 0x00
	Bipush          Opcode = 0x10
	Sipush          Opcode = 0x11
	Ldc             Opcode = 0x12
	LdcW            Opcode = 0x13
	Ldc2W           Opcode = 0x14
	Iinc            Opcode = 0x84
	Goto            Opcode = 0xa7
	TableSwitch     Opcode = 0xaa
	LookupSwitch    Opcode = 0xab
	Return          Opcode = 0xb1
	GetStatic       Opcode = 0xb2
	PutStatic       Opcode = 0xb3
	GetField        Opcode = 0xb4
	PutField        Opcode = 0xb5
	InvokeVirtual   Opcode = 0xb6
	InvokeSpecial   Opcode = 0xb7
	InvokeStatic    Opcode = 0xb8
	InvokeInterface Opcode = 0xb9
	InvokeDynamic   Opcode = 0xba
	New             Opcode = 0xbb
	Wide            Opcode = 0xc4
)

// Layout describes the operand bytes that follow an opcode.
type Layout uint8

const (
	LayoutNone            Layout = iota
	LayoutLocal                  // u1 local variable index
	LayoutByte                   // s1 immediate
	LayoutShort                  // s2 immediate
	LayoutCP1                    // u1 constant pool index
	LayoutCP2                    // u2 constant pool index
	LayoutIinc                   // u1 local, s1 increment
	LayoutBranch                 // s2 relative offset
	LayoutBranchWide             // s4 relative offset
	LayoutTableSwitch            // padded, variable
	LayoutLookupSwitch           // padded, variable
	LayoutInvokeInterface        // u2 index, u1 count, u1 zero
	LayoutInvokeDynamic          // u2 index, u2 zero
	LayoutNewArray               // u1 array type
	LayoutMultiANewArray         // u2 index, u1 dimensions
	LayoutWide                   // u1 opcode, u2 local [, s2 increment]
)

// operandSizes holds the fixed operand length per layout; -1 is variable.
var operandSizes = [...]int{
	LayoutNone:            0,
	LayoutLocal:           1,
	LayoutByte:            1,
	LayoutShort:           2,
	LayoutCP1:             1,
	LayoutCP2:             2,
	LayoutIinc:            2,
	LayoutBranch:          2,
	LayoutBranchWide:      4,
	LayoutTableSwitch:     -1,
	LayoutLookupSwitch:    -1,
	LayoutInvokeInterface: 4,
	LayoutInvokeDynamic:   4,
	LayoutNewArray:        1,
	LayoutMultiANewArray:  3,
	LayoutWide:            -1,
}

// Size returns the fixed operand length, or -1 for variable-length forms.
func (l Layout) Size() int { return operandSizes[l] }

// Info is one opcode table row.
type Info struct {
	Name   string
	Layout Layout
}

// opcodes covers every opcode defined by the JVM (0x00-0xc9). Reserved
// opcodes (breakpoint, impdep1, impdep2) never appear in class files and are
// left undefined.
var opcodes = [256]Info{
	0x00: {"nop", LayoutNone},
	0x01: {"aconst_null", LayoutNone},
	0x02: {"iconst_m1", LayoutNone},
	0x03: {"iconst_0", LayoutNone},
	0x04: {"iconst_1", LayoutNone},
	0x05: {"iconst_2", LayoutNone},
	0x06: {"iconst_3", LayoutNone},
	0x07: {"iconst_4", LayoutNone},
	0x08: {"iconst_5", LayoutNone},
	0x09: {"lconst_0", LayoutNone},
	0x0a: {"lconst_1", LayoutNone},
	0x0b: {"fconst_0", LayoutNone},
	0x0c: {"fconst_1", LayoutNone},
	0x0d: {"fconst_2", LayoutNone},
	0x0e: {"dconst_0", LayoutNone},
	0x0f: {"dconst_1", LayoutNone},
	0x10: {"bipush", LayoutByte},
	0x11: {"sipush", LayoutShort},
	0x12: {"ldc", LayoutCP1},
	0x13: {"ldc_w", LayoutCP2},
	0x14: {"ldc2_w", LayoutCP2},
	0x15: {"iload", LayoutLocal},
	0x16: {"lload", LayoutLocal},
	0x17: {"fload", LayoutLocal},
	0x18: {"dload", LayoutLocal},
	0x19: {"aload", LayoutLocal},
	0x1a: {"iload_0", LayoutNone},
	0x1b: {"iload_1", LayoutNone},
	0x1c: {"iload_2", LayoutNone},
	0x1d: {"iload_3", LayoutNone},
	0x1e: {"lload_0", LayoutNone},
	0x1f: {"lload_1", LayoutNone},
	0x20: {"lload_2", LayoutNone},
	0x21: {"lload_3", LayoutNone},
	0x22: {"fload_0", LayoutNone},
	0x23: {"fload_1", LayoutNone},
	0x24: {"fload_2", LayoutNone},
	0x25: {"fload_3", LayoutNone},
	0x26: {"dload_0", LayoutNone},
	0x27: {"dload_1", LayoutNone},
	0x28: {"dload_2", LayoutNone},
	0x29: {"dload_3", LayoutNone},
	0x2a: {"aload_0", LayoutNone},
	0x2b: {"aload_1", LayoutNone},
	0x2c: {"aload_2", LayoutNone},
	0x2d: {"aload_3", LayoutNone},
	0x2e: {"iaload", LayoutNone},
	0x2f: {"laload", LayoutNone},
	0x30: {"faload", LayoutNone},
	0x31: {"daload", LayoutNone},
	0x32: {"aaload", LayoutNone},
	0x33: {"baload", LayoutNone},
	0x34: {"caload", LayoutNone},
	0x35: {"saload", LayoutNone},
	0x36: {"istore", LayoutLocal},
	0x37: {"lstore", LayoutLocal},
	0x38: {"fstore", LayoutLocal},
	0x39: {"dstore", LayoutLocal},
	0x3a: {"astore", LayoutLocal},
	0x3b: {"istore_0", LayoutNone},
	0x3c: {"istore_1", LayoutNone},
	0x3d: {"istore_2", LayoutNone},
	0x3e: {"istore_3", LayoutNone},
	0x3f: {"lstore_0", LayoutNone},
	0x40: {"lstore_1", LayoutNone},
	0x41: {"lstore_2", LayoutNone},
	0x42: {"lstore_3", LayoutNone},
	0x43: {"fstore_0", LayoutNone},
	0x44: {"fstore_1", LayoutNone},
	0x45: {"fstore_2", LayoutNone},
	0x46: {"fstore_3", LayoutNone},
	0x47: {"dstore_0", LayoutNone},
	0x48: {"dstore_1", LayoutNone},
	0x49: {"dstore_2", LayoutNone},
	0x4a: {"dstore_3", LayoutNone},
	0x4b: {"astore_0", LayoutNone},
	0x4c: {"astore_1", LayoutNone},
	0x4d: {"astore_2", LayoutNone},
	0x4e: {"astore_3", LayoutNone},
	0x4f: {"iastore", LayoutNone},
	0x50: {"lastore", LayoutNone},
	0x51: {"fastore", LayoutNone},
	0x52: {"dastore", LayoutNone},
	0x53: {"aastore", LayoutNone},
	0x54: {"bastore", LayoutNone},
	0x55: {"castore", LayoutNone},
	0x56: {"sastore", LayoutNone},
	0x57: {"pop", LayoutNone},
	0x58: {"pop2", LayoutNone},
	0x59: {"dup", LayoutNone},
	0x5a: {"dup_x1", LayoutNone},
	0x5b: {"dup_x2", LayoutNone},
	0x5c: {"dup2", LayoutNone},
	0x5d: {"dup2_x1", LayoutNone},
	0x5e: {"dup2_x2", LayoutNone},
	0x5f: {"swap", LayoutNone},
	0x60: {"iadd", LayoutNone},
	0x61: {"ladd", LayoutNone},
	0x62: {"fadd", LayoutNone},
	0x63: {"dadd", LayoutNone},
	0x64: {"isub", LayoutNone},
	0x65: {"lsub", LayoutNone},
	0x66: {"fsub", LayoutNone},
	0x67: {"dsub", LayoutNone},
	0x68: {"imul", LayoutNone},
	0x69: {"lmul", LayoutNone},
	0x6a: {"fmul", LayoutNone},
	0x6b: {"dmul", LayoutNone},
	0x6c: {"idiv", LayoutNone},
	0x6d: {"ldiv", LayoutNone},
	0x6e: {"fdiv", LayoutNone},
	0x6f: {"ddiv", LayoutNone},
	0x70: {"irem", LayoutNone},
	0x71: {"lrem", LayoutNone},
	0x72: {"frem", LayoutNone},
	0x73: {"drem", LayoutNone},
	0x74: {"ineg", LayoutNone},
	0x75: {"lneg", LayoutNone},
	0x76: {"fneg", LayoutNone},
	0x77: {"dneg", LayoutNone},
	0x78: {"ishl", LayoutNone},
	0x79: {"lshl", LayoutNone},
	0x7a: {"ishr", LayoutNone},
	0x7b: {"lshr", LayoutNone},
	0x7c: {"iushr", LayoutNone},
	0x7d: {"lushr", LayoutNone},
	0x7e: {"iand", LayoutNone},
	0x7f: {"land", LayoutNone},
	0x80: {"ior", LayoutNone},
	0x81: {"lor", LayoutNone},
	0x82: {"ixor", LayoutNone},
	0x83: {"lxor", LayoutNone},
	0x84: {"iinc", LayoutIinc},
	0x85: {"i2l", LayoutNone},
	0x86: {"i2f", LayoutNone},
	0x87: {"i2d", LayoutNone},
	0x88: {"l2i", LayoutNone},
	0x89: {"l2f", LayoutNone},
	0x8a: {"l2d", LayoutNone},
	0x8b: {"f2i", LayoutNone},
	0x8c: {"f2l", LayoutNone},
	0x8d: {"f2d", LayoutNone},
	0x8e: {"d2i", LayoutNone},
	0x8f: {"d2l", LayoutNone},
	0x90: {"d2f", LayoutNone},
	0x91: {"i2b", LayoutNone},
	0x92: {"i2c", LayoutNone},
	0x93: {"i2s", LayoutNone},
	0x94: {"lcmp", LayoutNone},
	0x95: {"fcmpl", LayoutNone},
	0x96: {"fcmpg", LayoutNone},
	0x97: {"dcmpl", LayoutNone},
	0x98: {"dcmpg", LayoutNone},
	0x99: {"ifeq", LayoutBranch},
	0x9a: {"ifne", LayoutBranch},
	0x9b: {"iflt", LayoutBranch},
	0x9c: {"ifge", LayoutBranch},
	0x9d: {"ifgt", LayoutBranch},
	0x9e: {"ifle", LayoutBranch},
	0x9f: {"if_icmpeq", LayoutBranch},
	0xa0: {"if_icmpne", LayoutBranch},
	0xa1: {"if_icmplt", LayoutBranch},
	0xa2: {"if_icmpge", LayoutBranch},
	0xa3: {"if_icmpgt", LayoutBranch},
	0xa4: {"if_icmple", LayoutBranch},
	0xa5: {"if_acmpeq", LayoutBranch},
	0xa6: {"if_acmpne", LayoutBranch},
	0xa7: {"goto", LayoutBranch},
	0xa8: {"jsr", LayoutBranch},
	0xa9: {"ret", LayoutLocal},
	0xaa: {"tableswitch", LayoutTableSwitch},
	0xab: {"lookupswitch", LayoutLookupSwitch},
	0xac: {"ireturn", LayoutNone},
	0xad: {"lreturn", LayoutNone},
	0xae: {"freturn", LayoutNone},
	0xaf: {"dreturn", LayoutNone},
	0xb0: {"areturn", LayoutNone},
	0xb1: {"return", LayoutNone},
	0xb2: {"getstatic", LayoutCP2},
	0xb3: {"putstatic", LayoutCP2},
	0xb4: {"getfield", LayoutCP2},
	0xb5: {"putfield", LayoutCP2},
	0xb6: {"invokevirtual", LayoutCP2},
	0xb7: {"invokespecial", LayoutCP2},
	0xb8: {"invokestatic", LayoutCP2},
	0xb9: {"invokeinterface", LayoutInvokeInterface},
	0xba: {"invokedynamic", LayoutInvokeDynamic},
	0xbb: {"new", LayoutCP2},
	0xbc: {"newarray", LayoutNewArray},
	0xbd: {"anewarray", LayoutCP2},
	0xbe: {"arraylength", LayoutNone},
	0xbf: {"athrow", LayoutNone},
	0xc0: {"checkcast", LayoutCP2},
	0xc1: {"instanceof", LayoutCP2},
	0xc2: {"monitorenter", LayoutNone},
	0xc3: {"monitorexit", LayoutNone},
	0xc4: {"wide", LayoutWide},
	0xc5: {"multianewarray", LayoutMultiANewArray},
	0xc6: {"ifnull", LayoutBranch},
	0xc7: {"ifnonnull", LayoutBranch},
	0xc8: {"goto_w", LayoutBranchWide},
	0xc9: {"jsr_w", LayoutBranchWide},
}

// Info returns the table row for op; ok is false for undefined opcodes.
func (op Opcode) Info() (Info, bool) {
	info := opcodes[op]
	return info, info.Name != ""
}

// Defined reports whether op is a JVM opcode.
func (op Opcode) Defined() bool { return opcodes[op].Name != "" }

func (op Opcode) String() string {
	if info := opcodes[op]; info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(op))
}

// IsInvoke reports whether op calls a method.
func (op Opcode) IsInvoke() bool { return op >= InvokeVirtual && op <= InvokeDynamic }

// IsLoadConstant reports whether op pushes a constant pool entry.
func (op Opcode) IsLoadConstant() bool { return op >= Ldc && op <= Ldc2W }
