// Package classtest assembles small class files for tests.
package classtest

import (
	"encoding/binary"
	"fmt"

	"jarstrings/internal/classfile"
)

// Builder accumulates a constant pool and methods. Utf8, String, Class and
// NameAndType entries are shared by value the way javac shares them.
type Builder struct {
	cp      classfile.ConstantPool
	dedup   map[string]uint16
	this    uint16
	super   uint16
	methods []*classfile.Member
	fields  []*classfile.Member
}

// New starts a public class extending java/lang/Object.
func New(className string) *Builder {
	b := &Builder{
		cp:    classfile.ConstantPool{nil},
		dedup: map[string]uint16{},
	}
	b.this = b.Class(className)
	b.super = b.Class("java/lang/Object")
	return b
}

// Add appends e and returns its slot. Long and Double entries take two.
func (b *Builder) Add(e classfile.ConstantPoolEntry) uint16 {
	i := uint16(len(b.cp))
	b.cp = append(b.cp, e)
	if e.Tag().Wide() {
		b.cp = append(b.cp, nil)
	}
	return i
}

func (b *Builder) shared(key string, mk func() classfile.ConstantPoolEntry) uint16 {
	if i, ok := b.dedup[key]; ok {
		return i
	}
	i := b.Add(mk())
	b.dedup[key] = i
	return i
}

func (b *Builder) Utf8(s string) uint16 {
	return b.shared("u:"+s, func() classfile.ConstantPoolEntry {
		u, err := classfile.NewUtf8(s)
		if err != nil {
			panic(err)
		}
		return u
	})
}

func (b *Builder) String(s string) uint16 {
	u := b.Utf8(s)
	return b.shared("s:"+s, func() classfile.ConstantPoolEntry {
		return &classfile.ConstantString{StringIndex: u}
	})
}

func (b *Builder) Class(name string) uint16 {
	u := b.Utf8(name)
	return b.shared("c:"+name, func() classfile.ConstantPoolEntry {
		return &classfile.ConstantClass{NameIndex: u}
	})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.shared("nt:"+name+":"+desc, func() classfile.ConstantPoolEntry {
		return &classfile.ConstantNameAndType{NameIndex: n, DescriptorIndex: d}
	})
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	return b.Add(&classfile.ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	return b.Add(&classfile.ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	return b.Add(&classfile.ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.Add(&classfile.ConstantInteger{Bits: uint32(v)})
}

func (b *Builder) Long(v int64) uint16 {
	return b.Add(&classfile.ConstantLong{Bits: uint64(v)})
}

// Field adds a private field.
func (b *Builder) Field(name, desc string) {
	b.fields = append(b.fields, &classfile.Member{
		AccessFlags:     classfile.AccPrivate,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(desc),
	})
}

// Method adds a public method with the given bytecode.
func (b *Builder) Method(name, desc string, code []byte) {
	b.MethodWithLines(name, desc, code, nil)
}

// MethodWithLines adds a public method with a LineNumberTable when lines is
// non-empty.
func (b *Builder) MethodWithLines(name, desc string, code []byte, lines []classfile.LineNumber) {
	c := &classfile.Code{MaxStack: 4, MaxLocals: 4, Bytecode: code}
	if len(lines) > 0 {
		c.Attributes = []classfile.Attribute{{
			NameIndex: b.Utf8(classfile.AttrLineNumberTable),
			Info:      classfile.EncodeLineNumbers(lines),
		}}
	}
	info, err := c.Encode()
	if err != nil {
		panic(err)
	}
	b.methods = append(b.methods, &classfile.Member{
		AccessFlags:     classfile.AccPublic,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(desc),
		Attributes:      []classfile.Attribute{{NameIndex: b.Utf8(classfile.AttrCode), Info: info}},
	})
}

// AbstractMethod adds a method with no Code attribute.
func (b *Builder) AbstractMethod(name, desc string) {
	b.methods = append(b.methods, &classfile.Member{
		AccessFlags:     classfile.AccPublic | classfile.AccAbstract,
		NameIndex:       b.Utf8(name),
		DescriptorIndex: b.Utf8(desc),
	})
}

// ClassFile returns the assembled structure. The builder must not be used
// afterwards.
func (b *Builder) ClassFile() *classfile.ClassFile {
	flags := classfile.AccPublic | classfile.AccSuper
	for _, m := range b.methods {
		if m.AccessFlags.IsAbstract() {
			flags |= classfile.AccAbstract
		}
	}
	return &classfile.ClassFile{
		Magic:        classfile.Magic,
		MinorVersion: 0,
		MajorVersion: 52,
		ConstantPool: b.cp,
		AccessFlags:  flags,
		ThisClass:    b.this,
		SuperClass:   b.super,
		Fields:       b.fields,
		Methods:      b.methods,
	}
}

// Bytes encodes the assembled class.
func (b *Builder) Bytes() []byte {
	data, err := b.ClassFile().Encode()
	if err != nil {
		panic(fmt.Sprintf("classtest: %v", err))
	}
	return data
}

// Instruction helpers. Operands are big-endian as in the class file.

func Ldc(i uint16) []byte {
	if i <= 0xff {
		return []byte{0x12, byte(i)}
	}
	return LdcW(i)
}

func LdcW(i uint16) []byte { return op2(0x13, i) }

func GetStatic(i uint16) []byte     { return op2(0xb2, i) }
func InvokeVirtual(i uint16) []byte { return op2(0xb6, i) }
func InvokeStatic(i uint16) []byte  { return op2(0xb8, i) }

// InvokeInterface encodes invokeinterface with the argument count including
// the receiver.
func InvokeInterface(i uint16, count uint8) []byte {
	return append(op2(0xb9, i), count, 0)
}

var (
	Aload0  = []byte{0x2a}
	Aload1  = []byte{0x2b}
	Astore1 = []byte{0x4c}
	Pop     = []byte{0x57}
	Return  = []byte{0xb1}
	Nop     = []byte{0x00}
)

// Asm concatenates instruction encodings.
func Asm(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func op2(op byte, i uint16) []byte {
	b := []byte{op, 0, 0}
	binary.BigEndian.PutUint16(b[1:], i)
	return b
}
