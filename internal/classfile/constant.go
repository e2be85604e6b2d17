package classfile

import (
	"fmt"
	"math"

	"jarstrings/internal/mutf8"
)

// Tag identifies a constant pool entry type (JVMS Table 4.4-B).
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Wide reports whether entries with this tag occupy two constant pool slots.
func (t Tag) Wide() bool { return t == TagLong || t == TagDouble }

// ConstantPoolEntry is implemented by all constant pool entry types.
type ConstantPoolEntry interface {
	Tag() Tag
}

// ConstantUtf8 holds the raw modified UTF-8 bytes of a CONSTANT_Utf8 entry.
// Length always equals len(Bytes); use SetBytes or SetText to mutate.
type ConstantUtf8 struct {
	Length uint16
	Bytes  []byte
}

func (c *ConstantUtf8) Tag() Tag { return TagUtf8 }

// Text decodes the entry's bytes.
func (c *ConstantUtf8) Text() string { return mutf8.Decode(c.Bytes) }

// SetBytes replaces the entry's content and updates Length.
func (c *ConstantUtf8) SetBytes(b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrUtf8TooLong, len(b))
	}
	c.Bytes = b
	c.Length = uint16(len(b))
	return nil
}

// SetText encodes s and replaces the entry's content.
func (c *ConstantUtf8) SetText(s string) error {
	return c.SetBytes(mutf8.Encode(s))
}

// NewUtf8 returns a Utf8 entry holding s.
func NewUtf8(s string) (*ConstantUtf8, error) {
	c := &ConstantUtf8{}
	if err := c.SetText(s); err != nil {
		return nil, err
	}
	return c, nil
}

// ConstantInteger keeps the raw four bytes.
type ConstantInteger struct {
	Bits uint32
}

func (c *ConstantInteger) Tag() Tag     { return TagInteger }
func (c *ConstantInteger) Value() int32 { return int32(c.Bits) }

// ConstantFloat keeps the raw IEEE 754 bits so NaN payloads survive a round trip.
type ConstantFloat struct {
	Bits uint32
}

func (c *ConstantFloat) Tag() Tag       { return TagFloat }
func (c *ConstantFloat) Value() float32 { return math.Float32frombits(c.Bits) }

type ConstantLong struct {
	Bits uint64
}

func (c *ConstantLong) Tag() Tag     { return TagLong }
func (c *ConstantLong) Value() int64 { return int64(c.Bits) }

type ConstantDouble struct {
	Bits uint64
}

func (c *ConstantDouble) Tag() Tag       { return TagDouble }
func (c *ConstantDouble) Value() float64 { return math.Float64frombits(c.Bits) }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() Tag { return TagClass }

// ConstantString is a string literal; StringIndex points at a Utf8 entry.
type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() Tag { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() Tag { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() Tag { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() Tag { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() Tag { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() Tag { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() Tag { return TagMethodType }

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() Tag { return TagDynamic }

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() Tag { return TagInvokeDynamic }

type ConstantModule struct {
	NameIndex uint16
}

func (c *ConstantModule) Tag() Tag { return TagModule }

type ConstantPackage struct {
	NameIndex uint16
}

func (c *ConstantPackage) Tag() Tag { return TagPackage }

// ConstantPool is indexed by slot number. Slot 0 and the slot following a
// Long or Double entry are nil.
type ConstantPool []ConstantPoolEntry

// Entry returns the entry at slot i, or false if the slot is out of range
// or unusable.
func (cp ConstantPool) Entry(i uint16) (ConstantPoolEntry, bool) {
	if i == 0 || int(i) >= len(cp) || cp[i] == nil {
		return nil, false
	}
	return cp[i], true
}

// Utf8 returns the Utf8 entry at slot i.
func (cp ConstantPool) Utf8(i uint16) (*ConstantUtf8, bool) {
	e, ok := cp.Entry(i)
	if !ok {
		return nil, false
	}
	u, ok := e.(*ConstantUtf8)
	return u, ok
}

// StringRef returns the String entry at slot i.
func (cp ConstantPool) StringRef(i uint16) (*ConstantString, bool) {
	e, ok := cp.Entry(i)
	if !ok {
		return nil, false
	}
	s, ok := e.(*ConstantString)
	return s, ok
}

// Text decodes slot i. A String entry is followed to its Utf8 entry.
func (cp ConstantPool) Text(i uint16) (string, bool) {
	if s, ok := cp.StringRef(i); ok {
		i = s.StringIndex
	}
	u, ok := cp.Utf8(i)
	if !ok {
		return "", false
	}
	return u.Text(), true
}

// ClassName resolves a Class entry to its internal name (e.g. "java/lang/Object").
func (cp ConstantPool) ClassName(i uint16) (string, bool) {
	e, ok := cp.Entry(i)
	if !ok {
		return "", false
	}
	c, ok := e.(*ConstantClass)
	if !ok {
		return "", false
	}
	u, ok := cp.Utf8(c.NameIndex)
	if !ok {
		return "", false
	}
	return u.Text(), true
}

// NameAndType resolves a NameAndType entry.
func (cp ConstantPool) NameAndType(i uint16) (name, descriptor string, ok bool) {
	e, ok := cp.Entry(i)
	if !ok {
		return "", "", false
	}
	nt, ok := e.(*ConstantNameAndType)
	if !ok {
		return "", "", false
	}
	n, ok1 := cp.Utf8(nt.NameIndex)
	d, ok2 := cp.Utf8(nt.DescriptorIndex)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return n.Text(), d.Text(), true
}

// MemberRef is a resolved Fieldref, Methodref or InterfaceMethodref.
type MemberRef struct {
	Kind       Tag
	Class      string
	Name       string
	Descriptor string
}

func (r MemberRef) String() string {
	return r.Class + "#" + r.Name + r.Descriptor
}

// MemberRef resolves a field or method reference at slot i.
func (cp ConstantPool) MemberRef(i uint16) (MemberRef, bool) {
	e, ok := cp.Entry(i)
	if !ok {
		return MemberRef{}, false
	}
	var classIdx, ntIdx uint16
	switch r := e.(type) {
	case *ConstantFieldref:
		classIdx, ntIdx = r.ClassIndex, r.NameAndTypeIndex
	case *ConstantMethodref:
		classIdx, ntIdx = r.ClassIndex, r.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIdx, ntIdx = r.ClassIndex, r.NameAndTypeIndex
	default:
		return MemberRef{}, false
	}
	class, ok := cp.ClassName(classIdx)
	if !ok {
		return MemberRef{}, false
	}
	name, desc, ok := cp.NameAndType(ntIdx)
	if !ok {
		return MemberRef{}, false
	}
	return MemberRef{Kind: e.Tag(), Class: class, Name: name, Descriptor: desc}, true
}
