// Package classfile decodes and encodes compiled Java class files
// (JVMS chapter 4) with exact byte fidelity.
//
// The constant pool is decoded into typed entries; every attribute is kept as
// raw bytes and parsed on demand (see Code). Encoding an unmodified ClassFile
// reproduces the input exactly. The only supported mutation is replacing the
// content of a Utf8 entry, which changes that entry's length prefix and nothing
// else.
package classfile

import (
	"errors"
	"fmt"
)

// Magic is the first four bytes of every class file.
const Magic uint32 = 0xcafebabe

var (
	ErrMalformed      = errors.New("classfile: malformed class file")
	ErrBadMagic       = errors.New("classfile: bad magic")
	ErrTruncated      = errors.New("classfile: truncated")
	ErrUnknownTag     = errors.New("classfile: unknown constant pool tag")
	ErrTrailingData   = errors.New("classfile: trailing data after class attributes")
	ErrLengthMismatch = errors.New("classfile: utf8 length does not match content")
	ErrUtf8TooLong    = errors.New("classfile: utf8 entry exceeds 65535 bytes")
	ErrBadIndex       = errors.New("classfile: constant pool index out of range")
	ErrNotString      = errors.New("classfile: constant is not a string")
)

// AccessFlags is the access_flags bitmask of a class, field or method.
type AccessFlags uint16

const (
	AccPublic     AccessFlags = 0x0001
	AccPrivate    AccessFlags = 0x0002
	AccProtected  AccessFlags = 0x0004
	AccStatic     AccessFlags = 0x0008
	AccFinal      AccessFlags = 0x0010
	AccSuper      AccessFlags = 0x0020 // classes; ACC_SYNCHRONIZED on methods
	AccBridge     AccessFlags = 0x0040
	AccVarargs    AccessFlags = 0x0080
	AccNative     AccessFlags = 0x0100
	AccInterface  AccessFlags = 0x0200
	AccAbstract   AccessFlags = 0x0400
	AccStrict     AccessFlags = 0x0800
	AccSynthetic  AccessFlags = 0x1000
	AccAnnotation AccessFlags = 0x2000
	AccEnum       AccessFlags = 0x4000
	AccModule     AccessFlags = 0x8000
)

// AccSynchronized shares its bit with AccSuper; it applies to methods only.
const AccSynchronized = AccSuper

func (f AccessFlags) Has(flag AccessFlags) bool { return f&flag != 0 }
func (f AccessFlags) IsAbstract() bool          { return f.Has(AccAbstract) }
func (f AccessFlags) IsNative() bool            { return f.Has(AccNative) }
func (f AccessFlags) IsStatic() bool            { return f.Has(AccStatic) }

// Attribute is an attribute_info with its payload kept raw.
type Attribute struct {
	NameIndex uint16
	Info      []byte
}

// Name resolves the attribute name.
func (a *Attribute) Name(cp ConstantPool) string {
	u, ok := cp.Utf8(a.NameIndex)
	if !ok {
		return ""
	}
	return u.Text()
}

// FindAttribute returns the first attribute called name, or nil.
func FindAttribute(cp ConstantPool, attrs []Attribute, name string) *Attribute {
	for i := range attrs {
		if attrs[i].Name(cp) == name {
			return &attrs[i]
		}
	}
	return nil
}

// Member is a field_info or method_info.
type Member struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

func (m *Member) Name(cp ConstantPool) string {
	u, ok := cp.Utf8(m.NameIndex)
	if !ok {
		return ""
	}
	return u.Text()
}

func (m *Member) Descriptor(cp ConstantPool) string {
	u, ok := cp.Utf8(m.DescriptorIndex)
	if !ok {
		return ""
	}
	return u.Text()
}

// Code parses the member's Code attribute. It returns nil, nil when the member
// has none (abstract and native methods, fields).
func (m *Member) Code(cp ConstantPool) (*Code, error) {
	attr := FindAttribute(cp, m.Attributes, AttrCode)
	if attr == nil {
		return nil, nil
	}
	return ParseCode(attr.Info)
}

// ClassFile is one decoded class.
type ClassFile struct {
	Magic        uint32
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
}

// Name returns the internal name of this class, e.g. "com/example/Main".
func (cf *ClassFile) Name() string {
	name, _ := cf.ConstantPool.ClassName(cf.ThisClass)
	return name
}

// StringValue decodes the String entry at slot i.
func (cf *ClassFile) StringValue(i uint16) (string, bool) {
	s, ok := cf.ConstantPool.StringRef(i)
	if !ok {
		return "", false
	}
	u, ok := cf.ConstantPool.Utf8(s.StringIndex)
	if !ok {
		return "", false
	}
	return u.Text(), true
}

// SetString replaces the text behind the String entry at slot i. The String
// entry itself is untouched; its Utf8 entry receives the new bytes and length.
func (cf *ClassFile) SetString(i uint16, text string) error {
	u, err := cf.StringUtf8(i)
	if err != nil {
		return err
	}
	return u.SetText(text)
}

// StringUtf8 returns the Utf8 entry holding the text of the String constant
// at slot i.
func (cf *ClassFile) StringUtf8(i uint16) (*ConstantUtf8, error) {
	if i == 0 || int(i) >= len(cf.ConstantPool) {
		return nil, fmt.Errorf("%w: #%d (pool size %d)", ErrBadIndex, i, len(cf.ConstantPool))
	}
	s, ok := cf.ConstantPool.StringRef(i)
	if !ok {
		return nil, fmt.Errorf("%w: #%d is %s", ErrNotString, i, describe(cf.ConstantPool[i]))
	}
	u, ok := cf.ConstantPool.Utf8(s.StringIndex)
	if !ok {
		return nil, fmt.Errorf("%w: #%d -> #%d is not Utf8", ErrMalformed, i, s.StringIndex)
	}
	return u, nil
}

func describe(e ConstantPoolEntry) string {
	if e == nil {
		return "unusable"
	}
	return e.Tag().String()
}
