package classfile

import (
	"errors"
	"fmt"

	"jarstrings/internal/classfmt"
)

// decoder wraps a stream with a sticky error so the structure walk reads
// linearly; the first failure wins and every later read is a no-op.
type decoder struct {
	s   *classfmt.Stream
	err error
}

func (d *decoder) fail(cause error, format string, args ...any) {
	if d.err != nil {
		return
	}
	d.err = fmt.Errorf("%w at 0x%x: %w: %s", ErrMalformed, d.s.Position(), cause, fmt.Sprintf(format, args...))
}

func (d *decoder) streamErr(err error, what string) {
	if errors.Is(err, classfmt.ErrStreamEOF) || errors.Is(err, classfmt.ErrStreamOverrun) {
		d.fail(ErrTruncated, "%s", what)
		return
	}
	d.fail(err, "%s", what)
}

func (d *decoder) u1(what string) uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.s.ReadU1()
	if err != nil {
		d.streamErr(err, what)
	}
	return v
}

func (d *decoder) u2(what string) uint16 {
	if d.err != nil {
		return 0
	}
	v, err := d.s.ReadU2()
	if err != nil {
		d.streamErr(err, what)
	}
	return v
}

func (d *decoder) u4(what string) uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.s.ReadU4()
	if err != nil {
		d.streamErr(err, what)
	}
	return v
}

func (d *decoder) u8(what string) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.s.ReadU8()
	if err != nil {
		d.streamErr(err, what)
	}
	return v
}

func (d *decoder) bytes(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	b, err := d.s.ReadBytes(n)
	if err != nil {
		d.streamErr(err, what)
	}
	return b
}

// Decode parses a complete class file.
func Decode(data []byte) (*ClassFile, error) {
	d := &decoder{s: classfmt.NewStream(data)}
	cf := &ClassFile{}

	cf.Magic = d.u4("magic")
	if d.err == nil && cf.Magic != Magic {
		return nil, fmt.Errorf("%w: %w: 0x%08x", ErrMalformed, ErrBadMagic, cf.Magic)
	}
	cf.MinorVersion = d.u2("minor_version")
	cf.MajorVersion = d.u2("major_version")

	cf.ConstantPool = d.constantPool()

	cf.AccessFlags = AccessFlags(d.u2("access_flags"))
	cf.ThisClass = d.u2("this_class")
	cf.SuperClass = d.u2("super_class")

	n := d.u2("interfaces_count")
	if d.err == nil && n > 0 {
		cf.Interfaces = make([]uint16, n)
		for i := range cf.Interfaces {
			cf.Interfaces[i] = d.u2("interface")
		}
	}

	cf.Fields = d.members("field")
	cf.Methods = d.members("method")
	cf.Attributes = d.attributes("class attribute")

	if d.err != nil {
		return nil, d.err
	}
	if rem := d.s.Remaining(); rem != 0 {
		d.fail(ErrTrailingData, "%d bytes", rem)
		return nil, d.err
	}
	return cf, nil
}

func (d *decoder) constantPool() ConstantPool {
	count := d.u2("constant_pool_count")
	if d.err != nil {
		return nil
	}
	if count == 0 {
		d.fail(ErrBadIndex, "constant_pool_count is 0")
		return nil
	}
	cp := make(ConstantPool, count)
	for i := 1; i < int(count) && d.err == nil; i++ {
		start := d.s.Position()
		tag := Tag(d.u1("constant tag"))
		if d.err != nil {
			break
		}
		entry := d.constant(tag)
		if entry == nil {
			d.s.SetPosition(start)
			d.fail(ErrUnknownTag, "tag %d in slot #%d", uint8(tag), i)
			break
		}
		cp[i] = entry
		if tag.Wide() {
			i++
			if i >= int(count) {
				d.fail(ErrBadIndex, "%s in last slot #%d", tag, i-1)
			}
		}
	}
	return cp
}

// constant reads the body of one entry. It returns nil for an unknown tag.
func (d *decoder) constant(tag Tag) ConstantPoolEntry {
	switch tag {
	case TagUtf8:
		n := d.u2("utf8 length")
		return &ConstantUtf8{Length: n, Bytes: d.bytes(int(n), "utf8 bytes")}
	case TagInteger:
		return &ConstantInteger{Bits: d.u4("integer")}
	case TagFloat:
		return &ConstantFloat{Bits: d.u4("float")}
	case TagLong:
		return &ConstantLong{Bits: d.u8("long")}
	case TagDouble:
		return &ConstantDouble{Bits: d.u8("double")}
	case TagClass:
		return &ConstantClass{NameIndex: d.u2("class name_index")}
	case TagString:
		return &ConstantString{StringIndex: d.u2("string_index")}
	case TagFieldref:
		return &ConstantFieldref{ClassIndex: d.u2("class_index"), NameAndTypeIndex: d.u2("name_and_type_index")}
	case TagMethodref:
		return &ConstantMethodref{ClassIndex: d.u2("class_index"), NameAndTypeIndex: d.u2("name_and_type_index")}
	case TagInterfaceMethodref:
		return &ConstantInterfaceMethodref{ClassIndex: d.u2("class_index"), NameAndTypeIndex: d.u2("name_and_type_index")}
	case TagNameAndType:
		return &ConstantNameAndType{NameIndex: d.u2("name_index"), DescriptorIndex: d.u2("descriptor_index")}
	case TagMethodHandle:
		return &ConstantMethodHandle{ReferenceKind: d.u1("reference_kind"), ReferenceIndex: d.u2("reference_index")}
	case TagMethodType:
		return &ConstantMethodType{DescriptorIndex: d.u2("descriptor_index")}
	case TagDynamic:
		return &ConstantDynamic{BootstrapMethodAttrIndex: d.u2("bootstrap_method_attr_index"), NameAndTypeIndex: d.u2("name_and_type_index")}
	case TagInvokeDynamic:
		return &ConstantInvokeDynamic{BootstrapMethodAttrIndex: d.u2("bootstrap_method_attr_index"), NameAndTypeIndex: d.u2("name_and_type_index")}
	case TagModule:
		return &ConstantModule{NameIndex: d.u2("module name_index")}
	case TagPackage:
		return &ConstantPackage{NameIndex: d.u2("package name_index")}
	}
	return nil
}

func (d *decoder) members(kind string) []*Member {
	n := d.u2(kind + "s_count")
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]*Member, 0, n)
	for i := 0; i < int(n) && d.err == nil; i++ {
		m := &Member{
			AccessFlags:     AccessFlags(d.u2(kind + " access_flags")),
			NameIndex:       d.u2(kind + " name_index"),
			DescriptorIndex: d.u2(kind + " descriptor_index"),
		}
		m.Attributes = d.attributes(kind + " attribute")
		out = append(out, m)
	}
	return out
}

func (d *decoder) attributes(what string) []Attribute {
	n := d.u2(what + "s_count")
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]Attribute, 0, n)
	for i := 0; i < int(n) && d.err == nil; i++ {
		nameIdx := d.u2(what + " name_index")
		length := d.u4(what + " length")
		if d.err == nil && int64(length) > int64(d.s.Remaining()) {
			d.fail(ErrTruncated, "%s length %d exceeds remaining %d", what, length, d.s.Remaining())
			break
		}
		info := d.bytes(int(length), what+" info")
		out = append(out, Attribute{NameIndex: nameIdx, Info: info})
	}
	return out
}
