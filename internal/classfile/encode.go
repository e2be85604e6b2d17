package classfile

import (
	"fmt"
	"math"

	"jarstrings/internal/classfmt"
)

// Encode serializes the class file. Counts and length prefixes are recomputed
// from the structure; a Utf8 entry whose Length disagrees with its content is
// rejected rather than silently fixed.
func (cf *ClassFile) Encode() ([]byte, error) {
	w := classfmt.NewWriter(cf.sizeHint())

	w.PutU4(cf.Magic)
	w.PutU2(cf.MinorVersion)
	w.PutU2(cf.MajorVersion)

	if err := encodeConstantPool(w, cf.ConstantPool); err != nil {
		return nil, err
	}

	w.PutU2(uint16(cf.AccessFlags))
	w.PutU2(cf.ThisClass)
	w.PutU2(cf.SuperClass)

	if len(cf.Interfaces) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d interfaces", ErrMalformed, len(cf.Interfaces))
	}
	w.PutU2(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.PutU2(i)
	}

	if err := encodeMembers(w, cf.Fields, "fields"); err != nil {
		return nil, err
	}
	if err := encodeMembers(w, cf.Methods, "methods"); err != nil {
		return nil, err
	}
	if err := encodeAttributes(w, cf.Attributes); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (cf *ClassFile) sizeHint() int {
	n := 64
	for _, e := range cf.ConstantPool {
		if u, ok := e.(*ConstantUtf8); ok {
			n += 3 + len(u.Bytes)
		} else {
			n += 9
		}
	}
	for _, m := range cf.Methods {
		for _, a := range m.Attributes {
			n += 6 + len(a.Info)
		}
	}
	return n
}

func encodeConstantPool(w *classfmt.Writer, cp ConstantPool) error {
	if len(cp) == 0 || len(cp) > math.MaxUint16 {
		return fmt.Errorf("%w: constant pool size %d", ErrMalformed, len(cp))
	}
	w.PutU2(uint16(len(cp)))
	for i := 1; i < len(cp); i++ {
		e := cp[i]
		if e == nil {
			return fmt.Errorf("%w: empty constant pool slot #%d", ErrMalformed, i)
		}
		w.PutU1(uint8(e.Tag()))
		switch c := e.(type) {
		case *ConstantUtf8:
			if int(c.Length) != len(c.Bytes) {
				return fmt.Errorf("%w: %w: slot #%d length %d, %d bytes",
					ErrMalformed, ErrLengthMismatch, i, c.Length, len(c.Bytes))
			}
			w.PutU2(c.Length)
			w.PutBytes(c.Bytes)
		case *ConstantInteger:
			w.PutU4(c.Bits)
		case *ConstantFloat:
			w.PutU4(c.Bits)
		case *ConstantLong:
			w.PutU8(c.Bits)
			i++
		case *ConstantDouble:
			w.PutU8(c.Bits)
			i++
		case *ConstantClass:
			w.PutU2(c.NameIndex)
		case *ConstantString:
			w.PutU2(c.StringIndex)
		case *ConstantFieldref:
			w.PutU2(c.ClassIndex)
			w.PutU2(c.NameAndTypeIndex)
		case *ConstantMethodref:
			w.PutU2(c.ClassIndex)
			w.PutU2(c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			w.PutU2(c.ClassIndex)
			w.PutU2(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			w.PutU2(c.NameIndex)
			w.PutU2(c.DescriptorIndex)
		case *ConstantMethodHandle:
			w.PutU1(c.ReferenceKind)
			w.PutU2(c.ReferenceIndex)
		case *ConstantMethodType:
			w.PutU2(c.DescriptorIndex)
		case *ConstantDynamic:
			w.PutU2(c.BootstrapMethodAttrIndex)
			w.PutU2(c.NameAndTypeIndex)
		case *ConstantInvokeDynamic:
			w.PutU2(c.BootstrapMethodAttrIndex)
			w.PutU2(c.NameAndTypeIndex)
		case *ConstantModule:
			w.PutU2(c.NameIndex)
		case *ConstantPackage:
			w.PutU2(c.NameIndex)
		default:
			return fmt.Errorf("%w: %w: %T in slot #%d", ErrMalformed, ErrUnknownTag, e, i)
		}
	}
	return nil
}

func encodeMembers(w *classfmt.Writer, members []*Member, what string) error {
	if len(members) > math.MaxUint16 {
		return fmt.Errorf("%w: %d %s", ErrMalformed, len(members), what)
	}
	w.PutU2(uint16(len(members)))
	for _, m := range members {
		w.PutU2(uint16(m.AccessFlags))
		w.PutU2(m.NameIndex)
		w.PutU2(m.DescriptorIndex)
		if err := encodeAttributes(w, m.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func encodeAttributes(w *classfmt.Writer, attrs []Attribute) error {
	if len(attrs) > math.MaxUint16 {
		return fmt.Errorf("%w: %d attributes", ErrMalformed, len(attrs))
	}
	w.PutU2(uint16(len(attrs)))
	for _, a := range attrs {
		if uint64(len(a.Info)) > math.MaxUint32 {
			return fmt.Errorf("%w: attribute of %d bytes", ErrMalformed, len(a.Info))
		}
		w.PutU2(a.NameIndex)
		w.PutU4(uint32(len(a.Info)))
		w.PutBytes(a.Info)
	}
	return nil
}
