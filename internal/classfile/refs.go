package classfile

import "encoding/binary"

// Utf8RefCounts counts, per constant pool slot, the references to it from
// the parts of the class the package understands: other constant pool
// entries, member names and descriptors, attribute names at every level
// (Code sub-attributes included), and the SourceFile and Signature payloads.
// javac shares one Utf8 entry between every use of the same text, so a
// string literal "Code" and the Code attribute name are the same slot.
func (cf *ClassFile) Utf8RefCounts() map[uint16]int {
	counts := make(map[uint16]int)
	hit := func(idx uint16) {
		if idx != 0 {
			counts[idx]++
		}
	}
	for _, e := range cf.ConstantPool {
		switch c := e.(type) {
		case *ConstantClass:
			hit(c.NameIndex)
		case *ConstantString:
			hit(c.StringIndex)
		case *ConstantNameAndType:
			hit(c.NameIndex)
			hit(c.DescriptorIndex)
		case *ConstantMethodType:
			hit(c.DescriptorIndex)
		case *ConstantModule:
			hit(c.NameIndex)
		case *ConstantPackage:
			hit(c.NameIndex)
		}
	}
	cf.walkAttributes(cf.Attributes, hit)
	for _, group := range [][]*Member{cf.Fields, cf.Methods} {
		for _, m := range group {
			hit(m.NameIndex)
			hit(m.DescriptorIndex)
			cf.walkAttributes(m.Attributes, hit)
		}
	}
	return counts
}

// Utf8Refs counts the references to Utf8 slot i; see Utf8RefCounts.
func (cf *ClassFile) Utf8Refs(i uint16) int { return cf.Utf8RefCounts()[i] }

// SharedString reports whether the Utf8 entry behind the String entry at
// slot i is referenced by anything besides that String entry. Rewriting a
// shared entry would also rename whatever else uses it.
func (cf *ClassFile) SharedString(i uint16) bool {
	return SharedIn(cf.ConstantPool, cf.Utf8RefCounts(), i)
}

// SharedIn is SharedString against counts computed once by Utf8RefCounts.
func SharedIn(cp ConstantPool, counts map[uint16]int, i uint16) bool {
	s, ok := cp.StringRef(i)
	if !ok {
		return false
	}
	return counts[s.StringIndex] > 1
}

func (cf *ClassFile) walkAttributes(attrs []Attribute, hit func(uint16)) {
	for i := range attrs {
		a := &attrs[i]
		hit(a.NameIndex)
		switch a.Name(cf.ConstantPool) {
		case AttrSourceFile, AttrSignature:
			if len(a.Info) == 2 {
				hit(binary.BigEndian.Uint16(a.Info))
			}
		case AttrCode:
			if code, err := ParseCode(a.Info); err == nil {
				cf.walkAttributes(code.Attributes, hit)
			}
		}
	}
}
