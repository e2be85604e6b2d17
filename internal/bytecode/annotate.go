package bytecode

import (
	"math"
	"strconv"

	"jarstrings/internal/classfile"
)

// ConstantAnnotator resolves the constant pool operand of an instruction:
// string literals are quoted, member references rendered as
// Class#nameDescriptor, classes by internal name.
func ConstantAnnotator(cp classfile.ConstantPool) Annotator {
	return func(in Inst) string {
		idx, ok := in.CPIndex()
		if !ok {
			return ""
		}
		e, ok := cp.Entry(idx)
		if !ok {
			return "<bad #" + strconv.Itoa(int(idx)) + ">"
		}
		switch c := e.(type) {
		case *classfile.ConstantString:
			if s, ok := cp.Text(idx); ok {
				return "String " + strconv.Quote(s)
			}
		case *classfile.ConstantClass:
			if name, ok := cp.ClassName(idx); ok {
				return "class " + name
			}
		case *classfile.ConstantInteger:
			return "int " + strconv.Itoa(int(c.Value()))
		case *classfile.ConstantLong:
			return "long " + strconv.FormatInt(c.Value(), 10)
		case *classfile.ConstantFloat:
			return "float " + strconv.FormatFloat(float64(c.Value()), 'g', -1, 32)
		case *classfile.ConstantDouble:
			v := c.Value()
			if math.IsNaN(v) {
				return "double NaN"
			}
			return "double " + strconv.FormatFloat(v, 'g', -1, 64)
		case *classfile.ConstantFieldref, *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
			if ref, ok := cp.MemberRef(idx); ok {
				return ref.String()
			}
		case *classfile.ConstantInvokeDynamic:
			if name, desc, ok := cp.NameAndType(c.NameAndTypeIndex); ok {
				return "indy " + name + desc
			}
		}
		return e.Tag().String()
	}
}

// StringAnnotator annotates only string-literal loads, using lookup to name
// each literal (e.g. with its edited value).
func StringAnnotator(cp classfile.ConstantPool, lookup func(index uint16, value string) string) Annotator {
	return func(in Inst) string {
		if !in.Opcode.IsLoadConstant() {
			return ""
		}
		idx, _ := in.CPIndex()
		if _, ok := cp.StringRef(idx); !ok {
			return ""
		}
		s, ok := cp.Text(idx)
		if !ok {
			return ""
		}
		return lookup(idx, s)
	}
}
