package scanner

import (
	"jarstrings/internal/bytecode"
	"jarstrings/internal/classfile"
	"jarstrings/internal/record"
)

// Signature identifies an interface method.
type Signature struct {
	Class      string
	Name       string
	Descriptor string
}

func (s Signature) String() string { return s.Class + "#" + s.Name + s.Descriptor }

// sinks maps the Bukkit APIs whose string argument is shown to players.
var sinks = map[Signature]record.Context{
	{"org/bukkit/command/CommandSender", "sendMessage", "(Ljava/lang/String;)V"}:      record.ContextSendMessage,
	{"org/bukkit/entity/Player", "sendMessage", "(Ljava/lang/String;)V"}:              record.ContextSendMessage,
	{"org/bukkit/inventory/meta/ItemMeta", "setDisplayName", "(Ljava/lang/String;)V"}: record.ContextItemDisplayName,
}

// ContextOf returns the context of a call signature.
func ContextOf(sig Signature) record.Context { return sinks[sig] }

// Sinks lists the known signatures.
func Sinks() []Signature {
	out := make([]Signature, 0, len(sinks))
	for sig := range sinks {
		out = append(out, sig)
	}
	return out
}

// resolveContext classifies the literal loaded by insts[i] from the
// instruction right after it: only an invokeinterface on a known interface
// method gives a context.
func resolveContext(cp classfile.ConstantPool, insts []bytecode.Inst, i int) (record.Context, Signature) {
	if i+1 >= len(insts) {
		return record.ContextNone, Signature{}
	}
	next := insts[i+1]
	if next.Opcode != bytecode.InvokeInterface {
		return record.ContextNone, Signature{}
	}
	idx, _ := next.CPIndex()
	ref, ok := cp.MemberRef(idx)
	if !ok || ref.Kind != classfile.TagInterfaceMethodref {
		return record.ContextNone, Signature{}
	}
	sig := Signature{Class: ref.Class, Name: ref.Name, Descriptor: ref.Descriptor}
	return sinks[sig], sig
}
