package bytecode

import (
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"jarstrings/internal/classfile"
	"jarstrings/internal/classfmt"
	"jarstrings/internal/classfile/classtest"
)

func TestOpcodeTable(t *testing.T) {
	defined := 0
	for i := 0; i < 256; i++ {
		if Opcode(i).Defined() {
			defined++
			if i > 0xc9 {
				t.Errorf("opcode 0x%02x should be undefined", i)
			}
		}
	}
	if defined != 202 {
		t.Errorf("defined opcodes = %d, want 202", defined)
	}
	checks := map[Opcode]string{
		Ldc: "ldc", LdcW: "ldc_w", Ldc2W: "ldc2_w", InvokeInterface: "invokeinterface",
		TableSwitch: "tableswitch", Wide: "wide", 0xc9: "jsr_w", 0x5f: "swap",
	}
	for op, want := range checks {
		if op.String() != want {
			t.Errorf("0x%02x = %s, want %s", uint8(op), op, want)
		}
	}
	if got := Opcode(0xfe).String(); got != "opcode(0xfe)" {
		t.Errorf("undefined String = %q", got)
	}
}

func TestDecodeSimple(t *testing.T) {
	code := []byte{0x12, 0x05, 0x57, 0x13, 0x01, 0x00, 0xb1}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 4 {
		t.Fatalf("got %d instructions, want 4", len(insts))
	}
	want := []struct {
		op     Opcode
		offset int
		size   int
	}{
		{Ldc, 0, 2}, {0x57, 2, 1}, {LdcW, 3, 3}, {Return, 6, 1},
	}
	for i, w := range want {
		in := insts[i]
		if in.Opcode != w.op || in.Offset != w.offset || in.Size() != w.size || in.Index != i {
			t.Errorf("inst[%d] = %s@%d size %d index %d, want %s@%d size %d",
				i, in.Opcode, in.Offset, in.Size(), in.Index, w.op, w.offset, w.size)
		}
	}
	if idx, ok := insts[0].CPIndex(); !ok || idx != 5 {
		t.Errorf("ldc CPIndex = %d, %v", idx, ok)
	}
	if idx, ok := insts[2].CPIndex(); !ok || idx != 256 {
		t.Errorf("ldc_w CPIndex = %d, %v", idx, ok)
	}
	if _, ok := insts[1].CPIndex(); ok {
		t.Errorf("pop has no CPIndex")
	}
}

func TestDecodeInvokeInterface(t *testing.T) {
	code := classtest.Asm(classtest.Aload1, classtest.Ldc(7), classtest.InvokeInterface(9, 2), classtest.Return)
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 4 {
		t.Fatalf("got %d instructions", len(insts))
	}
	in := insts[2]
	if in.Opcode != InvokeInterface || in.Size() != 5 {
		t.Errorf("invokeinterface = %s size %d", in.Opcode, in.Size())
	}
	if idx, _ := in.CPIndex(); idx != 9 {
		t.Errorf("CPIndex = %d, want 9", idx)
	}
	if got := in.String(); got != "invokeinterface #9, 2" {
		t.Errorf("String = %q", got)
	}
}

// tableswitch assembles a tableswitch preceded by lead nops.
func tableswitch(lead int, low, high int32) []byte {
	code := make([]byte, lead)
	code = append(code, byte(TableSwitch))
	code = append(code, make([]byte, padding(lead))...)
	put := func(v int32) { code = binary.BigEndian.AppendUint32(code, uint32(v)) }
	put(100)
	put(low)
	put(high)
	for k := low; k <= high; k++ {
		put(int32(10 + k))
	}
	return append(code, byte(Return))
}

func TestDecodeTableSwitchPadding(t *testing.T) {
	for lead := 0; lead < 4; lead++ {
		code := tableswitch(lead, 1, 3)
		insts, err := Decode(code)
		if err != nil {
			t.Fatalf("lead %d: %v", lead, err)
		}
		if len(insts) != lead+2 {
			t.Fatalf("lead %d: got %d instructions, want %d", lead, len(insts), lead+2)
		}
		sw := insts[lead]
		if want := 1 + padding(lead) + 12 + 3*4; sw.Size() != want {
			t.Errorf("lead %d: size = %d, want %d", lead, sw.Size(), want)
		}
		if (sw.Offset+1+padding(sw.Offset))%4 != 0 {
			t.Errorf("lead %d: operands not aligned", lead)
		}
		s, ok := sw.Switch()
		if !ok {
			t.Fatalf("lead %d: Switch not decoded", lead)
		}
		if s.Default != lead+100 || len(s.Keys) != 3 || s.Targets[2] != lead+13 {
			t.Errorf("lead %d: switch = %+v", lead, s)
		}
		if insts[lead+1].Opcode != Return {
			t.Errorf("lead %d: trailing instruction = %s", lead, insts[lead+1].Opcode)
		}
	}
}

func TestDecodeLookupSwitch(t *testing.T) {
	code := []byte{0x00, byte(LookupSwitch), 0x00, 0x00} // pad to offset 4
	put := func(v int32) { code = binary.BigEndian.AppendUint32(code, uint32(v)) }
	put(20) // default
	put(2)  // npairs
	put(-1)
	put(30)
	put(7)
	put(40)
	code = append(code, byte(Return))

	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 3 || insts[1].Size() != 1+2+8+16 {
		t.Fatalf("insts = %d, switch size = %d", len(insts), insts[1].Size())
	}
	s, _ := insts[1].Switch()
	if s.Keys[0] != -1 || s.Targets[1] != 41 || s.Default != 21 {
		t.Errorf("switch = %+v", s)
	}
}

func TestDecodeWide(t *testing.T) {
	code := []byte{
		byte(Wide), 0x15, 0x01, 0x2c, // wide iload 300
		byte(Wide), byte(Iinc), 0x01, 0x00, 0xff, 0xfe, // wide iinc 256, -2
		byte(Return),
	}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 3 {
		t.Fatalf("got %d instructions", len(insts))
	}
	if insts[0].Size() != 4 || insts[1].Size() != 6 {
		t.Errorf("sizes = %d, %d; want 4, 6", insts[0].Size(), insts[1].Size())
	}
	if got := insts[0].String(); got != "wide iload 300" {
		t.Errorf("String = %q", got)
	}
	if got := insts[1].String(); got != "wide iinc 256, -2" {
		t.Errorf("String = %q", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
		good int
	}{
		{"unknown opcode", []byte{0x00, 0xca}, ErrUnknownOpcode, 1},
		{"truncated ldc", []byte{0x12}, ErrTruncated, 0},
		{"truncated ldc_w", []byte{0x57, 0x13, 0x00}, ErrTruncated, 1},
		{"truncated invokeinterface", []byte{0xb9, 0x00, 0x01, 0x01}, ErrTruncated, 0},
		{"truncated switch", []byte{byte(TableSwitch), 0, 0, 0, 0, 0, 0, 0}, ErrTruncated, 0},
		{"wide of non-local", []byte{byte(Wide), 0x57, 0, 0}, ErrBadOperand, 0},
		{"inverted table", tableswitch(0, 3, 1), ErrBadOperand, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts, err := Decode(tt.code)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(insts) != tt.good {
				t.Errorf("decoded %d before failure, want %d", len(insts), tt.good)
			}
		})
	}
}

func TestReaderReset(t *testing.T) {
	r := NewReader([]byte{0x00, 0xb1})
	var first []Opcode
	for {
		in, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		first = append(first, in.Opcode)
	}
	r.Reset()
	in, err := r.Next()
	if err != nil || in.Opcode != first[0] || in.Index != 0 {
		t.Errorf("after Reset: %v, %v", in, err)
	}
	if r.Offset() != 1 {
		t.Errorf("Offset = %d, want 1", r.Offset())
	}
}

func TestBranchTarget(t *testing.T) {
	code := []byte{0x00, byte(Goto), 0xff, 0xff, 0xb1} // goto -1
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if target, ok := insts[1].BranchTarget(); !ok || target != 0 {
		t.Errorf("BranchTarget = %d, %v; want 0", target, ok)
	}
}

func TestFormatAnnotated(t *testing.T) {
	b := classtest.New("com/example/Hello")
	msg := b.String("Welcome!")
	send := b.InterfaceMethodref("org/bukkit/entity/Player", "sendMessage", "(Ljava/lang/String;)V")
	code := classtest.Asm(classtest.Aload1, classtest.Ldc(msg), classtest.InvokeInterface(send, 2), classtest.Return)
	b.Method("greet", "(Lorg/bukkit/entity/Player;)V", code)
	cf, err := classfile.Decode(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	text := Format(insts, ConstantAnnotator(cf.ConstantPool))
	for _, want := range []string{
		`ldc #` + strconv.Itoa(int(msg)),
		`; String "Welcome!"`,
		`; org/bukkit/entity/Player#sendMessage(Ljava/lang/String;)V`,
		`return`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if Format(insts, ConstantAnnotator(cf.ConstantPool)) != text {
		t.Error("non-deterministic output")
	}

	edited := StringAnnotator(cf.ConstantPool, func(idx uint16, v string) string { return "-> Hi" })
	if out := Format(insts, edited); !strings.Contains(out, "; -> Hi") || strings.Count(out, ";") != 1 {
		t.Errorf("StringAnnotator output:\n%s", out)
	}
}

func TestBuildCFG(t *testing.T) {
	code := []byte{
		0x03,             // 0: iconst_0
		0x99, 0x00, 0x06, // 1: ifeq 7
		0xa7, 0x00, 0x04, // 4: goto 8
		0x00,             // 7: nop
		0xb1,             // 8: return
	}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	g := BuildCFG(insts, 7)
	if len(g.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(g.Blocks))
	}
	want := [][]Succ{
		{{BlockID: 2, Cond: "T"}, {BlockID: 1, Cond: "F"}},
		{{BlockID: 3}},
		{{BlockID: 3}},
		nil,
	}
	for i, b := range g.Blocks {
		if !reflect.DeepEqual(b.Succs, want[i]) {
			t.Errorf("B%d succs = %+v, want %+v", i, b.Succs, want[i])
		}
	}
	if !g.Blocks[0].Entry || !g.Blocks[3].Term || !g.Blocks[2].Handler {
		t.Errorf("flags = %+v", g.Blocks)
	}
}

func TestBuildCFGSwitch(t *testing.T) {
	// 0: iconst_0; 1: tableswitch (two pad bytes) default 24, 0 -> 25,
	// 1 -> 26; 24: return; 25: nop; 26: return
	code := []byte{
		0x03,
		0xaa, 0, 0,
		0, 0, 0, 23,
		0, 0, 0, 0,
		0, 0, 0, 1,
		0, 0, 0, 24,
		0, 0, 0, 25,
		0xb1,
		0x00,
		0xb1,
	}
	insts, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	g := BuildCFG(insts)
	if len(g.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(g.Blocks))
	}
	want := []Succ{{BlockID: 2, Cond: "0"}, {BlockID: 3, Cond: "1"}, {BlockID: 1, Cond: "default"}}
	if !reflect.DeepEqual(g.Blocks[0].Succs, want) {
		t.Errorf("switch succs = %+v, want %+v", g.Blocks[0].Succs, want)
	}
	if !g.Blocks[1].Term || g.Blocks[2].Term {
		t.Errorf("term flags = %+v", g.Blocks)
	}
}

func TestFlow(t *testing.T) {
	tests := []struct {
		op   Opcode
		want Flow
	}{
		{Nop, FlowNext},
		{0x99, FlowBranch},
		{0xc7, FlowBranch},
		{Goto, FlowJump},
		{0xc8, FlowJump},
		{0xa8, FlowSubroutine},
		{LookupSwitch, FlowSwitch},
		{0xac, FlowReturn},
		{Return, FlowReturn},
		{0xbf, FlowThrow},
		{InvokeVirtual, FlowNext},
	}
	for _, tt := range tests {
		if got := tt.op.Flow(); got != tt.want {
			t.Errorf("%s.Flow() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestDecodeBestEffort(t *testing.T) {
	var diags classfmt.Diags
	insts := DecodeBestEffort([]byte{0x00, 0x00, 0xfe}, &diags)
	if len(insts) != 2 {
		t.Fatalf("insts = %d, want 2", len(insts))
	}
	if diags.Len() != 1 {
		t.Fatalf("diags = %v", diags.Items())
	}
	if d := diags.Items()[0]; d.Offset != 2 || d.Kind != classfmt.DiagUnknownTag {
		t.Errorf("diag = %v", d)
	}

	diags = classfmt.Diags{}
	DecodeBestEffort([]byte{0x12}, &diags) // ldc without operand
	if diags.Len() != 1 || diags.Items()[0].Kind != classfmt.DiagTruncated {
		t.Errorf("diags = %v", diags.Items())
	}

	diags = classfmt.Diags{}
	if insts := DecodeBestEffort([]byte{0xb1}, &diags); len(insts) != 1 || diags.Len() != 0 {
		t.Errorf("clean decode: %d insts, %v", len(insts), diags.Items())
	}
}
