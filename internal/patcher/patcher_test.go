package patcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarstrings/internal/classfile"
	"jarstrings/internal/classfile/classtest"
	"jarstrings/internal/jar"
	"jarstrings/internal/record"
	"jarstrings/internal/scanner"
)

func demoClass(name string, texts ...string) []byte {
	b := classtest.New(name)
	var code [][]byte
	for _, s := range texts {
		code = append(code, classtest.Ldc(b.String(s)), classtest.Pop)
	}
	code = append(code, classtest.Return)
	b.Method("run", "()V", classtest.Asm(code...))
	return b.Bytes()
}

func demoJar(t *testing.T) *jar.Archive {
	t.Helper()
	a := jar.New()
	require.NoError(t, a.Write("plugin.yml", []byte("name: Demo\n")))
	require.NoError(t, a.Write("a/One.class", demoClass("a/One", "Hello", "World")))
	require.NoError(t, a.Write("a/Two.class", demoClass("a/Two", "Bye")))
	out, err := a.Package(jar.Deflate)
	require.NoError(t, err)
	a, err = jar.FromBytes(out)
	require.NoError(t, err)
	return a
}

func scan(t *testing.T, a scanner.Archive) []*record.String {
	t.Helper()
	res, err := scanner.New().SearchInArchive(context.Background(), a)
	require.NoError(t, err)
	require.Empty(t, res.Diags)
	return res.Strings()
}

func values(recs []*record.String) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.Value)
	}
	return out
}

func TestApplyEditsRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := demoJar(t)
	recs := scan(t, a)
	require.Equal(t, []string{"Hello", "World", "Bye"}, values(recs))

	recs[0].Edit("Bonjour")
	recs[2].Edit("Au revoir, §aami")

	out, err := New(WithWorkers(2)).ApplyEdits(ctx, a, recs)
	require.NoError(t, err)

	patched, err := jar.FromBytes(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"plugin.yml", "a/One.class", "a/Two.class"}, patched.Entries(""))
	assert.Equal(t, []string{"Bonjour", "World", "Au revoir, §aami"}, values(scan(t, patched)))

	yml, err := patched.Read(ctx, "plugin.yml")
	require.NoError(t, err)
	assert.Equal(t, "name: Demo\n", string(yml))
}

func TestApplyOnlyChanged(t *testing.T) {
	a := demoJar(t)
	recs := scan(t, a)
	recs[1].Edit("Welt")

	rep, err := New().Apply(context.Background(), a, recs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/One.class"}, rep.Classes)
	assert.Equal(t, 1, rep.Edits)
	assert.Equal(t, []string{"a/One.class"}, a.Modified())
}

func TestApplyNothing(t *testing.T) {
	a := demoJar(t)
	rep, err := New().Apply(context.Background(), a, scan(t, a))
	require.NoError(t, err)
	assert.Empty(t, rep.Classes)
	assert.Empty(t, a.Modified())
}

func TestEditsApplyInRecordOrder(t *testing.T) {
	a := demoJar(t)
	first := &record.String{Path: "a/Two.class", Index: scan(t, a)[2].Index, Value: "Bye"}
	second := *first
	first.Edit("Ciao")
	second.Edit("Tschüss")

	rep, err := New().Apply(context.Background(), a, []*record.String{first, &second})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Edits)
	assert.Equal(t, []string{"a/Two.class"}, rep.Classes)
	assert.Equal(t, []string{"Hello", "World", "Tschüss"}, values(scan(t, a)))
}

func TestRecordsWithoutClass(t *testing.T) {
	// Records restored from a sheet carry only the path and index.
	a := demoJar(t)
	var restored []*record.String
	for _, r := range scan(t, a) {
		restored = append(restored, &record.String{Path: r.Path, Index: r.Index, Value: r.Value})
	}
	for _, r := range restored {
		r.Edit(r.Value + "!")
	}
	_, err := New().Apply(context.Background(), a, restored)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello!", "World!", "Bye!"}, values(scan(t, a)))
}

func TestLiteralAtSlotFive(t *testing.T) {
	b := classtest.New("Demo")
	require.Equal(t, uint16(5), b.Add(&classfile.ConstantString{StringIndex: 6}))
	require.Equal(t, uint16(6), b.Utf8("Hello"))
	b.Method("run", "()V", classtest.Asm(classtest.Ldc(5), classtest.Pop, classtest.Return))

	a := jar.New()
	require.NoError(t, a.Write("Demo.class", b.Bytes()))

	r := &record.String{Path: "Demo.class", Index: 5, Value: "Hello"}
	r.Edit("Hi")
	out, err := New().ApplyEdits(context.Background(), a, []*record.String{r})
	require.NoError(t, err)

	patched, err := jar.FromBytes(out)
	require.NoError(t, err)
	data, err := patched.Read(context.Background(), "Demo.class")
	require.NoError(t, err)
	cf, err := classfile.Decode(data)
	require.NoError(t, err)
	u, ok := cf.ConstantPool.Utf8(6)
	require.True(t, ok)
	assert.Equal(t, uint16(2), u.Length)
	assert.Equal(t, "Hi", string(u.Bytes))
}

func TestApplyErrors(t *testing.T) {
	b := classtest.New("Shared")
	code := b.String(classfile.AttrCode)
	num := b.Integer(7)
	b.Method("run", "()V", classtest.Asm(classtest.Ldc(code), classtest.Pop, classtest.Return))

	src := jar.New()
	require.NoError(t, src.Write("Shared.class", b.Bytes()))
	require.NoError(t, src.Write("Broken.class", []byte{0xca, 0xfe, 0xba, 0xbe, 0x00}))
	packed, err := src.Package(jar.Store)
	require.NoError(t, err)
	fresh := func() *jar.Archive {
		a, err := jar.FromBytes(packed)
		require.NoError(t, err)
		return a
	}
	edit := func(path string, idx uint16) []*record.String {
		r := &record.String{Path: path, Index: idx}
		r.Edit("x")
		return []*record.String{r}
	}

	tests := []struct {
		name string
		recs []*record.String
		opts []Option
		want error
	}{
		{"shared text refused", edit("Shared.class", code), []Option{WithRefuseShared(true)}, ErrSharedText},
		{"not a string", edit("Shared.class", num), nil, classfile.ErrNotString},
		{"index out of range", edit("Shared.class", 999), nil, classfile.ErrBadIndex},
		{"missing entry", edit("Gone.class", 1), nil, jar.ErrEntryNotFound},
		{"malformed class", edit("Broken.class", 1), nil, classfile.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := fresh()
			out, err := New(tt.opts...).ApplyEdits(context.Background(), a, tt.recs)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.want)
			var perr *PathError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.recs[0].Path, perr.Path)
			assert.Empty(t, a.Modified(), "nothing written after a failed edit")
		})
	}
}

func TestApplyCanceled(t *testing.T) {
	a := demoJar(t)
	recs := scan(t, a)
	recs[0].Edit("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Apply(ctx, a, recs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreMethod(t *testing.T) {
	a := demoJar(t)
	recs := scan(t, a)
	recs[0].Edit("Hallo")
	out, err := New(WithMethod(jar.Store)).ApplyEdits(context.Background(), a, recs)
	require.NoError(t, err)
	patched, err := jar.FromBytes(out)
	require.NoError(t, err)
	assert.Equal(t, "Hallo", scan(t, patched)[0].Value)
}

// configJar holds a class whose literal "prefix" shares its Utf8 slot with a
// field name, next to unshared literals in two classes.
func configJar(t *testing.T) *jar.Archive {
	t.Helper()
	b := classtest.New("a/Cfg")
	prefix := b.String("prefix")
	welcome := b.String("Welcome!")
	b.Field("prefix", "Ljava/lang/String;")
	b.Method("load", "()V", classtest.Asm(
		classtest.Ldc(prefix), classtest.Pop,
		classtest.Ldc(welcome), classtest.Pop,
		classtest.Return,
	))
	a := jar.New()
	require.NoError(t, a.Write("a/Cfg.class", b.Bytes()))
	require.NoError(t, a.Write("a/Two.class", demoClass("a/Two", "Bye")))
	out, err := a.Package(jar.Deflate)
	require.NoError(t, err)
	a, err = jar.FromBytes(out)
	require.NoError(t, err)
	return a
}

func TestSharedEditApplied(t *testing.T) {
	ctx := context.Background()
	a := configJar(t)
	recs := scan(t, a)
	require.Equal(t, []string{"prefix", "Welcome!", "Bye"}, values(recs))
	assert.True(t, recs[0].Shared)
	recs[0].Edit("präfix")
	recs[1].Edit("Willkommen!")
	recs[2].Edit("Tschüss")

	rep, err := New(WithWorkers(4)).Apply(ctx, a, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Edits)
	assert.Equal(t, 1, rep.Shared)
	assert.Equal(t, []string{"a/Cfg.class", "a/Two.class"}, rep.Classes)
	assert.Equal(t, []string{"präfix", "Willkommen!", "Tschüss"}, values(scan(t, a)))

	data, err := a.Read(ctx, "a/Cfg.class")
	require.NoError(t, err)
	cf, err := classfile.Decode(data)
	require.NoError(t, err)
	require.Len(t, cf.Fields, 1)
	assert.Equal(t, "präfix", cf.Fields[0].Name(cf.ConstantPool), "the slot is rewritten for every user")
}

func TestSharedEditRefused(t *testing.T) {
	a := configJar(t)
	recs := scan(t, a)
	recs[0].Edit("präfix")
	recs[2].Edit("Tschüss")

	_, err := New(WithRefuseShared(true)).Apply(context.Background(), a, recs)
	require.ErrorIs(t, err, ErrSharedText)
	var perr *PathError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "a/Cfg.class", perr.Path)
	assert.Empty(t, a.Modified(), "no class is written when a check fails")
}

// countingArchive counts reads and writes per entry. Reads are slowed down
// so that records of one path overlap while its class is decoded.
type countingArchive struct {
	*jar.Archive
	mu     sync.Mutex
	reads  map[string]int
	writes map[string]int
}

func (c *countingArchive) Read(ctx context.Context, name string) ([]byte, error) {
	c.mu.Lock()
	c.reads[name]++
	c.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return c.Archive.Read(ctx, name)
}

func (c *countingArchive) Write(name string, data []byte) error {
	c.mu.Lock()
	c.writes[name]++
	c.mu.Unlock()
	return c.Archive.Write(name, data)
}

func TestOneDecodePerPath(t *testing.T) {
	texts := []string{"one", "two", "three", "four", "five", "six", "seven", "eight"}
	base := jar.New()
	require.NoError(t, base.Write("a/Many.class", demoClass("a/Many", texts...)))
	require.NoError(t, base.Write("a/Two.class", demoClass("a/Two", "Bye")))
	recs := scan(t, base)
	require.Len(t, recs, len(texts)+1)
	for _, r := range recs {
		r.Edit(r.Value + "!")
	}

	a := &countingArchive{Archive: base, reads: map[string]int{}, writes: map[string]int{}}
	rep, err := New(WithWorkers(len(recs))).Apply(context.Background(), a, recs)
	require.NoError(t, err)
	assert.Equal(t, len(recs), rep.Edits)
	assert.Equal(t, map[string]int{"a/Many.class": 1, "a/Two.class": 1}, a.reads)
	assert.Equal(t, map[string]int{"a/Many.class": 1, "a/Two.class": 1}, a.writes)

	var want []string
	for _, s := range texts {
		want = append(want, s+"!")
	}
	assert.Equal(t, append(want, "Bye!"), values(scan(t, base)))
}
