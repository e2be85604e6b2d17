package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"jarstrings/internal/classfile/classtest"
	"jarstrings/internal/jar"
	"jarstrings/internal/record"
	"jarstrings/internal/scanner"
	"jarstrings/internal/sheet"
)

func greeterJar(t *testing.T, dir string) string {
	t.Helper()
	b := classtest.New("a/Greeter")
	send := b.InterfaceMethodref("org/bukkit/entity/Player", "sendMessage", "(Ljava/lang/String;)V")
	code := classtest.Asm(
		classtest.Aload1, classtest.Ldc(b.String("Hello")), classtest.InvokeInterface(send, 2),
		classtest.Ldc(b.String("debug")), classtest.Pop,
		classtest.Return,
	)
	b.Method("greet", "(Lorg/bukkit/entity/Player;)V", code)

	a := jar.New()
	if err := a.Write("plugin.yml", []byte("name: Greeter\n")); err != nil {
		t.Fatal(err)
	}
	if err := a.Write("a/Greeter.class", b.Bytes()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "greeter.jar")
	if err := a.Save(path, jar.Deflate); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--quiet"}, args...))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func literals(t *testing.T, path string) map[string]*record.String {
	t.Helper()
	a, err := jar.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	res, err := scanner.New().SearchInArchive(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	m := map[string]*record.String{}
	for _, r := range res.Strings() {
		m[r.Value] = r
	}
	return m
}

func TestScanAndStrings(t *testing.T) {
	src := greeterJar(t, t.TempDir())

	out := run(t, "scan", src)
	if !strings.Contains(out, "strings: 2 (SendMessage 1") {
		t.Errorf("scan output:\n%s", out)
	}

	out = run(t, "report", src)
	if !strings.Contains(out, "<h3>a/Greeter</h3>") {
		t.Errorf("report output:\n%s", out)
	}

	out = run(t, "disasm", src, "a.Greeter")
	if !strings.Contains(out, `String "Hello" [SendMessage]`) || !strings.Contains(out, `String "debug"`) {
		t.Errorf("disasm output:\n%s", out)
	}

	out = run(t, "graph", src)
	if !strings.Contains(out, "sendMessage") {
		t.Errorf("graph output:\n%s", out)
	}

	out = run(t, "strings", src, "--context", "SendMessage")
	if !strings.Contains(out, `"Hello"`) || strings.Contains(out, `"debug"`) {
		t.Errorf("strings output:\n%s", out)
	}
}

func TestExportApply(t *testing.T) {
	dir := t.TempDir()
	src := greeterJar(t, dir)
	sheetPath := filepath.Join(dir, "greeter.yaml")

	if out := run(t, "export", src, sheetPath); !strings.Contains(out, "wrote 2 entries") {
		t.Fatalf("export output: %s", out)
	}
	s, err := sheet.ReadFile(sheetPath)
	if err != nil {
		t.Fatal(err)
	}
	for i := range s.Entries {
		if s.Entries[i].Original == "Hello" {
			s.Entries[i].Text = "Hallo"
		}
	}
	if err := sheet.WriteFile(sheetPath, s); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "out.jar")
	if out := run(t, "apply", src, sheetPath, "-o", dst); !strings.Contains(out, "patched 1 literals in 1 classes") {
		t.Fatalf("apply output: %s", out)
	}
	lits := literals(t, dst)
	if lits["Hallo"] == nil || lits["debug"] == nil || lits["Hello"] != nil {
		t.Errorf("patched literals = %v", lits)
	}
	if lits["Hallo"].Context != record.ContextSendMessage {
		t.Errorf("context = %q", lits["Hallo"].Context)
	}
}

func TestExportTranslatable(t *testing.T) {
	dir := t.TempDir()
	src := greeterJar(t, dir)
	t.Cleanup(func() { exportTranslatable = false })

	sheetPath := filepath.Join(dir, "greeter.json")
	if out := run(t, "export", src, sheetPath, "--translatable"); !strings.Contains(out, "wrote 1 entries") {
		t.Fatalf("export output: %s", out)
	}
	s, err := sheet.ReadFile(sheetPath)
	if err != nil {
		t.Fatal(err)
	}
	if s.Entries[0].Original != "Hello" {
		t.Errorf("entries = %+v", s.Entries)
	}
}

func TestCatalogFlow(t *testing.T) {
	dir := t.TempDir()
	src := greeterJar(t, dir)
	db := filepath.Join(dir, "catalog.db")
	hello := literals(t, src)["Hello"]

	run(t, "catalog", "import", src, "--db", db)
	run(t, "catalog", "set", hello.Path, strconv.Itoa(int(hello.Index)), "Servus", "--db", db)
	if out := run(t, "catalog", "list", "--changed", "--db", db); !strings.Contains(out, `"Hello" => "Servus"`) {
		t.Errorf("list output:\n%s", out)
	}

	dst := filepath.Join(dir, "out.jar")
	run(t, "catalog", "apply", src, "-o", dst, "--db", db)
	if lits := literals(t, dst); lits["Servus"] == nil || lits["Hello"] != nil {
		t.Errorf("patched literals = %v", lits)
	}
}

func TestPatchedName(t *testing.T) {
	for in, want := range map[string]string{
		"plugin.jar":  "plugin.patched.jar",
		"dir/a.b.jar": "dir/a.b.patched.jar",
		"noext":       "noext.patched",
	} {
		if got := patchedName(in); got != want {
			t.Errorf("patchedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindClass(t *testing.T) {
	entries := []string{"a/One.class", "BOOT-INF/classes/com/x/Foo.class", "com/x/Foo$1.class"}
	tests := []struct {
		arg, want string
	}{
		{"a/One", "a/One.class"},
		{"a.One", "a/One.class"},
		{"a/One.class", "a/One.class"},
		{"com.x.Foo", "BOOT-INF/classes/com/x/Foo.class"},
		{"com/x/Foo$1", "com/x/Foo$1.class"},
	}
	for _, tt := range tests {
		got, err := findClass(entries, tt.arg)
		if err != nil || got != tt.want {
			t.Errorf("findClass(%q) = %q, %v; want %q", tt.arg, got, err, tt.want)
		}
	}
	if _, err := findClass(entries, "b/Missing"); err == nil {
		t.Error("expected an error for a missing class")
	}
}

func TestFilterRecords(t *testing.T) {
	recs := []*record.String{
		{ClassName: "a/One", Context: record.ContextSendMessage},
		{ClassName: "a/One"},
		{ClassName: "b/Two", Context: record.ContextItemDisplayName},
	}
	count := func(ctx, prefix string) int {
		out, err := filterRecords(recs, ctx, prefix)
		if err != nil {
			t.Fatal(err)
		}
		return len(out)
	}
	if n := count("", ""); n != 3 {
		t.Errorf("all = %d", n)
	}
	if n := count("none", ""); n != 1 {
		t.Errorf("none = %d", n)
	}
	if n := count("itemdisplayname", ""); n != 1 {
		t.Errorf("item = %d", n)
	}
	if n := count("", "a/"); n != 2 {
		t.Errorf("prefix a/ = %d", n)
	}
	if _, err := filterRecords(recs, "bogus", ""); err == nil {
		t.Error("expected an error for an unknown context")
	}
}
