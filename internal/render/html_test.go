package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"jarstrings/internal/record"
)

func TestWriteReportHTML(t *testing.T) {
	recs := []*record.String{
		{Path: "a/One.class", ClassName: "a/One", Index: 7, Value: "Hello <b>", Context: record.ContextSendMessage, Line: 3},
		{Path: "a/One.class", ClassName: "a/One", Index: 9, Value: "Code", Shared: true},
	}
	recs[0].Edit("Hallo")
	g := &record.Group{Path: "a/One.class", ClassName: "a/One",
		Methods: []record.MethodStrings{{Name: "greet", Descriptor: "()V", Strings: recs}}}

	var buf bytes.Buffer
	err := WriteReportHTML(&buf, &Report{
		Title:   "plugin.jar",
		Entries: 4,
		Groups:  []*record.Group{g},
		Skipped: []record.Diag{{Path: "b/Bad.class", Err: errors.New("classfile: truncated")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"<title>plugin.jar</title>",
		"<td>Classes scanned</td><td class=\"num\">4</td>",
		"<td>Edited</td><td class=\"num\">1</td>",
		"SendMessage",
		"greet()V:3",
		"&#34;Hello &lt;b&gt;&#34;",
		`class="shared">shared`,
		"b/Bad.class",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, "<b>") {
		t.Error("literal text not escaped")
	}
}

func TestTruncLabel(t *testing.T) {
	if got := truncLabel("abcdef", 5); got != "ab..." {
		t.Errorf("truncLabel = %q", got)
	}
	if got := truncLabel("äöü", 5); got != "äöü" {
		t.Errorf("truncLabel = %q", got)
	}
	for _, tt := range []struct {
		max  int
		want string
	}{{3, "abc"}, {2, "ab"}, {0, ""}, {-1, ""}, {4, "a..."}} {
		if got := truncLabel("abcdef", tt.max); got != tt.want {
			t.Errorf("truncLabel(%d) = %q, want %q", tt.max, got, tt.want)
		}
	}
}

func TestBarWidth(t *testing.T) {
	if barWidth(0, 10) != 0 || barWidth(1, 1000) != 2 || barWidth(5, 10) != 100 {
		t.Error("unexpected bar widths")
	}
}
