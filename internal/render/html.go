package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"jarstrings/internal/record"
	"jarstrings/internal/signal"
)

// maxText bounds literal cells in the per-class tables.
const maxText = 120

// Report is the input of WriteReportHTML.
type Report struct {
	Title   string
	Entries int // class entries examined
	Groups  []*record.Group
	Skipped []record.Diag
}

// WriteReportHTML writes a single page summarizing a scan: totals, literal
// contexts, literal categories, skipped entries and every literal by class.
func WriteReportHTML(w io.Writer, r *Report) error {
	var b strings.Builder
	t := NASA
	recs := record.Flatten(r.Groups)

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; color: %s; background: %s; margin: 2em; max-width: 1100px; }
h1 { font-size: 18px; font-weight: 600; margin-bottom: 0.5em; }
h2 { font-size: 14px; font-weight: 600; margin-top: 1.5em; border-bottom: 1px solid %s; padding-bottom: 4px; }
h3 { font-size: 13px; font-weight: 600; font-family: "Courier New", monospace; margin-bottom: 0.2em; }
table { border-collapse: collapse; margin: 0.5em 0; }
th, td { text-align: left; padding: 3px 12px 3px 0; font-size: 13px; vertical-align: top; }
th { font-weight: 600; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
td.lit { font-family: "Courier New", monospace; font-size: 12px; }
.dot { display: inline-block; width: 10px; height: 10px; border-radius: 2px; margin-right: 4px; vertical-align: middle; }
.bar { height: 8px; border-radius: 2px; display: inline-block; vertical-align: middle; }
.edited { color: %s; }
.shared { color: %s; font-size: 11px; }
.cats { color: %s; font-size: 11px; }
</style>
</head>
<body>
`, esc(r.Title), t.TextColor, t.Background, t.Rule, t.Edited, t.Shared, t.NoContext)
	fmt.Fprintf(&b, "<h1>%s</h1>\n", esc(r.Title))

	var edited, shared int
	contexts := map[record.Context]int{}
	for _, s := range recs {
		contexts[s.Context]++
		if s.Changed {
			edited++
		}
		if s.Shared {
			shared++
		}
	}

	b.WriteString("<h2>Summary</h2>\n<table>\n")
	row := func(label string, n int) {
		fmt.Fprintf(&b, "<tr><td>%s</td><td class=\"num\">%d</td></tr>\n", label, n)
	}
	row("Classes scanned", r.Entries)
	row("Classes with literals", len(r.Groups))
	row("Literals", len(recs))
	row("Edited", edited)
	row("Shared text", shared)
	row("Skipped entries", len(r.Skipped))
	b.WriteString("</table>\n")

	b.WriteString("<h2>Contexts</h2>\n<table>\n<tr><th></th><th>Context</th><th>Count</th><th></th></tr>\n")
	for _, c := range []record.Context{record.ContextSendMessage, record.ContextItemDisplayName, record.ContextNone} {
		n := contexts[c]
		if n == 0 {
			continue
		}
		color := t.context(c)
		fmt.Fprintf(&b, "<tr><td><span class=\"dot\" style=\"background:%s\"></span></td><td>%s</td><td class=\"num\">%d</td><td><span class=\"bar\" style=\"width:%dpx;background:%s\"></span></td></tr>\n",
			color, contextLabel(c), n, barWidth(n, len(recs)), color)
	}
	b.WriteString("</table>\n")

	if counts := signal.Count(recs); len(counts) > 0 {
		b.WriteString("<h2>Kinds</h2>\n<table>\n")
		for _, c := range signal.Sorted(counts) {
			fmt.Fprintf(&b, "<tr><td>%s</td><td class=\"num\">%d</td><td><span class=\"bar\" style=\"width:%dpx;background:%s\"></span></td></tr>\n",
				esc(c), counts[c], barWidth(counts[c], len(recs)), t.Bar)
		}
		b.WriteString("</table>\n")
	}

	if len(r.Skipped) > 0 {
		b.WriteString("<h2>Skipped</h2>\n<table>\n")
		for _, d := range r.Skipped {
			fmt.Fprintf(&b, "<tr><td class=\"lit\">%s</td><td>%s</td></tr>\n", esc(d.Path), esc(d.Err.Error()))
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("<h2>Literals</h2>\n")
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "<h3>%s</h3>\n<table>\n", esc(g.ClassName))
		for _, m := range g.Methods {
			for _, s := range m.Strings {
				writeLiteral(&b, t, m.Name+m.Descriptor, s)
			}
		}
		b.WriteString("</table>\n")
	}
	b.WriteString("</body>\n</html>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeLiteral(b *strings.Builder, t Theme, method string, s *record.String) {
	loc := method
	if s.Line > 0 {
		loc += ":" + strconv.Itoa(s.Line)
	}
	text := esc(truncLabel(strconv.Quote(s.Value), maxText))
	if s.Changed {
		text += ` <span class="edited">&rarr; ` + esc(truncLabel(strconv.Quote(s.Edited), maxText)) + `</span>`
	}
	if s.Shared {
		text += ` <span class="shared">shared</span>`
	}
	if cats := signal.Classify(s.Text()); len(cats) > 0 {
		text += ` <span class="cats">` + esc(strings.Join(cats, " ")) + `</span>`
	}
	fmt.Fprintf(b, "<tr><td><span class=\"dot\" style=\"background:%s\" title=\"%s\"></span></td><td class=\"lit\">%s</td><td class=\"num\">#%d</td><td class=\"lit\">%s</td></tr>\n",
		t.context(s.Context), esc(contextLabel(s.Context)), esc(loc), s.Index, text)
}

func contextLabel(c record.Context) string {
	if c == record.ContextNone {
		return "none"
	}
	return string(c)
}
