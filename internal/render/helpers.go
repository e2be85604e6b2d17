// Package render writes scan results as a standalone HTML report.
package render

import "html"

func esc(s string) string { return html.EscapeString(s) }

// truncLabel shortens s to maxLen runes, appending "..." if truncated.
// Below 4 runes there is no room for the ellipsis and s is cut plainly.
func truncLabel(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

// barWidth scales count against total onto at most 200 pixels, never
// below 2 for a non-zero count.
func barWidth(count, total int) int {
	if total == 0 || count == 0 {
		return 0
	}
	w := count * 200 / total
	if w < 2 {
		w = 2
	}
	return w
}
