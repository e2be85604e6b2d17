// Package signal sorts string literals into categories by what they carry:
// addresses, file names, permission nodes, formatting codes, identifiers or
// plain text meant for players.
package signal

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"jarstrings/internal/record"
)

const (
	CatURL         = "url"
	CatHost        = "host"
	CatFile        = "file"
	CatBase64      = "base64"
	CatAuth        = "auth"
	CatSQL         = "sql"
	CatPermission  = "permission"  // dotted node such as myplugin.command.reload
	CatColor       = "color"       // legacy § or & codes, &#rrggbb
	CatPlaceholder = "placeholder" // %s, {0}, %player%
	CatJavaName    = "javaname"    // class names and descriptors
	CatIdentifier  = "identifier"  // one token: config keys, enum names
	CatText        = "text"        // words meant for a reader
)

var (
	reURL       = regexp.MustCompile(`(?i)\b(https?|wss?|ftp|jdbc:[a-z]+)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{16,}$`)

	// Word boundaries keep camelCase names like "showPasswordField" out.
	reAuth = regexp.MustCompile(`(?i)(^|[^a-zA-Z])(oauth|jwt|bearer|credential|passwd|password|apikey|api_key|api-key|token|secret)([^a-zA-Z]|$)`)
	reSQL  = regexp.MustCompile(`(?i)^\s*(select\s.+\sfrom\s|insert\s+into\s|update\s+\S+\s+set\s|delete\s+from\s|create\s+(table|index)\s|alter\s+table\s|drop\s+table\s)`)

	rePermission  = regexp.MustCompile(`^[a-z][a-z0-9_-]*(\.[a-z0-9_*-]+){2,}$`)
	reColor       = regexp.MustCompile(`(?i)(§[0-9a-fk-or]|&[0-9a-fk-or]|&#[0-9a-f]{6}|<#[0-9a-f]{6}>)`)
	rePlaceholder = regexp.MustCompile(`%(\d+\$)?[-#+0,(]*\d*(\.\d+)?[sdfxXcbneEgGoh%]|\{\d+\}|%[a-zA-Z_][a-zA-Z0-9_]*%|\{[a-z_]+\}`)
	reDescriptor  = regexp.MustCompile(`^\(?\[*L[a-zA-Z_$][\w$]*(/[\w$]+)+;`)
	reJavaClass   = regexp.MustCompile(`^([a-z_][a-z0-9_]*[./]){2,}[A-Z][\w$]*$`)
	reIdentifier  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

	fileExtensions = []string{
		".yml", ".yaml", ".json", ".properties", ".txt", ".csv", ".xml",
		".db", ".sqlite", ".log", ".dat", ".schem", ".schematic",
		".jar", ".class", ".zip", ".png", ".ogg",
	}
)

// Classify returns the categories matching value in a fixed order, or nil
// for strings too short to say anything about.
func Classify(value string) []string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return nil
	}
	var cats []string
	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) {
		cats = append(cats, CatHost)
	}
	lower := strings.ToLower(trimmed)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) && !strings.Contains(lower, " ") {
			cats = append(cats, CatFile)
			break
		}
	}
	if reBase64.MatchString(trimmed) && entropy(trimmed) > 3.5 && !isCamelCase(trimmed) {
		cats = append(cats, CatBase64)
	}
	if reAuth.MatchString(value) {
		cats = append(cats, CatAuth)
	}
	if reSQL.MatchString(value) {
		cats = append(cats, CatSQL)
	}
	if rePermission.MatchString(trimmed) && !contains(cats, CatFile) {
		cats = append(cats, CatPermission)
	}
	if reColor.MatchString(value) {
		cats = append(cats, CatColor)
	}
	if rePlaceholder.MatchString(value) {
		cats = append(cats, CatPlaceholder)
	}
	if reDescriptor.MatchString(trimmed) || reJavaClass.MatchString(trimmed) {
		cats = append(cats, CatJavaName)
	}

	switch {
	case isText(value):
		cats = append(cats, CatText)
	case len(cats) == 0 && reIdentifier.MatchString(trimmed):
		cats = append(cats, CatIdentifier)
	}
	return cats
}

// Translatable reports whether a literal reads as text for players: it has
// words and carries no machine-facing category.
func Translatable(value string) bool {
	cats := Classify(value)
	if !contains(cats, CatText) {
		return false
	}
	for _, c := range cats {
		switch c {
		case CatURL, CatSQL, CatJavaName, CatPermission, CatBase64:
			return false
		}
	}
	return true
}

// Count tallies the categories of the current text of each record.
func Count(records []*record.String) map[string]int {
	out := map[string]int{}
	for _, r := range records {
		for _, c := range Classify(r.Text()) {
			out[c]++
		}
	}
	return out
}

// Sorted returns category names by descending count, then by name.
func Sorted(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for c := range counts {
		names = append(names, c)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Has reports whether value falls in category cat.
func Has(value, cat string) bool { return contains(Classify(value), cat) }

// isText looks for two words of letters, or a single capitalized word such
// as "Cancel". Color codes and placeholders are stripped first.
func isText(value string) bool {
	s := reColor.ReplaceAllString(value, "")
	s = rePlaceholder.ReplaceAllString(s, "")
	var (
		words int
		lone  string
	)
	for _, f := range strings.Fields(s) {
		letters := 0
		for _, r := range f {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters >= 2 {
			words++
			lone = f
		}
	}
	if words != 1 {
		return words > 1
	}
	w := []rune(strings.TrimFunc(lone, func(r rune) bool { return !unicode.IsLetter(r) }))
	if len(w) < 2 || !unicode.IsUpper(w[0]) {
		return false
	}
	for _, r := range w[1:] {
		if !unicode.IsLower(r) {
			return false
		}
	}
	return true
}

// isCamelCase reports a lowercase-to-uppercase transition, e.g. "checkSimCard".
func isCamelCase(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= 'a' && s[i-1] <= 'z' && s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

func contains(cats []string, cat string) bool {
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// entropy is the Shannon entropy of s in bits per byte.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		p := float64(count) / n
		ent -= p * math.Log2(p)
	}
	return ent
}
