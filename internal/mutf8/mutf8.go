// Package mutf8 converts between Go strings and the modified UTF-8 encoding
// used by CONSTANT_Utf8 entries (JVMS §4.4.7).
//
// The encoding matches standard UTF-8 except that U+0000 is written as the two
// bytes C0 80 and supplementary characters are written as a UTF-16 surrogate
// pair, three bytes per surrogate. Decode also accepts plain 4-byte UTF-8
// sequences, which some bytecode tools emit.
package mutf8

import (
	"unicode/utf16"
	"unicode/utf8"
)

// EncodedLen returns the number of bytes Encode(s) would produce.
func EncodedLen(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7f:
			n++
		case r <= 0x7ff:
			n += 2
		case r <= 0xffff:
			n += 3
		default:
			n += 6
		}
	}
	return n
}

// Encode returns the modified UTF-8 encoding of s. Invalid UTF-8 in s is
// encoded as U+FFFD.
func Encode(s string) []byte {
	out := make([]byte, 0, EncodedLen(s))
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7f:
			out = append(out, byte(r))
		case r <= 0x7ff:
			out = append(out, 0xc0|byte(r>>6), 0x80|byte(r&0x3f))
		case r <= 0xffff:
			out = append3(out, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			out = append3(out, hi)
			out = append3(out, lo)
		}
	}
	return out
}

func append3(out []byte, r rune) []byte {
	return append(out, 0xe0|byte(r>>12), 0x80|byte((r>>6)&0x3f), 0x80|byte(r&0x3f))
}

// Decode converts modified UTF-8 bytes to a Go string. Malformed sequences
// and unpaired surrogates decode to U+FFFD.
func Decode(b []byte) string {
	if isASCII(b) {
		return string(b)
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		r, n := decode3(b[i:])
		if n == 3 && utf16.IsSurrogate(r) {
			if r < 0xdc00 {
				if r2, n2 := decode3(b[i+3:]); n2 == 3 && r2 >= 0xdc00 && r2 <= 0xdfff {
					out = utf8.AppendRune(out, utf16.DecodeRune(r, r2))
					i += 6
					continue
				}
			}
			out = utf8.AppendRune(out, utf8.RuneError)
			i += 3
			continue
		}
		if n == 0 {
			r, n = decodeOther(b[i:])
		}
		out = utf8.AppendRune(out, r)
		i += n
	}
	return string(out)
}

// decode3 decodes a three-byte sequence. n is 0 if b does not start with one.
func decode3(b []byte) (rune, int) {
	if len(b) < 3 || b[0]&0xf0 != 0xe0 || b[1]&0xc0 != 0x80 || b[2]&0xc0 != 0x80 {
		return 0, 0
	}
	return rune(b[0]&0x0f)<<12 | rune(b[1]&0x3f)<<6 | rune(b[2]&0x3f), 3
}

func decodeOther(b []byte) (rune, int) {
	c := b[0]
	switch {
	case c < 0x80:
		return rune(c), 1
	case c&0xe0 == 0xc0 && len(b) >= 2 && b[1]&0xc0 == 0x80:
		return rune(c&0x1f)<<6 | rune(b[1]&0x3f), 2
	case c&0xf8 == 0xf0:
		if r, n := utf8.DecodeRune(b); r != utf8.RuneError {
			return r, n
		}
	}
	return utf8.RuneError, 1
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			return false
		}
	}
	return true
}
