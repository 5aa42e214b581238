package extract

import (
	"regexp"
	"strings"
)

// packedArgs matches the argument list of a Dean Edwards packed script:
// }('payload', radix, count, 'k0|k1|...'.split('|')
var packedArgs = regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\.split\('\|'\)`)

var packedWord = regexp.MustCompile(`\b\w+\b`)

const packedAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Unpack decodes the first packed eval() script in page. ok is false when
// there is none or its radix is unsupported.
func Unpack(page string) (string, bool) {
	m := packedArgs.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return unpackArgs(m[1], m[2], m[4])
}

// UnpackAll decodes every packed script in page and joins the results.
func UnpackAll(page string) string {
	var out []string
	for _, m := range packedArgs.FindAllStringSubmatch(page, -1) {
		if s, ok := unpackArgs(m[1], m[2], m[4]); ok {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

func unpackArgs(payload, radixStr, keywords string) (string, bool) {
	radix := 0
	for _, r := range radixStr {
		radix = radix*10 + int(r-'0')
	}
	if radix < 2 || radix > len(packedAlphabet) {
		return "", false
	}

	payload = unescapeJSString(payload)
	keys := strings.Split(keywords, "|")

	return packedWord.ReplaceAllStringFunc(payload, func(word string) string {
		idx, ok := decodeRadix(word, radix)
		if !ok || idx >= len(keys) || keys[idx] == "" {
			return word
		}
		return keys[idx]
	}), true
}

func decodeRadix(word string, radix int) (int, bool) {
	n := 0
	for _, r := range word {
		d := strings.IndexRune(packedAlphabet, r)
		if d < 0 || d >= radix {
			return 0, false
		}
		n = n*radix + d
		if n > 1<<24 {
			return 0, false
		}
	}
	return n, true
}

func unescapeJSString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
