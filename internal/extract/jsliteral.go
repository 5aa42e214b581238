package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"anistream/internal/media"
)

// JSVar returns the source text of the object, array or string literal
// assigned to name in an inline script (var/let/const or a bare assignment).
func JSVar(page, name string) (string, bool) {
	re, err := regexp.Compile(`(?:\bvar|\blet|\bconst|[\s;,.])\s*` + regexp.QuoteMeta(name) + `\s*=\s*`)
	if err != nil {
		return "", false
	}
	for _, loc := range re.FindAllStringIndex(page, -1) {
		if lit, ok := literalAt(page, loc[1]); ok {
			return lit, true
		}
	}
	return "", false
}

// DecodeJSVar locates the literal assigned to name and decodes it into v.
func DecodeJSVar(page, name string, v any) error {
	lit, ok := JSVar(page, name)
	if !ok {
		return fmt.Errorf("script variable %q: %w", name, media.ErrPatternNotFound)
	}
	return DecodeJSLiteral(lit, v)
}

// DecodeJSLiteral decodes a loose JavaScript literal (single quotes, bare
// keys, trailing commas, comments) into v.
func DecodeJSLiteral(lit string, v any) error {
	if err := json.Unmarshal([]byte(ToJSON(lit)), v); err != nil {
		return fmt.Errorf("decoding script literal: %w: %w", media.ErrParse, err)
	}
	return nil
}

// literalAt returns the balanced literal starting at the first non-space
// byte at or after i.
func literalAt(s string, i int) (string, bool) {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	if i >= len(s) {
		return "", false
	}
	switch s[i] {
	case '\'', '"', '`':
		end := skipString(s, i)
		if end < 0 {
			return "", false
		}
		return s[i:end], true
	case '[', '{':
	default:
		return "", false
	}

	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\'', '"', '`':
			end := skipString(s, j)
			if end < 0 {
				return "", false
			}
			j = end - 1
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[i : j+1], true
			}
		}
	}
	return "", false
}

// skipString returns the index just past the string literal starting at i,
// or -1 if it is unterminated.
func skipString(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return -1
}

// ToJSON rewrites a JavaScript literal as JSON.
func ToJSON(lit string) string {
	var b strings.Builder
	s := lit
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipString(s, i)
			if end < 0 {
				end = len(s)
			}
			b.Write(quoteJSON(jsStringValue(s[i+1 : max(i+1, end-1)])))
			i = end

		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}

		case c == ',':
			j := i + 1
			for j < len(s) && unicode.IsSpace(rune(s[j])) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				i++
				continue
			}
			b.WriteByte(c)
			i++

		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] == '.' || s[j] == '+' || s[j] == '-' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			b.WriteString(s[i:j])
			i = j

		case c == '_' || c == '$' || unicode.IsLetter(rune(c)):
			j := i
			for j < len(s) && (s[j] == '_' || s[j] == '$' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			word := s[i:j]
			k := j
			for k < len(s) && unicode.IsSpace(rune(s[k])) {
				k++
			}
			switch {
			case k < len(s) && s[k] == ':':
				b.Write(quoteJSON(word))
			case word == "true" || word == "false" || word == "null":
				b.WriteString(word)
			case word == "undefined":
				b.WriteString("null")
			default:
				b.Write(quoteJSON(word))
			}
			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func jsStringValue(raw string) string {
	if !strings.Contains(raw, `\`) {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			b.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'u':
			if i+4 < len(raw) {
				if r, err := strconv.ParseUint(raw[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += 4
					continue
				}
			}
			b.WriteByte('u')
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

func quoteJSON(s string) []byte {
	out, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return out
}
