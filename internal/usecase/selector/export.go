package selector

import "strings"

// Export converts a raw-mode selector into export mode: every #id and .class
// identifier is fully escaped so the selector survives being stored in, and
// replayed by, another system. Attribute blocks and quoted strings are copied
// verbatim. Never use the result for live matching; raw selectors already
// work there unmodified.
func Export(raw string) string {
	rs := []rune(raw)
	var b strings.Builder
	b.Grow(len(raw) + 8)

	bracket := 0
	var quote rune
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == '\\' && i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
				continue
			}
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			b.WriteRune(r)
		case r == '[':
			bracket++
			b.WriteRune(r)
		case r == ']':
			if bracket > 0 {
				bracket--
			}
			b.WriteRune(r)
		case bracket > 0:
			b.WriteRune(r)
		case r == '#' || r == '.':
			b.WriteRune(r)
			j := i + 1
			for j < len(rs) && !identDelimiter(rs[j]) {
				j++
			}
			ident := string(rs[i+1 : j])
			if strings.ContainsRune(ident, '\\') {
				b.WriteString(ident)
			} else {
				b.WriteString(EscapeIdentifier(ident))
			}
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func identDelimiter(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '>', '+', '~', ',', '.', '#', '[', ':', '(', ')':
		return true
	}
	return false
}
