package selector

import (
	"strconv"
	"strings"

	"piifinder/internal/usecase/classify"
)

// cssSpecial is the set of characters that must be backslash-escaped inside
// a CSS identifier.
const cssSpecial = "!\"#$%&'()*+,./:;<=>?@[\\]^`{|}~"

// EscapeIdentifier makes s usable as a CSS identifier (export mode), following
// CSSOM serialization. Special characters get a backslash. A digit in first
// position, a digit right after a leading hyphen and ASCII control characters
// are written as a hex code point followed by a space. A lone hyphen becomes
// "\-".
func EscapeIdentifier(s string) string {
	if s == "-" {
		return `\-`
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f:
			writeHexEscape(&b, r)
		case r >= '0' && r <= '9' && (i == 0 || i == 1 && s[0] == '-'):
			writeHexEscape(&b, r)
		case strings.ContainsRune(cssSpecial, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeHexEscape(b *strings.Builder, r rune) {
	b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
}

// EscapeAttributeValue escapes double quotes for use inside [attr="value"]
// (raw mode).
func EscapeAttributeValue(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// IsWordLike reports whether s matches ^[A-Za-z0-9_-]+$.
func IsWordLike(s string) bool {
	return classify.IsWordLike(s)
}

// attrSelector renders tag[name="value"] in raw mode.
func attrSelector(tag, name, value string) string {
	return tag + "[" + name + `="` + EscapeAttributeValue(value) + `"]`
}
