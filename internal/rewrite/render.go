package rewrite

import (
	"strings"

	"github.com/agentic-research/alchemy/api"
)

// Render returns the literal written into the source for p when the user
// entered text. Text equal to the extracted value keeps the literal as
// written. Strings are quoted with the quote style and prefix of the
// original literal; everything else is written verbatim.
func Render(p api.Param, text string) string {
	if text == p.Value.Text && p.Value.Raw != "" && !p.Value.ReadOnly() {
		return p.Value.Raw
	}
	if p.Value.Type == api.TypeNone && text == "None" {
		return text
	}
	if !p.QuoteAsString() {
		return text
	}
	quote := p.Value.Quote
	if quote == "" {
		quote = "'"
	}
	prefix := stringPrefix(p.Value.Raw)
	if strings.ContainsAny(prefix, "rR") {
		if rawSafe(text, quote) {
			return prefix + quote + text + quote
		}
		prefix = strings.Map(func(r rune) rune {
			if r == 'r' || r == 'R' {
				return -1
			}
			return r
		}, prefix)
	}
	return prefix + quote + escape(text, quote) + quote
}

// stringPrefix returns the letters before the opening quote of a string
// literal, such as r or u.
func stringPrefix(raw string) string {
	i := strings.IndexAny(raw, `'"`)
	if i <= 0 {
		return ""
	}
	return raw[:i]
}

// rawSafe reports whether text can be written inside a raw literal quoted
// with quote.
func rawSafe(text, quote string) bool {
	if strings.HasSuffix(text, `\`) || strings.Contains(text, quote[:1]) {
		return false
	}
	return len(quote) == 3 || !strings.ContainsAny(text, "\r\n")
}

func escape(s, quote string) string {
	q := quote[:1]
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case string(c) == q:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
