package extract

import (
	"strings"

	"github.com/agentic-research/alchemy/api"
	sitter "github.com/smacker/go-tree-sitter"
)

// literalValue converts a value node into an api.Value. Anything that is not
// a plain scalar literal comes back as TypeUnsupported with its raw text.
func literalValue(n *sitter.Node, src []byte) api.Value {
	raw := n.Content(src)
	switch n.Type() {
	case "integer":
		return api.Value{Type: api.TypeInt, Raw: raw, Text: raw}
	case "float":
		return api.Value{Type: api.TypeFloat, Raw: raw, Text: raw}
	case "true", "false":
		return api.Value{Type: api.TypeBool, Raw: raw, Text: raw}
	case "none":
		return api.Value{Type: api.TypeNone, Raw: raw, Text: "None"}
	case "string":
		text, quote, ok := unquote(raw)
		if !ok {
			break
		}
		return api.Value{Type: api.TypeString, Raw: raw, Text: text, Quote: quote}
	case "unary_operator":
		// -1, +2.5
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		if op == nil || arg == nil {
			break
		}
		if o := op.Content(src); o != "-" && o != "+" {
			break
		}
		inner := literalValue(arg, src)
		if inner.Type != api.TypeInt && inner.Type != api.TypeFloat {
			break
		}
		text := strings.Join(strings.Fields(raw), "")
		return api.Value{Type: inner.Type, Raw: raw, Text: text}
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			inner := literalValue(n.NamedChild(0), src)
			if inner.Type != api.TypeUnsupported {
				inner.Raw = raw
				return inner
			}
		}
	}
	return api.Value{Type: api.TypeUnsupported, Raw: raw, Text: "None"}
}

// unquote decodes a Python string literal. f-strings and byte strings are
// rejected because their value is not a plain str.
func unquote(raw string) (text, quote string, ok bool) {
	i := 0
	rawPrefix := false
	for i < len(raw) && strings.IndexByte("rRbBuUfF", raw[i]) >= 0 {
		switch raw[i] {
		case 'f', 'F', 'b', 'B':
			return "", "", false
		case 'r', 'R':
			rawPrefix = true
		}
		i++
	}
	body := raw[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			inner := body[len(q) : len(body)-len(q)]
			if rawPrefix {
				return inner, q, true
			}
			return unescape(inner), q, true
		}
	}
	return "", "", false
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case '\n':
			// line continuation
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
