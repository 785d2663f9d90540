package rewrite

import (
	"bytes"
	"strings"

	"github.com/agentic-research/alchemy/api"
)

const (
	constructorMarker = "def __init__(self"
	dictOpenMarker    = "parameter = {"
	defaultKeyword    = "default="
)

// lineScanner carries the block state of one line-oriented pass. A fresh
// scanner is created per Apply call.
type lineScanner struct {
	kind    api.Kind
	targets []target
	inside  bool
	matched map[string]bool
}

// applyLines rewrites declaration lines found by substring heuristics. The
// heuristics break on multi-line declarations, nested braces and bare
// statements inside a constructor; StrategySplice does not share these limits.
func applyLines(src []byte, kind api.Kind, targets []target) ([]byte, []string) {
	s := &lineScanner{kind: kind, targets: targets, matched: make(map[string]bool)}

	var out bytes.Buffer
	out.Grow(len(src))
	for _, line := range splitLines(src) {
		out.WriteString(s.next(string(line)))
	}

	var skipped []string
	for _, t := range targets {
		if !s.matched[t.edit.Name] {
			skipped = append(skipped, t.edit.Name)
		}
	}
	return out.Bytes(), skipped
}

func (s *lineScanner) next(line string) string {
	switch s.kind {
	case api.KindArgparse:
		return s.argparseLine(line)
	case api.KindConfig:
		return s.configLine(line)
	case api.KindDict:
		return s.dictLine(line)
	}
	return line
}

func (s *lineScanner) argparseLine(line string) string {
	if !strings.Contains(line, defaultKeyword) {
		return line
	}
	for _, t := range s.targets {
		name := t.edit.Name
		if !strings.Contains(line, "'"+name+"'") && !strings.Contains(line, `"`+name+`"`) {
			continue
		}
		s.matched[name] = true
		return replaceDefault(line, Render(t.params[0], t.edit.Text))
	}
	return line
}

// replaceDefault swaps the text between "default=" and the next comma. When
// no comma follows, the value runs up to the closing parenthesis or the end
// of the line.
func replaceDefault(line, value string) string {
	before, rest, _ := strings.Cut(line, defaultKeyword)
	if _, after, ok := strings.Cut(rest, ","); ok {
		return before + defaultKeyword + value + "," + after
	}
	if i := strings.IndexByte(rest, ')'); i >= 0 {
		return before + defaultKeyword + value + rest[i:]
	}
	return before + defaultKeyword + value + lineEnding(rest)
}

func (s *lineScanner) configLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.Contains(line, constructorMarker):
		s.inside = true
	case s.inside && strings.HasPrefix(trimmed, "self.") && strings.Contains(line, "="):
		for _, t := range s.targets {
			if !containsToken(line, "self."+t.edit.Name) {
				continue
			}
			s.matched[t.edit.Name] = true
			before, _, _ := strings.Cut(line, "=")
			return before + "= " + Render(t.params[0], t.edit.Text) + "\n"
		}
	case s.inside && strings.HasPrefix(trimmed, "self."):
		s.inside = false
	}
	return line
}

func (s *lineScanner) dictLine(line string) string {
	switch {
	case strings.Contains(line, dictOpenMarker):
		s.inside = true
	case s.inside && strings.Contains(line, "}"):
		s.inside = false
	case s.inside:
		for _, t := range s.targets {
			key := t.edit.Name
			if !strings.Contains(line, "'"+key+"':") && !strings.Contains(line, `"`+key+`":`) {
				continue
			}
			s.matched[key] = true
			before, rest, _ := strings.Cut(line, ":")
			value := Render(t.params[0], t.edit.Text)
			if _, after, ok := strings.Cut(rest, ","); ok {
				return before + ": " + value + "," + after
			}
			return before + ": " + value + lineEnding(rest)
		}
	}
	return line
}

// containsToken reports whether tok occurs in line not followed by an
// identifier character, so self.lr does not match self.lr_decay.
func containsToken(line, tok string) bool {
	for i := 0; ; {
		j := strings.Index(line[i:], tok)
		if j < 0 {
			return false
		}
		end := i + j + len(tok)
		if end == len(line) || !isIdentByte(line[end]) {
			return true
		}
		i = end
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func lineEnding(s string) string {
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(s, "\n"):
		return "\n"
	}
	return ""
}
