package extract

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// captures is one query match keyed by capture name.
type captures map[string]*sitter.Node

// query runs a tree-sitter query below node and returns matches in
// document order.
func query(t *Tree, node *sitter.Node, selector string) ([]captures, error) {
	q, err := sitter.NewQuery([]byte(selector), t.Lang)
	if err != nil {
		return nil, fmt.Errorf("invalid query '%s': %w", selector, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()

	qc.Exec(q, node)

	var matches []captures
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		c := make(captures, len(m.Captures))
		for _, capture := range m.Captures {
			c[q.CaptureNameForId(capture.Index)] = capture.Node
		}
		matches = append(matches, c)
	}
	return matches, nil
}

// text returns the source text of n, or "" for nil.
func (t *Tree) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > end || int(end) > len(t.Source) {
		return ""
	}
	return string(t.Source[start:end])
}
