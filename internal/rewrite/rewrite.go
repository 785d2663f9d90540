// Package rewrite produces a new script source with edited parameter values
// while leaving every other byte of the file as it was.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/writeback"
)

// Strategy selects how declarations are located in the source.
type Strategy string

const (
	// StrategySplice replaces the value node's byte range found by the extractor.
	StrategySplice Strategy = "splice"
	// StrategyLine re-scans the text line by line with substring heuristics.
	StrategyLine Strategy = "line"
)

// ParseStrategy validates a strategy name; "" selects StrategySplice.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySplice:
		return StrategySplice, nil
	case StrategyLine:
		return StrategyLine, nil
	default:
		return "", fmt.Errorf("unknown rewrite strategy %q (want splice or line)", s)
	}
}

var (
	// ErrUnknownParam is returned for an edit naming no extracted parameter.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrConflict is returned when two edits set one shared value to
	// different text.
	ErrConflict = errors.New("conflicting edits for a shared value")
	// ErrReadOnly is returned for an edit against a non-literal value.
	ErrReadOnly = errors.New("parameter value is not a literal and cannot be rewritten")
)

// Edit sets the parameter Name to the user-entered Text.
type Edit struct {
	Name string
	Text string
}

// Result is the rewritten source.
type Result struct {
	Content []byte
	// Changed holds the 0-indexed rows whose text differs from the input.
	Changed *roaring.Bitmap
	// Skipped lists edits for which no declaration could be rewritten, such
	// as an add_argument call without default=.
	Skipped []string
}

// Apply rewrites src. params must be the extractor output for src. The
// whole result is built in memory; nothing is written.
func Apply(src []byte, kind api.Kind, params []api.Param, edits []Edit, strategy Strategy) (Result, error) {
	targets, err := resolve(params, edits)
	if err != nil {
		return Result{}, err
	}

	var (
		out     []byte
		skipped []string
	)
	switch strategy {
	case StrategySplice, "":
		out, skipped, err = applySplices(src, targets)
	case StrategyLine:
		out, skipped = applyLines(src, kind, targets)
	default:
		return Result{}, fmt.Errorf("unknown rewrite strategy %q", strategy)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{Content: out, Changed: changedLines(src, out), Skipped: skipped}, nil
}

// target is one edit resolved against every declaration carrying its name.
type target struct {
	edit   Edit
	params []api.Param
}

func resolve(params []api.Param, edits []Edit) ([]target, error) {
	byName := make(map[string][]api.Param, len(params))
	for _, p := range params {
		byName[p.Name] = append(byName[p.Name], p)
	}

	targets := make([]target, 0, len(edits))
	for _, e := range edits {
		ps, ok := byName[e.Name]
		if !ok || e.Name == "" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, e.Name)
		}
		for _, p := range ps {
			if p.Value.ReadOnly() {
				return nil, fmt.Errorf("%w: %q = %s", ErrReadOnly, e.Name, p.Value.Raw)
			}
		}
		targets = append(targets, target{edit: e, params: ps})
	}
	return targets, nil
}

func applySplices(src []byte, targets []target) ([]byte, []string, error) {
	var (
		splices []writeback.Splice
		skipped []string
	)
	// Chained assignments (self.a = self.b = 1) share one value node.
	bySpan := make(map[api.Span]int)
	for _, t := range targets {
		n := 0
		for _, p := range t.params {
			if p.Span.IsZero() {
				continue
			}
			n++
			content := []byte(Render(p, t.edit.Text))
			if i, ok := bySpan[p.Span]; ok {
				if !bytes.Equal(splices[i].Content, content) {
					return nil, nil, fmt.Errorf("%w: %q and another name share the value on line %d",
						ErrConflict, t.edit.Name, p.Span.Row+1)
				}
				continue
			}
			bySpan[p.Span] = len(splices)
			splices = append(splices, writeback.Splice{
				Start:   p.Span.StartByte,
				End:     p.Span.EndByte,
				Content: content,
			})
		}
		if n == 0 {
			skipped = append(skipped, t.edit.Name)
		}
	}
	out, err := writeback.Apply(src, splices)
	if err != nil {
		return nil, nil, err
	}
	return out, skipped, nil
}

// changedLines compares src and out row by row. When the row count differs
// every row from the first difference onwards is reported.
func changedLines(src, out []byte) *roaring.Bitmap {
	changed := roaring.New()
	a, b := splitLines(src), splitLines(out)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if !bytes.Equal(a[i], b[i]) {
			changed.Add(uint32(i))
		}
	}
	if len(a) != len(b) {
		last := len(a)
		if len(b) > last {
			last = len(b)
		}
		changed.AddRange(uint64(n), uint64(last))
	}
	return changed
}

// splitLines splits after every '\n', keeping line endings. A trailing
// newline does not produce an empty final line.
func splitLines(src []byte) [][]byte {
	if len(src) == 0 {
		return nil
	}
	lines := bytes.SplitAfter(src, []byte("\n"))
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}
