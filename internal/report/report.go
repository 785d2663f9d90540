// Package report turns extraction, lint, save and metrics results into
// generic JSON documents, encodes them, and filters them with JSONPath.
package report

import (
	"fmt"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/linter"
	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Params builds one object per parameter. Lines are 1-based.
func Params(params []api.Param) []any {
	out := make([]any, len(params))
	for i, p := range params {
		doc := map[string]any{
			"name":      p.Name,
			"kind":      string(p.Kind),
			"value":     p.Value.Text,
			"raw":       p.Value.Raw,
			"type":      string(p.Value.Type),
			"line":      int64(p.Line) + 1,
			"read_only": p.Value.ReadOnly(),
		}
		if p.DeclaredType != "" {
			doc["declared_type"] = p.DeclaredType
		}
		if p.Help != "" {
			doc["help"] = p.Help
		}
		out[i] = doc
	}
	return out
}

// Diagnostics builds one object per lint finding. Lines are 1-based.
func Diagnostics(diags []linter.Diagnostic) []any {
	out := make([]any, len(diags))
	for i, d := range diags {
		out[i] = map[string]any{
			"name":     d.Name,
			"severity": string(d.Severity),
			"message":  d.Message,
			"line":     int64(d.Line) + 1,
		}
	}
	return out
}

// Save describes one write. Lines are 1-based.
func Save(path string, res editor.SaveResult) map[string]any {
	changed := make([]any, len(res.Changed))
	for i, row := range res.Changed {
		changed[i] = int64(row) + 1
	}
	skipped := make([]any, len(res.Skipped))
	for i, s := range res.Skipped {
		skipped[i] = s
	}
	return map[string]any{
		"path":          path,
		"counter":       int64(res.Counter),
		"changed_lines": changed,
		"skipped":       skipped,
	}
}

// Metrics keeps series in first-appearance order.
func Metrics(res metrics.Result) map[string]any {
	epochs := make([]any, len(res.Epochs))
	for i, e := range res.Epochs {
		epochs[i] = int64(e)
	}
	series := make([]any, len(res.Metrics))
	for i, s := range res.Metrics {
		values := make([]any, len(s.Values))
		for j, v := range s.Values {
			values[j] = v
		}
		series[i] = map[string]any{
			"name":    s.Name,
			"values":  values,
			"aligned": len(s.Values) == len(res.Epochs),
		}
	}
	return map[string]any{"epochs": epochs, "metrics": series}
}

// JSON encodes a generic document with sorted keys.
func JSON(doc any) string {
	return oj.JSON(doc, &oj.Options{Indent: 2, Sort: true})
}

// Select evaluates a JSONPath expression against doc.
func Select(doc any, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return x.Get(doc), nil
}

// Render encodes doc, or the matches of selector when it is not empty.
func Render(doc any, selector string) (string, error) {
	if selector == "" {
		return JSON(doc), nil
	}
	matches, err := Select(doc, selector)
	if err != nil {
		return "", err
	}
	if matches == nil {
		matches = []any{}
	}
	return JSON(matches), nil
}
