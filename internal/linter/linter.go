// Package linter reports parameter declarations that cannot be edited, or
// that only the splice strategy can edit reliably.
package linter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/extract"
	"github.com/agentic-research/alchemy/internal/rewrite"
)

// Severity grades a diagnostic.
type Severity string

const (
	// Error marks a declaration no strategy can rewrite.
	Error Severity = "error"
	// Warning marks a declaration the line strategy gets wrong or misses.
	Warning Severity = "warning"
)

type Diagnostic struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     uint32   `json:"line"`
}

func (d Diagnostic) String() string {
	name := d.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("line %d: %s: %s: %s", d.Line+1, d.Severity, name, d.Message)
}

// Lint extracts the declarations of kind from src and checks them. Source
// that does not parse yields one error diagnostic per syntax error.
func Lint(ctx context.Context, src []byte, filePath string, kind api.Kind) ([]Diagnostic, error) {
	params, err := extract.Params(ctx, src, filePath, kind)
	var perr *extract.ParseError
	if errors.As(err, &perr) {
		return syntaxDiagnostics(ctx, src, filePath, perr), nil
	}
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	add := func(p api.Param, sev Severity, format string, args ...any) {
		diags = append(diags, Diagnostic{Name: p.Name, Severity: sev, Message: fmt.Sprintf(format, args...), Line: p.Line})
	}

	seen := make(map[string]int)
	valueRows := roaring.New()
	shared := roaring.New()

	for _, p := range params {
		switch {
		case p.Name == "":
			add(p, Error, "add_argument without a positional name cannot be edited")
			continue
		case p.Value.ReadOnly():
			add(p, Error, "value %s is not a literal and is read-only", p.Value.Raw)
		case p.Kind == api.KindArgparse && p.Span.IsZero():
			add(p, Warning, "no default= to rewrite")
		}

		if first, ok := seen[p.Name]; ok {
			add(p, Warning, "declared more than once (first on line %d)", first+1)
		} else {
			seen[p.Name] = int(p.Line)
		}

		if p.Span.IsZero() {
			continue
		}
		if p.Span.Row != p.Line {
			add(p, Warning, "value starts on line %d, away from the declaration; the line strategy will miss it", p.Span.Row+1)
		}
		if !valueRows.CheckedAdd(p.Span.Row) {
			shared.Add(p.Span.Row)
		}
	}

	for _, p := range params {
		if !p.Span.IsZero() && shared.Contains(p.Span.Row) {
			add(p, Warning, "shares line %d with another declaration; the line strategy edits only the first", p.Span.Row+1)
		}
	}

	diags = append(diags, unreachableByLine(ctx, src, kind, params)...)

	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Line < diags[j].Line })
	return diags, nil
}

func syntaxDiagnostics(ctx context.Context, src []byte, filePath string, first *extract.ParseError) []Diagnostic {
	errs := extract.SyntaxErrors(ctx, src, filePath)
	if len(errs) == 0 {
		errs = []extract.ParseError{*first}
	}
	diags := make([]Diagnostic, len(errs))
	for i, e := range errs {
		diags[i] = Diagnostic{
			Severity: Error,
			Message:  fmt.Sprintf("%s at column %d", e.Message, e.Column+1),
			Line:     e.Line,
		}
	}
	return diags
}

// unreachableByLine dry-runs the line strategy with every editable value
// rewritten to itself and reports the names it could not locate.
func unreachableByLine(ctx context.Context, src []byte, kind api.Kind, params []api.Param) []Diagnostic {
	readOnly := make(map[string]bool)
	for _, p := range params {
		if p.Value.ReadOnly() {
			readOnly[p.Name] = true
		}
	}

	var edits []rewrite.Edit
	byName := make(map[string]api.Param)
	for _, p := range params {
		if p.Name == "" || readOnly[p.Name] || p.Span.IsZero() {
			continue
		}
		if _, dup := byName[p.Name]; dup {
			continue
		}
		byName[p.Name] = p
		edits = append(edits, rewrite.Edit{Name: p.Name, Text: p.Value.Text})
	}
	if len(edits) == 0 {
		return nil
	}

	res, err := rewrite.Apply(src, kind, params, edits, rewrite.StrategyLine)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("line strategy dry run failed", "error", err)
		return nil
	}

	var diags []Diagnostic
	for _, name := range res.Skipped {
		p := byName[name]
		diags = append(diags, Diagnostic{
			Name:     name,
			Severity: Warning,
			Message:  "the line strategy cannot locate this declaration; use the splice strategy",
			Line:     p.Line,
		})
	}
	return diags
}
