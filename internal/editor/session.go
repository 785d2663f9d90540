// Package editor holds the in-memory state of one parameter editing session:
// the extracted rows, the text the user typed for each, which rows take part
// in batch increments, and the running counter.
package editor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/extract"
	"github.com/agentic-research/alchemy/internal/rewrite"
	"github.com/agentic-research/alchemy/internal/writeback"
	billy "github.com/go-git/go-billy/v5"
)

var digitRun = regexp.MustCompile(`\d+`)

// Increment replaces every run of decimal digits in text with counter.
func Increment(text string, counter int) string {
	return digitRun.ReplaceAllLiteralString(text, strconv.Itoa(counter))
}

// Row is one editable parameter.
type Row struct {
	Param api.Param
	// Text is the current field content.
	Text string
	// Zen enables the batch-increment transform for this row.
	Zen bool
}

// ReadOnly reports whether the row's value cannot be rewritten.
func (r Row) ReadOnly() bool { return r.Param.Value.ReadOnly() }

// Options configure a Session.
type Options struct {
	Strategy rewrite.Strategy
	// Validate re-parses the rewritten source and refuses to write it when
	// it no longer parses.
	Validate bool
}

// Session edits the parameters of one file. Sessions are independent: each
// owns a private copy of the extracted parameters.
type Session struct {
	fsys    billy.Filesystem
	path    string
	kind    api.Kind
	opts    Options
	rows    []Row
	counter int
}

// SaveResult describes one Save.
type SaveResult struct {
	// Counter is the value substituted into zen rows by this save.
	Counter int
	Changed []uint32
	Skipped []string
}

// Open extracts the parameters of path. Extraction errors abort the session
// before anything is written.
func Open(ctx context.Context, fsys billy.Filesystem, path string, kind api.Kind, opts Options) (*Session, error) {
	params, _, err := extract.File(ctx, fsys, path, kind)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(params))
	for i, p := range params {
		rows[i] = Row{Param: p, Text: p.Value.Text}
	}
	return &Session{fsys: fsys, path: path, kind: kind, opts: opts, rows: rows}, nil
}

// Path returns the file being edited.
func (s *Session) Path() string { return s.path }

// Kind returns the declaration shape being edited.
func (s *Session) Kind() api.Kind { return s.kind }

// Counter returns the value the next Save substitutes into zen rows.
func (s *Session) Counter() int { return s.counter }

// SetCounter overrides the running counter.
func (s *Session) SetCounter(n int) { s.counter = n }

// Rows returns a copy of the session rows.
func (s *Session) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

var errNoSuchRow = errors.New("no such parameter")

func (s *Session) row(name string) (*Row, error) {
	for i := range s.rows {
		if s.rows[i].Param.Name == name {
			return &s.rows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errNoSuchRow, name)
}

// Set replaces the field text of name.
func (s *Session) Set(name, text string) error {
	r, err := s.row(name)
	if err != nil {
		return err
	}
	if r.ReadOnly() {
		return fmt.Errorf("%w: %q", rewrite.ErrReadOnly, name)
	}
	r.Text = text
	return nil
}

// SetZen toggles the batch-increment transform for name.
func (s *Session) SetZen(name string, on bool) error {
	r, err := s.row(name)
	if err != nil {
		return err
	}
	if r.ReadOnly() && on {
		return fmt.Errorf("%w: %q", rewrite.ErrReadOnly, name)
	}
	r.Zen = on
	return nil
}

// Save applies the batch-increment transform to zen rows, rewrites the file
// and advances the counter. The source is re-read and re-extracted so that
// byte spans match the file on disk. The counter advances only when the
// file was written.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	logger := ctxlog.FromContext(ctx)

	params, src, err := extract.File(ctx, s.fsys, s.path, s.kind)
	if err != nil {
		return SaveResult{}, err
	}

	var edits []rewrite.Edit
	edited := make(map[string]string)
	pristine := make([]bool, len(s.rows))
	for i := range s.rows {
		r := &s.rows[i]
		if r.ReadOnly() || r.Param.Name == "" {
			pristine[i] = true
			continue
		}
		if r.Zen {
			r.Text = Increment(r.Text, s.counter)
		}
		// Unchanged rows are left alone so their literal stays as written.
		// A repeated argparse name is rewritten everywhere by its first
		// changed row.
		if !r.Zen && r.Text == r.Param.Value.Text {
			pristine[i] = true
			continue
		}
		if _, done := edited[r.Param.Name]; done {
			continue
		}
		edited[r.Param.Name] = r.Text
		edits = append(edits, rewrite.Edit{Name: r.Param.Name, Text: r.Text})
	}

	res, err := rewrite.Apply(src, s.kind, params, edits, s.opts.Strategy)
	if err != nil {
		return SaveResult{}, fmt.Errorf("rewrite %s: %w", s.path, err)
	}
	if s.opts.Validate {
		if err := writeback.Validate(ctx, res.Content, s.path); err != nil {
			return SaveResult{}, fmt.Errorf("refusing to write %s: %w", s.path, err)
		}
	}
	if err := writeback.WriteFile(s.fsys, s.path, res.Content); err != nil {
		return SaveResult{}, err
	}

	out := SaveResult{Counter: s.counter, Changed: res.Changed.ToArray(), Skipped: res.Skipped}
	s.counter++

	// Refresh parameter metadata so that later saves see current values.
	if fresh, err := extract.Params(ctx, res.Content, s.path, s.kind); err == nil {
		s.refresh(fresh)
	}
	// Rows the user did not touch follow the file, which matters when a
	// shared value (self.a = self.b = 1) was edited through another name.
	for i := range s.rows {
		r := &s.rows[i]
		if text, ok := edited[r.Param.Name]; ok {
			r.Text = text
		} else if pristine[i] {
			r.Text = r.Param.Value.Text
		}
	}

	logger.Debug("saved parameters", "file", s.path, "kind", s.kind,
		"changed_lines", len(out.Changed), "counter", out.Counter)
	return out, nil
}

// refresh matches fresh params to rows by name, in declaration order, so
// repeated argparse names keep their own row.
func (s *Session) refresh(params []api.Param) {
	byName := make(map[string][]api.Param, len(params))
	for _, p := range params {
		byName[p.Name] = append(byName[p.Name], p)
	}
	for i := range s.rows {
		name := s.rows[i].Param.Name
		if ps := byName[name]; len(ps) > 0 {
			s.rows[i].Param = ps[0]
			byName[name] = ps[1:]
		}
	}
}
