package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// FormOptions configure the parameter form.
type FormOptions struct {
	// BatchMode enables the per-row zen toggle.
	BatchMode bool
}

type formModel struct {
	ctx  context.Context
	sess *editor.Session
	opts FormOptions

	rows   []editor.Row
	cursor int
	input  textinput.Model
	width  int

	saving   bool
	status   string
	errText  string
	quitting bool
}

type savedMsg struct {
	res editor.SaveResult
	err error
}

// RunForm opens the interactive form for sess and blocks until the user quits.
func RunForm(ctx context.Context, sess *editor.Session, opts FormOptions) error {
	m := newFormModel(ctx, sess, opts, 80)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("edit requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := final.(formModel); ok && fm.errText != "" && !fm.quitting {
		return errors.New(fm.errText)
	}
	return nil
}

func newFormModel(ctx context.Context, sess *editor.Session, opts FormOptions, width int) formModel {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024
	input.Width = clampInt(width-8, 20, 120)

	m := formModel{ctx: ctx, sess: sess, opts: opts, rows: sess.Rows(), input: input, width: width}
	m.loadRowIntoInput()
	m.input.Focus()
	return m
}

func (m formModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = clampInt(m.width-8, 20, 120)
		return m, nil
	case savedMsg:
		m.saving = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.errText = ""
		m.status = saveStatus(m.sess.Path(), msg.res)
		m.rows = m.sess.Rows()
		m.loadRowIntoInput()
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m formModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "shift+tab":
		m.commitInput()
		if m.cursor > 0 {
			m.cursor--
		}
		m.loadRowIntoInput()
		return m, nil
	case "down", "tab":
		m.commitInput()
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		m.loadRowIntoInput()
		return m, nil
	case "ctrl+t":
		m.toggleZen()
		return m, nil
	case "enter", "ctrl+s":
		m.commitInput()
		if m.errText != "" {
			return m, nil
		}
		if msg.String() == "enter" && m.cursor < len(m.rows)-1 {
			m.cursor++
			m.loadRowIntoInput()
			return m, nil
		}
		m.saving = true
		m.status = ""
		return m, saveCmd(m.ctx, m.sess)
	}

	if m.locked() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *formModel) current() (editor.Row, bool) {
	if len(m.rows) == 0 {
		return editor.Row{}, false
	}
	m.cursor = clampInt(m.cursor, 0, len(m.rows)-1)
	return m.rows[m.cursor], true
}

// locked reports whether the selected row cannot be typed into.
func (m *formModel) locked() bool {
	r, ok := m.current()
	return !ok || r.ReadOnly() || r.Param.Name == ""
}

func (m *formModel) commitInput() {
	if m.locked() {
		return
	}
	r, _ := m.current()
	text := m.input.Value()
	if err := m.sess.Set(r.Param.Name, text); err != nil {
		m.errText = err.Error()
		return
	}
	m.errText = ""
	m.rows[m.cursor].Text = text
}

func (m *formModel) loadRowIntoInput() {
	r, ok := m.current()
	if !ok {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(r.Text)
	m.input.CursorEnd()
}

func (m *formModel) toggleZen() {
	if !m.opts.BatchMode {
		m.status = "batch mode is disabled"
		return
	}
	if m.locked() {
		m.status = "read-only rows cannot take part in batch increments"
		return
	}
	r, _ := m.current()
	if err := m.sess.SetZen(r.Param.Name, !r.Zen); err != nil {
		m.errText = err.Error()
		return
	}
	m.rows[m.cursor].Zen = !r.Zen
}

func saveCmd(ctx context.Context, sess *editor.Session) tea.Cmd {
	return func() tea.Msg {
		res, err := sess.Save(ctx)
		return savedMsg{res: res, err: err}
	}
}

func saveStatus(path string, res editor.SaveResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "saved %s: %d line(s) changed", path, len(res.Changed))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, ", skipped %s", strings.Join(res.Skipped, ", "))
	}
	fmt.Fprintf(&b, " (counter %d)", res.Counter)
	return b.String()
}

func (m formModel) View() string {
	if m.quitting {
		return ""
	}
	header := titleStyle.Render(fmt.Sprintf("%s (%s)", m.sess.Path(), m.sess.Kind()))
	hint := "tab/shift+tab or up/down: move | enter: next/save | ctrl+s: save | esc: quit"
	if m.opts.BatchMode {
		hint = "tab/shift+tab or up/down: move | ctrl+t: toggle zen | enter: next/save | ctrl+s: save | esc: quit"
	}
	hints := mutedStyle.Render(hint)

	if len(m.rows) == 0 {
		return header + "\n" + mutedStyle.Render("no parameters found") + "\n" + hints
	}

	nameWidth := 0
	for _, r := range m.rows {
		nameWidth = max(nameWidth, len(r.Param.Name))
	}

	lines := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		name := r.Param.Name
		if name == "" {
			name = "<unnamed>"
		}
		line := fmt.Sprintf("%-*s  %s", nameWidth, name, r.Text)
		switch {
		case r.ReadOnly():
			line += mutedStyle.Render("  (read-only: " + r.Param.Value.Raw + ")")
		case r.Param.Name == "":
			line += mutedStyle.Render("  (no name)")
		}
		if r.Zen {
			line += "  " + zenStyle.Render("[zen]")
		}
		if i == m.cursor {
			line = selStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	r := m.rows[clampInt(m.cursor, 0, len(m.rows)-1)]
	label := "\n" + r.Param.Name
	if r.Param.Help != "" {
		label += "  " + mutedStyle.Render(r.Param.Help)
	}
	body := strings.Join(lines, "\n") + "\n" + label + "\n" + m.input.View()
	if m.opts.BatchMode {
		body += "\n" + mutedStyle.Render(fmt.Sprintf("next zen value: %d", m.sess.Counter()))
	}

	switch {
	case m.saving:
		body += "\n" + mutedStyle.Render("Saving...")
	case m.errText != "":
		body += "\n" + errorStyle.Render(m.errText)
	case m.status != "":
		body += "\n" + okStyle.Render(m.status)
	}

	panel := panelStyle.Width(max(m.width-2, 40)).Render(body)
	return header + "\n" + hints + "\n" + panel
}
