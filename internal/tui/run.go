package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/alchemy/internal/pathtmpl"
	"github.com/agentic-research/alchemy/internal/runner"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// maxLogLines bounds the scrollback kept by the run view.
const maxLogLines = 2000

// StartFunc launches the run with hooks that feed the view. It returns a
// summary to display once the run ends, such as a rendered chart.
type StartFunc func(ctx context.Context, hooks runner.Hooks) (summary string, err error)

type lineMsg struct {
	stream runner.Stream
	line   string
}

type stateMsg runner.State

type iterationMsg struct {
	iteration int
	train     string
	test      string
}

type doneMsg struct {
	summary string
	err     error
}

type runModel struct {
	title   string
	spinner spinner.Model
	cancel  context.CancelFunc

	lines     []string
	state     runner.State
	iteration int
	width     int
	height    int

	done    bool
	summary string
	err     error
}

// RunView shows the output of start live and keeps the final summary on
// screen until the user quits. Quitting early cancels the run.
func RunView(ctx context.Context, title string, start StartFunc) error {
	return runView(ctx, title, start, tea.WithAltScreen())
}

func runView(ctx context.Context, title string, start StartFunc, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newRunModel(title, cancel)
	p := tea.NewProgram(m, opts...)

	hooks := runner.Hooks{
		Line:  func(s runner.Stream, line string) { p.Send(lineMsg{stream: s, line: line}) },
		State: func(s runner.State) { p.Send(stateMsg(s)) },
	}
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		summary, err := start(ctx, withIterationHook(hooks, p.Send))
		p.Send(doneMsg{summary: summary, err: err})
	}()

	final, err := p.Run()
	// An early quit cancels the run; wait until the subprocess is gone.
	cancel()
	<-finished
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("the run view requires an interactive terminal (TTY)")
		}
		return err
	}
	if rm, ok := final.(runModel); ok && rm.done {
		return rm.err
	}
	return context.Canceled
}

// withIterationHook reports every batch iteration to the view. A StartFunc
// that needs its own BeforeRun must call the one it was given.
func withIterationHook(h runner.Hooks, send func(tea.Msg)) runner.Hooks {
	h.BeforeRun = func(_ context.Context, i int, pair pathtmpl.Pair) error {
		send(iterationMsg{iteration: i + 1, train: pair.Train, test: pair.Test})
		return nil
	}
	return h
}

func newRunModel(title string, cancel context.CancelFunc) runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return runModel{title: title, spinner: s, cancel: cancel}
}

func (m runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case lineMsg:
		line := msg.line
		if msg.stream == runner.Stderr {
			line = errorStyle.Render(line)
		}
		m.lines = append(m.lines, line)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		return m, nil
	case stateMsg:
		m.state = runner.State(msg)
		return m, nil
	case iterationMsg:
		m.iteration = msg.iteration
		m.lines = []string{mutedStyle.Render(fmt.Sprintf("run %d: %s | %s", msg.iteration, msg.train, msg.test))}
		return m, nil
	case doneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		m.state = runner.Idle
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m runModel) View() string {
	status := m.spinner.View() + " " + m.state.String()
	if m.iteration > 0 {
		status += fmt.Sprintf(" | batch run %d", m.iteration)
	}
	switch {
	case m.done && m.err != nil:
		status = errorStyle.Render("failed: " + m.err.Error())
	case m.done:
		status = okStyle.Render("done")
	}
	header := titleStyle.Render(m.title) + "  " + status
	hints := mutedStyle.Render("q: quit (cancels a running script)")

	visible := m.logHeight()
	lines := m.lines
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	body := strings.Join(lines, "\n")
	if body == "" {
		body = mutedStyle.Render("(waiting for output)")
	}
	panel := panelStyle.Width(max(m.width-2, 40)).Render(body)

	out := header + "\n" + hints + "\n" + panel
	if m.done && m.summary != "" {
		out += "\n" + m.summary
	}
	return out
}

func (m runModel) logHeight() int {
	if m.height <= 0 {
		return 20
	}
	h := m.height - 6
	if m.done && m.summary != "" {
		h -= strings.Count(m.summary, "\n") + 1
	}
	return max(h, 3)
}
