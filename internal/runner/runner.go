// Package runner launches a training script as a subprocess, streams its
// output line by line and drives single-run or batch iteration.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/agentic-research/alchemy/internal/pathtmpl"
)

// Defaults for Command.
const (
	DefaultInterpreter = "python"
	DefaultScript      = "main.py"
	DefaultWaitDelay   = 3 * time.Second
)

var (
	// ErrDataNotLoaded is returned when a run is requested without both a
	// train and a test path.
	ErrDataNotLoaded = errors.New("data not loaded: set both a train and a test path before running")
	// ErrBusy is returned when a run is requested while another is in flight.
	ErrBusy = errors.New("a run is already in progress")
)

// ExitError reports a script that finished with a non-zero exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with code %d", e.Code)
}

// Stream identifies the pipe a line was read from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// State is the orchestrator's position in its run cycle.
type State int

const (
	Idle State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Command describes the script invocation.
type Command struct {
	Interpreter string
	Script      string
	// Dir is the working directory; empty means the current one.
	Dir string
	// WaitDelay bounds how long output is drained after cancellation. A
	// child the script left behind can hold the pipes open; they are closed
	// once the delay expires.
	WaitDelay time.Duration
}

// Args returns the argument vector passed to the interpreter.
func (c Command) Args(train, test string) []string {
	return []string{c.Script, "--source_path", train, "--target_path", test, "--subset", "True"}
}

// Hooks are callbacks fired during a run. Any of them may be nil.
type Hooks struct {
	// Line receives every output line as it arrives. Calls are serialized.
	Line func(stream Stream, line string)
	// State is told about every state transition.
	State func(State)
	// BeforeRun fires before each batch iteration is launched, including the
	// first. A returned error stops the batch.
	BeforeRun func(ctx context.Context, iteration int, pair pathtmpl.Pair) error
}

// Output is the captured result of one subprocess invocation.
type Output struct {
	Lines    []string
	ExitCode int
}

// Text joins the captured lines.
func (o *Output) Text() string {
	if o == nil {
		return ""
	}
	n := 0
	for _, l := range o.Lines {
		n += len(l) + 1
	}
	b := make([]byte, 0, n)
	for i, l := range o.Lines {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, l...)
	}
	return string(b)
}

// BatchResult summarizes a batch.
type BatchResult struct {
	Runs []pathtmpl.Pair
	// Completed is true when the batch stopped because the paths ran out.
	Completed bool
}

// Orchestrator runs one subprocess at a time.
type Orchestrator struct {
	cmd   Command
	hooks Hooks

	busy  atomic.Bool
	mu    sync.Mutex
	state State
}

// New returns an idle orchestrator.
func New(cmd Command, hooks Hooks) *Orchestrator {
	if cmd.Interpreter == "" {
		cmd.Interpreter = DefaultInterpreter
	}
	if cmd.Script == "" {
		cmd.Script = DefaultScript
	}
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	return &Orchestrator{cmd: cmd, hooks: hooks}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.hooks.State != nil {
		o.hooks.State(s)
	}
}

// Single runs the script once on train/test. On exit code 0 the output is
// scanned for metrics; a non-zero code yields *ExitError.
func (o *Orchestrator) Single(ctx context.Context, train, test string) (metrics.Result, *Output, error) {
	if train == "" || test == "" {
		return metrics.Result{}, nil, ErrDataNotLoaded
	}
	if !o.busy.CompareAndSwap(false, true) {
		return metrics.Result{}, nil, ErrBusy
	}
	defer o.busy.Store(false)
	defer o.setState(Idle)

	out, err := o.run(ctx, train, test)
	if err != nil {
		return metrics.Result{}, out, err
	}
	return metrics.ParseLines(out.Lines), out, nil
}

// Batch runs the script once per pair popped from pairs, stopping at the
// first failure or when either side runs out of paths.
func (o *Orchestrator) Batch(ctx context.Context, pairs *pathtmpl.Pairs) (BatchResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return BatchResult{}, ErrBusy
	}
	defer o.busy.Store(false)
	defer o.setState(Idle)

	logger := ctxlog.FromContext(ctx)
	var res BatchResult

	for i := 0; ; i++ {
		pair, ok := pairs.Next()
		if !ok {
			if i == 0 {
				return res, ErrDataNotLoaded
			}
			res.Completed = true
			logger.Info("batch complete", "runs", len(res.Runs))
			return res, nil
		}

		if o.hooks.BeforeRun != nil {
			if err := o.hooks.BeforeRun(ctx, i, pair); err != nil {
				return res, fmt.Errorf("prepare iteration %d: %w", i+1, err)
			}
		}

		res.Runs = append(res.Runs, pair)
		if _, err := o.run(ctx, pair.Train, pair.Test); err != nil {
			return res, err
		}
	}
}

// run spawns one subprocess and blocks until both pipes are drained and the
// process has exited.
func (o *Orchestrator) run(ctx context.Context, train, test string) (*Output, error) {
	logger := ctxlog.FromContext(ctx)

	cmd := exec.CommandContext(ctx, o.cmd.Interpreter, o.cmd.Args(train, test)...)
	cmd.Dir = o.cmd.Dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.WaitDelay = o.cmd.WaitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", o.cmd.Interpreter, err)
	}
	o.setState(Running)
	logger.Info("run started", "script", o.cmd.Script, "source_path", train, "target_path", test)

	out := &Output{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream Stream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			out.Lines = append(out.Lines, line)
			if o.hooks.Line != nil {
				o.hooks.Line(stream, line)
			}
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("output stream read failed", "stream", stream, "error", err)
			_, _ = io.Copy(io.Discard, r)
		}
	}

	drained := make(chan struct{})
	go func() {
		select {
		case <-drained:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(o.cmd.WaitDelay)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			logger.Warn("output still open after cancel, closing pipes", "script", o.cmd.Script)
			_ = stdoutPipe.Close()
			_ = stderrPipe.Close()
		}
	}()

	wg.Add(2)
	go read(Stdout, stdoutPipe)
	go read(Stderr, stderrPipe)
	wg.Wait()
	close(drained)

	waitErr := cmd.Wait()
	o.setState(Finished)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		out.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("wait for %s: %w", o.cmd.Script, waitErr)
	}

	logger.Info("run finished", "script", o.cmd.Script, "exit_code", out.ExitCode, "lines", len(out.Lines))
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if out.ExitCode != 0 {
		return out, &ExitError{Code: out.ExitCode}
	}
	return out, nil
}

// splitByNewlineOrCR treats '\r' as a line break too so progress bars that
// redraw a line still arrive as separate lines.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
