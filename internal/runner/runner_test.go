package runner

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentic-research/alchemy/internal/pathtmpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script writes a shell script standing in for the training entry point.
// It receives the same flags a Python script would: $2 is the source path,
// $4 the target path and $6 the subset flag.
func script(t *testing.T, body string) Command {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "main.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return Command{Interpreter: "/bin/sh", Script: path, Dir: dir}
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) hook(stream Stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(stream)+": "+line)
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestCommand_Args(t *testing.T) {
	c := Command{Script: "main.py"}
	assert.Equal(t,
		[]string{"main.py", "--source_path", "/tr", "--target_path", "/te", "--subset", "True"},
		c.Args("/tr", "/te"))
}

func TestNew_Defaults(t *testing.T) {
	o := New(Command{}, Hooks{})
	assert.Equal(t, DefaultInterpreter, o.cmd.Interpreter)
	assert.Equal(t, DefaultScript, o.cmd.Script)
	assert.Equal(t, Idle, o.State())
}

func TestSingle_StreamsAndParsesMetrics(t *testing.T) {
	cmd := script(t, `echo "source=$2 target=$4 subset=$6"
echo "Epoch: 1"
echo "loss = 0.5"
echo "Epoch: 2"
echo "loss = 0.3"
echo "warning: slow" >&2
`)
	rec := &lineRecorder{}
	var states []State
	o := New(cmd, Hooks{Line: rec.hook, State: func(s State) { states = append(states, s) }})

	res, out, err := o.Single(context.Background(), "/data/train", "/data/test")
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, []int{1, 2}, res.Epochs)
	loss, ok := res.Get("loss")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.3}, loss)

	lines := rec.all()
	assert.Contains(t, lines, "stdout: source=/data/train target=/data/test subset=True")
	assert.Contains(t, lines, "stderr: warning: slow")
	assert.Len(t, out.Lines, 6)

	assert.Equal(t, []State{Running, Finished, Idle}, states)
	assert.Equal(t, Idle, o.State())
}

func TestSingle_NonZeroExit(t *testing.T) {
	cmd := script(t, "echo 'Traceback: boom' >&2\nexit 3\n")
	o := New(cmd, Hooks{})

	_, out, err := o.Single(context.Background(), "/a", "/b")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, []string{"Traceback: boom"}, out.Lines)
	assert.Equal(t, Idle, o.State())
}

func TestSingle_DataNotLoaded(t *testing.T) {
	o := New(Command{}, Hooks{})
	_, _, err := o.Single(context.Background(), "/a", "")
	assert.ErrorIs(t, err, ErrDataNotLoaded)
	assert.Equal(t, Idle, o.State())
}

func TestSingle_InterpreterMissing(t *testing.T) {
	o := New(Command{Interpreter: "/nonexistent/python", Script: "main.py"}, Hooks{})
	_, _, err := o.Single(context.Background(), "/a", "/b")
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestSingle_RejectsConcurrentRun(t *testing.T) {
	cmd := script(t, "sleep 1\n")
	o := New(cmd, Hooks{})

	done := make(chan error, 1)
	go func() {
		_, _, err := o.Single(context.Background(), "/a", "/b")
		done <- err
	}()

	require.Eventually(t, func() bool { return o.State() == Running }, 5*time.Second, 10*time.Millisecond)
	_, _, err := o.Single(context.Background(), "/a", "/b")
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
}

func TestSingle_ContextCancelKillsScript(t *testing.T) {
	// exec so the killed process is the one holding the pipes.
	cmd := script(t, "echo started\nexec sleep 30\n")
	o := New(cmd, Hooks{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := o.Single(ctx, "/a", "/b")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestSingle_CancelWithLeftoverChildHoldingPipes(t *testing.T) {
	// The background sleep inherits stdout and outlives the killed shell.
	cmd := script(t, "sleep 30 &\necho started\nwait\n")
	cmd.WaitDelay = 100 * time.Millisecond
	o := New(cmd, Hooks{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := o.Single(ctx, "/a", "/b")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, Idle, o.State())
}

func TestNew_DefaultWaitDelay(t *testing.T) {
	o := New(Command{}, Hooks{})
	assert.Equal(t, DefaultWaitDelay, o.cmd.WaitDelay)
}

func TestBatch_IteratesTemplatedPairs(t *testing.T) {
	cmd := script(t, `echo "train=$2"
echo "test=$4"
`)
	rec := &lineRecorder{}
	var iterations []int
	o := New(cmd, Hooks{
		Line: rec.hook,
		BeforeRun: func(_ context.Context, i int, _ pathtmpl.Pair) error {
			iterations = append(iterations, i)
			return nil
		},
	})

	pairs, err := pathtmpl.NewPairs("/data/run_3/train", "/data/run_3/test", 2)
	require.NoError(t, err)

	res, err := o.Batch(context.Background(), pairs)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, []pathtmpl.Pair{
		{Train: "/data/run_1/train", Test: "/data/run_1/test"},
		{Train: "/data/run_2/train", Test: "/data/run_2/test"},
	}, res.Runs)
	assert.Equal(t, []int{0, 1}, iterations)
	assert.Equal(t, []string{
		"stdout: train=/data/run_1/train", "stdout: test=/data/run_1/test",
		"stdout: train=/data/run_2/train", "stdout: test=/data/run_2/test",
	}, rec.all())
}

func TestBatch_StopsOnFailure(t *testing.T) {
	cmd := script(t, `case "$2" in
  *run_2*) exit 1 ;;
esac
echo ok
`)
	o := New(cmd, Hooks{})
	pairs, err := pathtmpl.NewPairs("/d/run_1/a", "/d/run_1/b", 3)
	require.NoError(t, err)

	res, err := o.Batch(context.Background(), pairs)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.False(t, res.Completed)
	assert.Len(t, res.Runs, 2)
	assert.Equal(t, 1, pairs.Train.Len(), "batch is not advanced past a failure")
}

func TestBatch_BeforeRunErrorStops(t *testing.T) {
	cmd := script(t, "echo never\n")
	o := New(cmd, Hooks{BeforeRun: func(context.Context, int, pathtmpl.Pair) error {
		return errors.New("save failed")
	}})
	pairs, err := pathtmpl.NewPairs("/d/1", "/e/1", 1)
	require.NoError(t, err)

	res, err := o.Batch(context.Background(), pairs)
	require.Error(t, err)
	assert.Empty(t, res.Runs)
}

func TestBatch_EmptyPairs(t *testing.T) {
	o := New(Command{}, Hooks{})
	_, err := o.Batch(context.Background(), &pathtmpl.Pairs{})
	assert.ErrorIs(t, err, ErrDataNotLoaded)
}

func TestSplitByNewlineOrCR(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\r\nprogress 10%\rprogress 20%\nlast"))
	sc.Split(splitByNewlineOrCR)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Equal(t, []string{"a", "progress 10%", "progress 20%", "last"}, got)
}

func TestOutput_Text(t *testing.T) {
	out := &Output{Lines: []string{"Epoch: 1", "loss = 0.5"}}
	assert.Equal(t, "Epoch: 1\nloss = 0.5", out.Text())
	var nilOut *Output
	assert.Equal(t, "", nilOut.Text())
}
