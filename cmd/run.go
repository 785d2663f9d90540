package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/pathtmpl"
	"github.com/agentic-research/alchemy/internal/runner"
	"github.com/agentic-research/alchemy/internal/tui"
	"github.com/spf13/cobra"
)

var (
	runTrain       string
	runTest        string
	runBatch       bool
	runNum         int
	runInterpreter string
	runScript      string
	runZenFile     string
	runZenKind     string
	runZen         []string
	runCounter     int
	runTUI         bool
	runNoPlot      bool
	runGrid        bool
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&runTrain, "train", "", "Training dataset path (--source_path)")
	f.StringVar(&runTest, "test", "", "Test dataset path (--target_path)")
	f.BoolVar(&runBatch, "batch", false, "Run once per templated dataset path pair")
	f.IntVarP(&runNum, "num", "n", 0, "Number of batch runs (default from config)")
	f.StringVar(&runInterpreter, "interpreter", "", "Interpreter (default from config)")
	f.StringVar(&runScript, "script", "", "Training script (default from config)")
	f.StringVar(&runZenFile, "zen-file", "", "Script whose zen parameters are incremented before each batch run")
	f.StringVar(&runZenKind, "zen-kind", "argparse", "Declaration shape of --zen-file")
	f.StringSliceVar(&runZen, "zen", nil, "Parameters of --zen-file to increment")
	f.IntVar(&runCounter, "counter", 0, "First value substituted into zen parameters")
	f.BoolVar(&runTUI, "tui", false, "Show the output in a live terminal view")
	f.BoolVar(&runNoPlot, "no-plot", false, "Do not plot metrics after a successful run")
	f.BoolVar(&runGrid, "grid", false, "Also draw one chart per metric")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the training script on a dataset pair, or a batch of pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newRunJob(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if runTUI {
			if !stdinIsTTY() {
				return errors.New("--tui requires an interactive terminal (TTY)")
			}
			return tui.RunView(ctx, job.command.Script, func(ctx context.Context, hooks runner.Hooks) (string, error) {
				var summary strings.Builder
				err := job.start(ctx, hooks, &summary)
				return summary.String(), err
			})
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		hooks := runner.Hooks{
			Line: func(s runner.Stream, line string) {
				if s == runner.Stderr {
					fmt.Fprintln(errOut, line)
					return
				}
				fmt.Fprintln(out, line)
			},
		}
		return job.start(ctx, hooks, out)
	},
}

// runJob is a validated run request.
type runJob struct {
	command runner.Command
	train   string
	test    string
	batch   bool
	num     int
	zen     *editor.Session
}

func newRunJob(cmd *cobra.Command) (*runJob, error) {
	job := &runJob{
		command: runner.Command{Interpreter: cfg.Run.Interpreter, Script: cfg.Run.Script},
		train:   runTrain,
		test:    runTest,
		batch:   cfg.Run.Batch,
		num:     cfg.Run.Num,
	}
	if runInterpreter != "" {
		job.command.Interpreter = runInterpreter
	}
	if runScript != "" {
		job.command.Script = runScript
	}
	if cmd.Flags().Changed("batch") {
		job.batch = runBatch
	}
	if runNum > 0 {
		job.num = runNum
	}
	if job.batch && !cfg.Features.BatchMode {
		return nil, errors.New("batch runs are disabled (features.batch_mode = false)")
	}

	if runZenFile == "" {
		return job, nil
	}
	if !job.batch {
		return nil, errors.New("--zen-file only applies to batch runs")
	}
	kind, err := parseKind(runZenKind)
	if err != nil {
		return nil, err
	}
	fsys, name, err := openFile(runZenFile)
	if err != nil {
		return nil, err
	}
	sess, err := editor.Open(cmd.Context(), fsys, name, kind, editor.Options{
		Strategy: cfg.Strategy(),
		Validate: cfg.Rewrite.ValidateWrites,
	})
	if err != nil {
		return nil, err
	}
	for _, z := range runZen {
		if err := sess.SetZen(z, true); err != nil {
			return nil, err
		}
	}
	sess.SetCounter(runCounter)
	job.zen = sess
	return job, nil
}

// start runs the job with hooks and writes the result summary to w.
func (j *runJob) start(ctx context.Context, hooks runner.Hooks, w io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	if !j.batch {
		orch := runner.New(j.command, hooks)
		res, _, err := orch.Single(ctx, j.train, j.test)
		if err != nil {
			return err
		}
		return printMetrics(w, res, runNoPlot, runGrid)
	}

	if j.zen != nil {
		notify := hooks.BeforeRun
		hooks.BeforeRun = func(ctx context.Context, i int, pair pathtmpl.Pair) error {
			saved, err := j.zen.Save(ctx)
			if err != nil {
				return err
			}
			logger.Info("zen parameters saved", "file", j.zen.Path(), "counter", saved.Counter)
			if notify != nil {
				return notify(ctx, i, pair)
			}
			return nil
		}
	}

	if j.train == "" || j.test == "" {
		return runner.ErrDataNotLoaded
	}
	pairs, err := pathtmpl.NewPairs(j.train, j.test, j.num)
	if err != nil {
		return err
	}
	orch := runner.New(j.command, hooks)
	res, err := orch.Batch(ctx, pairs)
	if err != nil {
		return fmt.Errorf("batch stopped after %d run(s): %w", len(res.Runs), err)
	}
	fmt.Fprintf(w, "batch complete: %d run(s)\n", len(res.Runs))
	return nil
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
