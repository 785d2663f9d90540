package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/config"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags.
var version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string

	// cfg is resolved once per invocation by the root pre-run hook.
	cfg = config.Default()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the HCL config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

var rootCmd = &cobra.Command{
	Use:           "alchemy",
	Short:         "Edit training hyperparameters in place and run training scripts",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		loaded, err := config.Load(ctx, configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		cmd.SetContext(ctxlog.WithLogger(ctx, logger))
		return nil
	},
}

// Execute runs the root command. Ctrl-C cancels the command context, which
// stops a running training script.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openFile returns a filesystem rooted at the directory holding path and the
// file's name within it.
func openFile(path string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

// parseKind resolves --kind against the feature gates.
func parseKind(s string) (api.Kind, error) {
	kind, err := api.ParseKind(s)
	if err != nil {
		return "", err
	}
	if kind == api.KindDict && !cfg.Features.DictParams {
		return "", errors.New("dict parameters are disabled (features.dict_params = false)")
	}
	return kind, nil
}
