package cmd

import (
	"errors"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/tui"
	"github.com/spf13/cobra"
)

var (
	editKind    string
	editCounter int
)

func init() {
	editCmd.Flags().StringVarP(&editKind, "kind", "k", string(api.KindArgparse), "Declaration shape: argparse, config or dict")
	editCmd.Flags().IntVar(&editCounter, "counter", 0, "Initial value substituted into zen rows")
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit [file]",
	Short: "Edit a script's parameters in an interactive form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stdinIsTTY() {
			return errors.New("edit requires an interactive terminal (TTY)")
		}
		kind, err := parseKind(editKind)
		if err != nil {
			return err
		}
		fsys, name, err := openFile(args[0])
		if err != nil {
			return err
		}
		sess, err := editor.Open(cmd.Context(), fsys, name, kind, editor.Options{
			Strategy: cfg.Strategy(),
			Validate: cfg.Rewrite.ValidateWrites,
		})
		if err != nil {
			return err
		}
		sess.SetCounter(editCounter)
		return tui.RunForm(cmd.Context(), sess, tui.FormOptions{BatchMode: cfg.Features.BatchMode})
	},
}
