package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/extract"
	"github.com/agentic-research/alchemy/internal/linter"
	"github.com/agentic-research/alchemy/internal/report"
	"github.com/agentic-research/alchemy/internal/rewrite"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-git/go-billy/v5/util"
	"github.com/spf13/cobra"
)

var (
	paramsKind     string
	paramsJSON     bool
	paramsQuery    string
	paramsZen      []string
	paramsCounter  int
	paramsStrategy string
	paramsValidate bool
)

func init() {
	for _, c := range []*cobra.Command{paramsListCmd, paramsSetCmd, paramsLintCmd} {
		c.Flags().StringVarP(&paramsKind, "kind", "k", string(api.KindArgparse), "Declaration shape: argparse, config or dict")
		c.Flags().BoolVar(&paramsJSON, "json", false, "Print JSON")
		c.Flags().StringVar(&paramsQuery, "query", "", "JSONPath filter applied to the JSON output")
	}
	paramsSetCmd.Flags().StringSliceVar(&paramsZen, "zen", nil, "Parameters whose digit runs are replaced with the counter")
	paramsSetCmd.Flags().IntVar(&paramsCounter, "counter", 0, "Value substituted into --zen parameters")
	paramsSetCmd.Flags().StringVar(&paramsStrategy, "strategy", "", "Rewrite strategy: splice or line (default from config)")
	paramsSetCmd.Flags().BoolVar(&paramsValidate, "validate", false, "Refuse to write a result that no longer parses")

	paramsCmd.AddCommand(paramsListCmd, paramsSetCmd, paramsLintCmd)
	rootCmd.AddCommand(paramsCmd)
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect and rewrite the hyperparameters declared in a script",
}

var paramsListCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List the parameters declared in a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(paramsKind)
		if err != nil {
			return err
		}
		fsys, name, err := openFile(args[0])
		if err != nil {
			return err
		}
		params, _, err := extract.File(cmd.Context(), fsys, name, kind)
		if err != nil {
			return err
		}
		if paramsJSON || paramsQuery != "" {
			return printDoc(cmd.OutOrStdout(), report.Params(params), paramsQuery)
		}
		printParamTable(cmd.OutOrStdout(), params)
		return nil
	},
}

var paramsSetCmd = &cobra.Command{
	Use:   "set [file] [name=value]...",
	Short: "Rewrite parameter values in place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := parseKind(paramsKind)
		if err != nil {
			return err
		}
		strategy := cfg.Strategy()
		if paramsStrategy != "" {
			if strategy, err = rewrite.ParseStrategy(paramsStrategy); err != nil {
				return err
			}
		}
		if len(paramsZen) > 0 && !cfg.Features.BatchMode {
			return errors.New("--zen requires features.batch_mode")
		}

		fsys, name, err := openFile(args[0])
		if err != nil {
			return err
		}
		sess, err := editor.Open(ctx, fsys, name, kind, editor.Options{
			Strategy: strategy,
			Validate: paramsValidate || cfg.Rewrite.ValidateWrites,
		})
		if err != nil {
			return err
		}
		sess.SetCounter(paramsCounter)

		for _, kv := range args[1:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("expected name=value, got %q", kv)
			}
			if err := sess.Set(key, value); err != nil {
				return err
			}
		}
		for _, z := range paramsZen {
			if err := sess.SetZen(z, true); err != nil {
				return err
			}
		}

		res, err := sess.Save(ctx)
		if err != nil {
			return err
		}
		for _, s := range res.Skipped {
			ctxlog.FromContext(ctx).Warn("parameter not rewritten", "name", s, "file", args[0])
		}
		if paramsJSON || paramsQuery != "" {
			return printDoc(cmd.OutOrStdout(), report.Save(args[0], res), paramsQuery)
		}
		lines := make([]string, len(res.Changed))
		for i, row := range res.Changed {
			lines[i] = fmt.Sprint(row + 1)
		}
		if len(lines) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no changes\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: rewrote line(s) %s\n", args[0], strings.Join(lines, ", "))
		return nil
	},
}

var paramsLintCmd = &cobra.Command{
	Use:   "lint [file]",
	Short: "Report declarations that cannot be edited reliably",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(paramsKind)
		if err != nil {
			return err
		}
		fsys, name, err := openFile(args[0])
		if err != nil {
			return err
		}
		src, err := util.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		diags, err := linter.Lint(cmd.Context(), src, name, kind)
		if err != nil {
			return err
		}

		if paramsJSON || paramsQuery != "" {
			if err := printDoc(cmd.OutOrStdout(), report.Diagnostics(diags), paramsQuery); err != nil {
				return err
			}
		} else {
			for _, d := range diags {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", args[0], d)
			}
		}

		errs := 0
		for _, d := range diags {
			if d.Severity == linter.Error {
				errs++
			}
		}
		if errs > 0 {
			return fmt.Errorf("%d declaration(s) cannot be edited", errs)
		}
		return nil
	},
}

func printDoc(w io.Writer, doc any, query string) error {
	out, err := report.Render(doc, query)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func printParamTable(w io.Writer, params []api.Param) {
	if len(params) == 0 {
		fmt.Fprintln(w, "no parameters found")
		return
	}
	rows := make([][]string, len(params))
	for i, p := range params {
		typ := string(p.Value.Type)
		if p.DeclaredType != "" {
			typ = p.DeclaredType
		}
		note := p.Help
		if p.Value.ReadOnly() {
			note = "read-only: " + p.Value.Raw
		}
		rows[i] = []string{fmt.Sprint(p.Line + 1), p.Name, p.Value.Text, typ, note}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LINE", "NAME", "VALUE", "TYPE", "NOTE").
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}
