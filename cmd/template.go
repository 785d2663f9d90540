package cmd

import (
	"fmt"

	"github.com/agentic-research/alchemy/internal/pathtmpl"
	"github.com/spf13/cobra"
)

var (
	templateNum   int
	templateJSON  bool
	templateQuery string
)

func init() {
	templateCmd.Flags().IntVarP(&templateNum, "num", "n", 0, "Expand the template into this many paths")
	templateCmd.Flags().BoolVar(&templateJSON, "json", false, "Print JSON")
	templateCmd.Flags().StringVar(&templateQuery, "query", "", "JSONPath filter applied to the JSON output")
	rootCmd.AddCommand(templateCmd)
}

var templateCmd = &cobra.Command{
	Use:   "template [path]",
	Short: "Replace the digit runs of a dataset path with " + pathtmpl.Placeholder,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl := pathtmpl.Templatize(args[0])
		var paths []string
		if templateNum > 0 {
			var err error
			if paths, err = pathtmpl.Expand(tmpl, templateNum); err != nil {
				return err
			}
		}

		if templateJSON || templateQuery != "" {
			expanded := make([]any, len(paths))
			for i, p := range paths {
				expanded[i] = p
			}
			return printDoc(cmd.OutOrStdout(), map[string]any{"template": tmpl, "paths": expanded}, templateQuery)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tmpl)
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}
