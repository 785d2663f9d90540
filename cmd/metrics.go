package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/agentic-research/alchemy/internal/plot"
	"github.com/agentic-research/alchemy/internal/report"
	"github.com/spf13/cobra"
)

var (
	metricsJSON   bool
	metricsQuery  string
	metricsNoPlot bool
	metricsGrid   bool
)

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Print JSON")
	metricsCmd.Flags().StringVar(&metricsQuery, "query", "", "JSONPath filter applied to the JSON output")
	metricsCmd.Flags().BoolVar(&metricsNoPlot, "no-plot", false, "Print the series without charts")
	metricsCmd.Flags().BoolVar(&metricsGrid, "grid", false, "Also draw one chart per metric")
	rootCmd.AddCommand(metricsCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [logfile|-]",
	Short: "Parse per-epoch metrics from training output and plot them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read training output: %w", err)
		}

		res := metrics.Parse(string(data))
		if metricsJSON || metricsQuery != "" {
			return printDoc(cmd.OutOrStdout(), report.Metrics(res), metricsQuery)
		}
		return printMetrics(cmd.OutOrStdout(), res, metricsNoPlot, metricsGrid)
	},
}

func printMetrics(w io.Writer, res metrics.Result, noPlot, grid bool) error {
	fmt.Fprintf(w, "epochs: %d\n", len(res.Epochs))
	for _, s := range res.Metrics {
		note := ""
		if len(s.Values) != len(res.Epochs) {
			note = " (not plotted: sample count differs from epoch count)"
		}
		fmt.Fprintf(w, "%s: %v%s\n", s.Name, s.Values, note)
	}
	if noPlot || len(res.Metrics) == 0 {
		return nil
	}
	if err := plot.Combined(w, res, plot.DefaultOptions); err != nil {
		return err
	}
	if grid {
		return plot.Grid(w, res, plot.DefaultOptions)
	}
	return nil
}
