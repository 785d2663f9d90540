package cmd

import (
	"fmt"
	"os"

	"github.com/agentic-research/alchemy/internal/editor"
	"github.com/agentic-research/alchemy/internal/mcpserver"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the parameter and metrics tools over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		srv := mcpserver.New(osfs.New(wd), mcpserver.Options{
			Root: wd,
			Editor: editor.Options{
				Strategy: cfg.Strategy(),
				Validate: cfg.Rewrite.ValidateWrites,
			},
			DictParams: cfg.Features.DictParams,
		})
		return srv.ServeStdio(cmd.Context(), version)
	},
}
