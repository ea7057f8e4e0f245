package cmd

import (
	"github.com/spf13/cobra"

	"gooze.dev/pkg/luacover/internal/domain"
)

const analyzeLongDescription = `Analyze Lua sources without running them and list, per file, the
executable lines, functions, blocks and conditions that coverage is measured on.

` + pathPatternsHelp

// analyzeCmd represents the analyze command.
var analyzeCmd = newAnalyzeCmd()

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Show the static code map of Lua sources",
		Long:  analyzeLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Analyze(cmd.Context(), domain.AnalyzeArgs{ScanArgs: scanArgs(args)})
		},
	}
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
