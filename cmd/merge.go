package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/luacover/internal/domain"
	m "gooze.dev/pkg/luacover/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge sharded coverage data",
		Long: `Combine the shard_*.yaml files written by sharded runs in the output
directory into a single coverage.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.Merge(cmd.Context(), domain.MergeArgs{
				Reports: m.Path(viper.GetString(outputFlagName)),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
