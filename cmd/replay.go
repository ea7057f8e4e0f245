package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/luacover/internal/domain"
	m "gooze.dev/pkg/luacover/internal/model"
)

const replayLongDescription = `Feed a recorded event trace to the tracker. Each trace line is
"<line|call|return> <line> <file>"; blank lines and lines starting with # are
skipped. Files named by the paths are analyzed up front, others on first use.

` + pathPatternsHelp

var replayShardFlag string
var replayBufferFlag int

// replayCmd represents the replay command.
var replayCmd = newReplayCmd()

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <trace> [paths...]",
		Short: "Record coverage from an event trace",
		Long:  replayLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shardIndex, totalShards := parseShardFlag(replayShardFlag)

			return workflow.Replay(cmd.Context(), domain.ReplayArgs{
				ScanArgs:        scanArgs(args[1:]),
				EngineArgs:      engineArgs(),
				Trace:           m.Path(args[0]),
				Reports:         m.Path(viper.GetString(outputFlagName)),
				ShardIndex:      shardIndex,
				TotalShardCount: totalShards,
				Buffer:          viper.GetInt(bufferConfigKey),
			})
		},
	}

	cmd.Flags().IntVar(&replayBufferFlag, bufferFlagName, viper.GetInt(bufferConfigKey), "size of the event channel")
	bindFlagToConfig(cmd.Flags().Lookup(bufferFlagName), bufferConfigKey)
	cmd.Flags().StringVarP(&replayShardFlag, "shard", "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")

	return cmd
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
