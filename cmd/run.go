package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/luacover/internal/domain"
	m "gooze.dev/pkg/luacover/internal/model"
)

const runLongDescription = `Run a Lua script under coverage. Files selected by the paths (default:
current directory, recursively) are instrumented before the script loads
them; arguments after -- are passed to the script in its arg table.

` + pathPatternsHelp

var runParallelFlag int
var runShardFlag string
var runStrategyFlag string
var runHookPatterns []string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script> [paths...] [-- args...]",
		Short: "Run a Lua script and record coverage",
		Long:  runLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			args, scriptArgs := splitScriptArgs(cmd, args)
			if len(args) == 0 {
				return fmt.Errorf("%w: run needs a script before --", m.ErrValidation)
			}

			shardIndex, totalShards := parseShardFlag(runShardFlag)

			return workflow.Run(cmd.Context(), domain.RunArgs{
				ScanArgs:        scanArgs(args[1:]),
				EngineArgs:      engineArgs(),
				Script:          m.Path(args[0]),
				ScriptArgs:      scriptArgs,
				Reports:         m.Path(viper.GetString(outputFlagName)),
				ShardIndex:      shardIndex,
				TotalShardCount: totalShards,
				Stdout:          cmd.OutOrStdout(),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of files prepared in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)
	cmd.Flags().StringVar(&runStrategyFlag, strategyFlagName, viper.GetString(strategyConfigKey), "default strategy: instrument or hook")
	bindFlagToConfig(cmd.Flags().Lookup(strategyFlagName), strategyConfigKey)
	cmd.Flags().StringArrayVar(&runHookPatterns, hookFlagName, viper.GetStringSlice(hookConfigKey), "observe files matching regex through runtime hooks (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(hookFlagName), hookConfigKey)
	cmd.Flags().StringVarP(&runShardFlag, "shard", "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")
}
