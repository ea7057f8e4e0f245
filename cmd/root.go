// Package cmd provides the root command and CLI setup for luacover.
package cmd

import (
	"fmt"
	"os"

	"fortio.org/safecast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gooze.dev/pkg/luacover/internal/adapter"
	"gooze.dev/pkg/luacover/internal/controller"
	"gooze.dev/pkg/luacover/internal/domain"
	m "gooze.dev/pkg/luacover/internal/model"
)

var fsAdapter adapter.SourceFSAdapter
var parserAdapter adapter.LuaParserAdapter
var luaRuntime adapter.LuaRuntimeAdapter
var reportStore adapter.ReportStore
var eventReader adapter.EventReader
var workflow domain.Workflow
var ui controller.UI

// Root-level flags shared by every command.
var (
	reportsOutputDirFlag string
	noCacheFlag          bool
	includePatterns      []string
	excludePatterns      []string
	verboseFlag          bool
	logFileFlag          string
)

func init() {
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	parserAdapter = adapter.NewLocalLuaParserAdapter()
	luaRuntime = adapter.NewLocalLuaRuntimeAdapter()
	reportStore = adapter.NewLocalReportStore()
	eventReader = adapter.NewTraceEventReader()
	workflow = domain.NewWorkflow(
		fsAdapter,
		parserAdapter,
		luaRuntime,
		reportStore,
		eventReader,
		ui,
	)
}

const pathPatternsHelp = `Paths select the Lua files to cover:
  - ./...          recursively scan current directory
  - ./src/...      recursively scan src directory
  - ./lib ./src    scan multiple directories (not recursive)
  - ./lib/util.lua a single file`

const rootLongDescription = `luacover measures which lines, functions, blocks and conditions of
your Lua sources ran, and tells executed code apart from covered code.

` + pathPatternsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "luacover",
		Short:         "Lua source coverage tool",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for coverage data",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVar(&noCacheFlag, noCacheFlagName, viper.GetBool(noCacheFlagName), "disable the instrumentation cache")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(noCacheFlagName), noCacheFlagName)

	cmd.PersistentFlags().StringArrayVarP(&includePatterns, includeFlagName, "i", viper.GetStringSlice(includeConfigKey), "include files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(includeFlagName), includeConfigKey)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	cmd.PersistentFlags().StringVar(&logFileFlag, logFileFlagName, viper.GetString(logFilenameKey), "log file path")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(logFileFlagName), logFilenameKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}

// scanArgs builds the file selection shared by analyze, run and replay.
func scanArgs(args []string) domain.ScanArgs {
	return domain.ScanArgs{
		Paths:   parsePaths(args),
		Include: viper.GetStringSlice(includeConfigKey),
		Exclude: viper.GetStringSlice(excludeConfigKey),
	}
}

// engineArgs builds the engine settings from flags and config.
func engineArgs() domain.EngineArgs {
	return domain.EngineArgs{
		Strategy: m.Strategy(viper.GetString(strategyConfigKey)),
		Hook:     viper.GetStringSlice(hookConfigKey),
		Threads:  viper.GetInt(runParallelConfigKey),
		UseCache: !viper.GetBool(noCacheFlagName),
		CacheDir: m.Path(cacheDir()),
	}
}

// parseShardFlag reads INDEX/TOTAL; anything invalid means a single shard.
func parseShardFlag(shard string) (uint, uint) {
	if shard == "" {
		return 0, 1
	}

	var index, total int

	_, err := fmt.Sscanf(shard, "%d/%d", &index, &total)
	if err != nil || total <= 0 || index < 0 || index >= total {
		return 0, 1
	}

	i, err := safecast.Conv[uint](index)
	if err != nil {
		return 0, 1
	}

	n, err := safecast.Conv[uint](total)
	if err != nil {
		return 0, 1
	}

	return i, n
}

// splitScriptArgs separates `script [paths...] -- [script args...]`.
func splitScriptArgs(cmd *cobra.Command, args []string) ([]string, []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}

	return args[:dash], args[dash:]
}
