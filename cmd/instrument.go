package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/luacover/internal/domain"
	m "gooze.dev/pkg/luacover/internal/model"
)

var instrumentDiffFlag bool
var instrumentOutputDirFlag string

// instrumentCmd represents the instrument command.
var instrumentCmd = newInstrumentCmd()

func newInstrumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instrument <file>",
		Short: "Print the instrumented source of a Lua file",
		Long: `Rewrite a Lua file the way run loads it, with a tracking call on every
executable line, and print the result or a unified diff against the original.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Instrument(cmd.Context(), domain.InstrumentArgs{
				EngineArgs: domain.EngineArgs{
					UseCache: !viper.GetBool(noCacheFlagName),
					CacheDir: m.Path(cacheDir()),
				},
				File:      m.Path(args[0]),
				Diff:      instrumentDiffFlag,
				OutputDir: m.Path(instrumentOutputDirFlag),
			})
		},
	}

	cmd.Flags().BoolVarP(&instrumentDiffFlag, "diff", "d", false, "print a unified diff instead of the rewritten source")
	cmd.Flags().StringVar(&instrumentOutputDirFlag, "output-dir", "", "write the rewritten file under this directory")

	return cmd
}

func init() {
	rootCmd.AddCommand(instrumentCmd)
}
