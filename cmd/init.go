package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	m "gooze.dev/pkg/luacover/internal/model"
)

var (
	initForceFlag    bool
	initStrategyFlag string
)

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default luacover.yaml configuration file",
		Long: `Create a luacover.yaml in the current working directory holding the
current path filters, strategy, cache and tracker settings so they can be
edited manually. An existing file is kept unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetPath := filepath.Join(configFolderPath, configFileName)

			v, err := initialConfig(initStrategyFlag)
			if err != nil {
				return err
			}

			if initForceFlag {
				err = v.WriteConfigAs(targetPath)
			} else {
				err = v.SafeWriteConfigAs(targetPath)
			}

			if err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (strategy.default=%s)\n", targetPath, v.GetString(strategyConfigKey))

			return nil
		},
	}

	cmd.Flags().BoolVarP(&initForceFlag, "force", "f", false, "overwrite an existing configuration file")
	cmd.Flags().StringVar(&initStrategyFlag, strategyFlagName, "", "default strategy to record: instrument or hook")

	return cmd
}

// initialConfig snapshots the effective settings into a detached viper so
// the write does not carry flag bindings of other commands.
func initialConfig(strategy string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for _, key := range viper.AllKeys() {
		v.Set(key, viper.Get(key))
	}

	if strategy != "" {
		s, ok := m.ParseStrategy(strategy)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q: want instrument or hook", strategy)
		}

		v.Set(strategyConfigKey, string(s))
	}

	return v, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
