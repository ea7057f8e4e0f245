package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

const luaRuntimeModule = "github.com/yuin/gopher-lua"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long:  "Displays the build version, the Go version and the embedded Lua runtime version.",
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok || info.Main.Version == "" {
				cmd.Println("version: unknown")
				return
			}

			cmd.Println("tool version\t", info.Main.Version)
			cmd.Println("go version\t", info.GoVersion)

			if lua := runtimeVersion(info); lua != "" {
				cmd.Println("lua runtime\t", lua)
			}
		},
	}
}

// runtimeVersion returns the gopher-lua version linked into the binary.
func runtimeVersion(info *debug.BuildInfo) string {
	for _, dep := range info.Deps {
		if dep.Path == luaRuntimeModule {
			return dep.Version
		}
	}

	return ""
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
