package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(globalFlags, &StartFlags{}),
		createStatusCommand(globalFlags, &APIFlags{}),
		createWakeCommand(globalFlags, &APIFlags{}),
		createStopCommand(globalFlags, &StopFlags{}),
		createConfigCommand(globalFlags, &ConfigGenerateFlags{}),
		createAuthCommand(&HashPasswordFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "dozer",
		Short: "Put your game server to rest when idle",
		Long: `dozer sits in front of a Minecraft server. It keeps the server stopped or
frozen while nobody plays, starts it when a player connects and puts it back
to sleep after a period of inactivity.

Examples:
  dozer config generate            # write dozer.toml
  dozer start                      # run the proxy
  dozer status                     # ask a running dozer for its state`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (default dozer.toml)")
	return root
}
