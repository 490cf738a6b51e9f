package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/migmon/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "migmon",
		Short: "Migmon - Migration Monitor",
		Long: `Migmon - Migration Monitor

Watches a state-migration bot running on a remote server, restarts it on
failure or stall, and forwards progress and errors as notifications.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if verbose > 0 {
				cfg.Verbose = verbose
			}
			core.Config = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewRunCommand(),
		NewStatusCommand(),
		NewHistoryCommand(),
		NewSeedCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
