package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.olrik.dev/migmon/internal/keyring"
)

func NewSeedCommand() *cobra.Command {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Manage the signer seed in the OS keyring",
		Long: `Manage the signer seed in the OS keyring.

At startup the monitor resolves SIGNER_SEED from the .env file, then the
environment, then the keyring. Storing the seed here keeps it out of
plaintext files.`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the signer seed (prompted, no echo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := keyring.PromptSeed()
			if err != nil {
				return err
			}
			if seed == "" {
				return fmt.Errorf("empty seed, nothing stored")
			}
			if err := keyring.SetSeed(seed); err != nil {
				return err
			}
			fmt.Println("Seed stored in keyring")
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the signer seed from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keyring.DeleteSeed(); err != nil {
				return err
			}
			fmt.Println("Seed removed from keyring")
			return nil
		},
	}

	seedCmd.AddCommand(setCmd, clearCmd)
	return seedCmd
}
