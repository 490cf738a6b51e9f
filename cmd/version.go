package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.olrik.dev/migmon/internal/core"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the migmon version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("migmon %s\n", core.Version)
		},
	}
}
