package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/migmon/internal/bot"
	"go.olrik.dev/migmon/internal/core"
	"go.olrik.dev/migmon/internal/journal"
	"go.olrik.dev/migmon/internal/monitor"
	"go.olrik.dev/migmon/internal/remote"
	"go.olrik.dev/migmon/internal/rpc"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a one-shot status of the remote migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.Config
			ctx := context.Background()

			exec := remote.NewSSHExecutor(cfg.Server)
			fmt.Printf("Server:  %s", cfg.Server.Host)
			if ok, _ := exec.Run(ctx, "echo ok", 5*time.Second, remote.DefaultRetries); !ok {
				fmt.Printf(" (unreachable)\n")
				return fmt.Errorf("cannot reach %s", cfg.Server.Host)
			}
			fmt.Printf(" (connected)\n")

			bots := bot.NewSupervisor(exec, cfg)
			if bots.IsRunning(ctx) {
				fmt.Println("Bot:     running")
			} else {
				fmt.Println("Bot:     not running")
			}

			dotenv := core.LoadDotenv(".env")
			account := resolveSecret(dotenv, "SIGNER_ACCOUNT", false)
			oracle := rpc.NewClient(exec, cfg.RPC.HTTPEndpoint)
			tracker := monitor.NewTracker(oracle, account)
			sample := tracker.Sample(ctx)
			if sample.HasNonce {
				fmt.Printf("Nonce:   %d\n", sample.Nonce)
			} else {
				fmt.Println("Nonce:   unknown")
			}
			if sample.HasKeys {
				fmt.Printf("Keys:    %d remaining\n", sample.Keys)
			} else {
				fmt.Println("Keys:    unknown")
			}

			// Last recorded monitor event, if a journal exists.
			if jrnl, err := journal.Open(cfg.Paths.Journal); err == nil {
				defer jrnl.Close()
				if events, err := jrnl.RecentEvents(1); err == nil && len(events) > 0 {
					e := events[0]
					fmt.Printf("Last event: %s %s (%s)\n",
						e.EventType, e.Details, e.Timestamp.Format(time.DateTime))
				}
			}

			return nil
		},
	}
}
