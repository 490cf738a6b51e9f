package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/migmon/internal/core"
	"go.olrik.dev/migmon/internal/journal"
)

func NewHistoryCommand() *cobra.Command {
	var limit int
	var showProgress bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent monitor events from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jrnl, err := journal.Open(core.Config.Paths.Journal)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			if showProgress {
				samples, err := jrnl.RecentProgress(limit)
				if err != nil {
					return err
				}
				if len(samples) == 0 {
					fmt.Println("No progress recorded yet")
					return nil
				}
				for _, s := range samples {
					fmt.Printf("%s  nonce=%d (+%d) | keys=%d (-%d)\n",
						s.Timestamp.Format(time.DateTime), s.Nonce, s.NonceDiff, s.Keys, s.KeysDiff)
				}
				return nil
			}

			events, err := jrnl.RecentEvents(limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events recorded yet")
				return nil
			}
			for _, e := range events {
				fmt.Printf("%s  %-10s %s\n",
					e.Timestamp.Format(time.DateTime), e.EventType, e.Details)
			}
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress samples instead of events")

	return historyCmd
}
