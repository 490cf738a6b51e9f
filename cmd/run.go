package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"go.olrik.dev/migmon/internal/bot"
	"go.olrik.dev/migmon/internal/core"
	"go.olrik.dev/migmon/internal/journal"
	"go.olrik.dev/migmon/internal/keyring"
	"go.olrik.dev/migmon/internal/lock"
	"go.olrik.dev/migmon/internal/logging"
	"go.olrik.dev/migmon/internal/monitor"
	"go.olrik.dev/migmon/internal/notify"
	"go.olrik.dev/migmon/internal/remote"
	"go.olrik.dev/migmon/internal/rpc"
)

func NewRunCommand() *cobra.Command {
	var noNotify bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the migration monitor",
		Long: `Run the migration monitor in the foreground.

The monitor polls the remote server on a fixed interval, restarts the bot
when it dies or stalls, forwards bot log events as notifications, and
halts on critical errors. Stop it with Ctrl+C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.Config
			dotenv := core.LoadDotenv(".env")

			seed := resolveSecret(dotenv, "SIGNER_SEED", true)
			if seed == "" {
				fmt.Println("ERROR: SIGNER_SEED not found in .env, environment, or keyring")
				return fmt.Errorf("missing SIGNER_SEED")
			}
			account := resolveSecret(dotenv, "SIGNER_ACCOUNT", false)
			if account == "" {
				fmt.Println("ERROR: SIGNER_ACCOUNT not found in .env or environment")
				return fmt.Errorf("missing SIGNER_ACCOUNT")
			}
			cfg.Account = account

			fmt.Printf("Using account: %s\n", abbreviate(account))
			fmt.Printf("Targeting server: %s\n", cfg.Server.Host)

			// Singleton guard comes before any logging so a losing
			// instance leaves no trace in the local log.
			instanceLock, err := lock.Acquire(cfg.Paths.LockFile)
			if err != nil {
				fmt.Println("Another monitor instance is already running")
				return err
			}
			defer instanceLock.Release()

			closeLog, err := logging.Setup(cfg.Paths.LocalLog, cfg.Verbose)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.Info("=== Migration Monitor Started ===")

			var events monitor.Journal
			jrnl, err := journal.Open(cfg.Paths.Journal)
			if err != nil {
				slog.Warn(fmt.Sprintf("Journal unavailable, continuing without it: %v", err))
			} else {
				defer jrnl.Close()
				events = jrnl
			}

			var notifier notify.Notifier = notify.NewDesktop("migmon")
			if noNotify {
				notifier = notify.Nop{}
			}

			exec := remote.NewSSHExecutor(cfg.Server)
			oracle := rpc.NewClient(exec, cfg.RPC.HTTPEndpoint)
			tracker := monitor.NewTracker(oracle, account)
			logs := monitor.NewLogWatcher(exec, cfg.Paths.RemoteLog, cfg.Monitoring.JokeMarker)
			bots := bot.NewSupervisor(exec, cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watchConfig(ctx, cfg.ConfigPath)

			loop := monitor.New(cfg, exec, bots, tracker, logs, notifier, events, seed)
			return loop.Run(ctx)
		},
	}
	runCmd.Flags().BoolVar(&noNotify, "no-notify", false, "disable desktop notifications")

	return runCmd
}

// resolveSecret looks a secret up in the .env file, then the
// environment, then (for the seed) the OS keyring.
func resolveSecret(dotenv map[string]string, key string, tryKeyring bool) string {
	if v := dotenv[key]; v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	if tryKeyring {
		if v, err := keyring.GetSeed(); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// abbreviate shortens an account id for display.
func abbreviate(account string) string {
	if len(account) <= 18 {
		return account
	}
	return fmt.Sprintf("%s...%s", account[:10], account[len(account)-8:])
}

// watchConfig logs a notice when the config file changes while the
// monitor is running. The loaded snapshot is immutable; changes only
// apply on restart.
func watchConfig(ctx context.Context, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug(fmt.Sprintf("Config watch unavailable: %v", err))
		return
	}

	configFile := core.ConfigFilePath(configPath)
	// Watch the directory; editors replace files on save.
	if err := watcher.Add(filepath.Dir(configFile)); err != nil {
		slog.Debug(fmt.Sprintf("Config watch unavailable: %v", err))
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != configFile {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					slog.Warn("Config file changed; restart the monitor to apply it")
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}
