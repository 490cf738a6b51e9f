// Package bot starts, stops, and checks the migration bot on the remote
// host. The bot is opaque to the monitor: it only gets launched, killed,
// and observed through pgrep and its log file.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.olrik.dev/migmon/internal/core"
	"go.olrik.dev/migmon/internal/remote"
)

const (
	// processTimeout bounds pgrep/pkill round trips.
	processTimeout = 10 * time.Second
	// launchTimeout bounds the start command itself.
	launchTimeout = 15 * time.Second
	// settleTime is how long the bot gets before the post-launch
	// liveness check.
	settleTime = 3 * time.Second
)

// Supervisor manages the bot process lifecycle on the remote host.
type Supervisor struct {
	exec remote.Executor
	cfg  *core.Configuration

	// Settle overrides settleTime; tests shorten it.
	Settle time.Duration
}

// NewSupervisor creates a Supervisor for the configured bot.
func NewSupervisor(exec remote.Executor, cfg *core.Configuration) *Supervisor {
	return &Supervisor{exec: exec, cfg: cfg, Settle: settleTime}
}

// IsRunning reports whether a bot process exists on the remote host.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	ok, output := s.exec.Run(ctx,
		fmt.Sprintf("pgrep -f %s", s.cfg.Bot.ProcessName()),
		processTimeout, remote.DefaultRetries)
	return ok && output != ""
}

// Stop sends a best-effort kill to all bot processes. Termination is not
// confirmed; the next liveness check will notice survivors.
func (s *Supervisor) Stop(ctx context.Context) {
	s.exec.Run(ctx,
		fmt.Sprintf("pkill -f %s", s.cfg.Bot.ProcessName()),
		processTimeout, remote.DefaultRetries)
	slog.Info("Bot stopped")
}

// Start launches the bot with the signer seed handed off through a
// short-lived remote file.
//
// The seed travels over the SSH channel's stdin into a 0600 file, the
// launched bot reads it into its environment and deletes the file
// immediately. The seed never appears in a process argument list, local
// or remote, and never persists beyond the handoff file. This is a
// security contract; do not simplify it into an env or argv pass.
func (s *Supervisor) Start(ctx context.Context, seed string) bool {
	slog.Info("Starting bot on remote...")

	writeCmd := fmt.Sprintf("umask 077 && cat > %s", s.cfg.Paths.SeedFile)
	if ok, _ := s.exec.RunInput(ctx, writeCmd, seed+"\n", s.cfg.Server.SSHTimeout, remote.DefaultRetries); !ok {
		slog.Error("Failed to write seed file")
		return false
	}

	startCmd := fmt.Sprintf(
		"cd ~ && nohup bash -c '"+
			"export SIGNER_SEED=\"$(cat %s)\"; "+
			"rm -f %s; "+
			"%s %s 2>&1"+
			"' > %s 2>&1 &",
		s.cfg.Paths.SeedFile,
		s.cfg.Paths.SeedFile,
		s.cfg.Bot.Binary, s.cfg.Bot.Args,
		s.cfg.Paths.RemoteLog,
	)

	if ok, _ := s.exec.Run(ctx, startCmd, launchTimeout, remote.DefaultRetries); !ok {
		slog.Error("Failed to start bot")
		return false
	}

	select {
	case <-time.After(s.Settle):
	case <-ctx.Done():
		return false
	}

	if !s.IsRunning(ctx) {
		slog.Error("Bot failed to start")
		return false
	}

	slog.Info("Bot started successfully")
	return true
}
