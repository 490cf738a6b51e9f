package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.olrik.dev/migmon/internal/core"
	"go.olrik.dev/migmon/internal/notify"
	"go.olrik.dev/migmon/internal/remote"
)

const (
	connectivityTimeout = 5 * time.Second
	// restartPause sits between stopping a stalled bot and starting it
	// again.
	restartPause = 2 * time.Second
)

// Phase is the supervision loop state.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhasePolling    Phase = "polling"
	PhaseRestarting Phase = "restarting"
	PhaseHalted     Phase = "halted"
)

// State is the mutable supervision state, owned exclusively by the loop.
// LastLogLine is non-decreasing for the process lifetime; the remote log
// is append-only.
type State struct {
	LastNonce   uint64
	LastKeys    uint64
	LastLogLine int
	StallCount  int
}

// BotSupervisor is the bot lifecycle as the loop sees it.
type BotSupervisor interface {
	IsRunning(ctx context.Context) bool
	Stop(ctx context.Context)
	Start(ctx context.Context, seed string) bool
}

// Sampler produces one progress sample per cycle.
type Sampler interface {
	Sample(ctx context.Context) Sample
}

// Watcher extracts events and critical markers from the bot log.
type Watcher interface {
	NewEvents(ctx context.Context, lastLine int) ([]string, int)
	DetectCritical(ctx context.Context) (CriticalEvent, bool)
}

// Journal records monitor lifecycle events. All writes are best-effort.
type Journal interface {
	LogEvent(eventType, details string) error
	LogProgress(nonce, keys uint64, nonceDiff, keysDiff int64) error
}

// Loop is the top-level supervision state machine. It owns the stall
// counter and restart policy; everything below it is a collaborator
// reached through an interface.
//
// The loop is strictly single-threaded: one tick at a time, every remote
// call synchronous and bounded by its own timeout. An interrupt is
// honored between ticks, never mid-call.
type Loop struct {
	cfg      *core.Configuration
	exec     remote.Executor
	bot      BotSupervisor
	tracker  Sampler
	logs     Watcher
	notifier notify.Notifier
	journal  Journal
	seed     string

	state State
	phase Phase

	// Interval and RestartPause are overridable for tests.
	Interval     time.Duration
	RestartPause time.Duration
}

// New assembles a supervision loop. journal may be nil.
func New(cfg *core.Configuration, exec remote.Executor, bot BotSupervisor, tracker Sampler, logs Watcher, notifier notify.Notifier, journal Journal, seed string) *Loop {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Loop{
		cfg:          cfg,
		exec:         exec,
		bot:          bot,
		tracker:      tracker,
		logs:         logs,
		notifier:     notifier,
		journal:      journal,
		seed:         seed,
		phase:        PhaseStarting,
		Interval:     cfg.Monitoring.CheckInterval,
		RestartPause: restartPause,
	}
}

// Phase returns the loop's current phase.
func (l *Loop) Phase() Phase {
	return l.phase
}

// State returns a copy of the current supervision state.
func (l *Loop) State() State {
	return l.state
}

// Run drives the loop until the context is canceled (user interrupt) or
// a critical event halts it. Both are clean exits; only a failed initial
// bot start is returned as an error. The caller owns the instance lock
// and releases it on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info(fmt.Sprintf("Monitoring %s", l.cfg.Server.Host))
	l.notifier.Notify("Monitor Started", fmt.Sprintf("Watching migration on %s", l.cfg.Server.Host), notify.UrgencyNormal, 5*time.Second)
	l.logEvent("started", l.cfg.Server.Host)

	if !l.bot.IsRunning(ctx) {
		if !l.bot.Start(ctx, l.seed) {
			l.phase = PhaseHalted
			return fmt.Errorf("failed to start bot on %s", l.cfg.Server.Host)
		}
	}

	// Baseline. Missing values start at zero; the first tick's fallback
	// handling takes over from there.
	initial := l.tracker.Sample(ctx)
	if initial.HasNonce {
		l.state.LastNonce = initial.Nonce
	}
	if initial.HasKeys {
		l.state.LastKeys = initial.Keys
	}
	slog.Info(fmt.Sprintf("Initial: nonce=%d, keys=%d", l.state.LastNonce, l.state.LastKeys))

	l.phase = PhasePolling
	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitor stopped by user")
			l.logEvent("stopped", "user interrupt")
			return nil
		case <-time.After(l.Interval):
		}

		if halted := l.Tick(ctx); halted {
			return nil
		}
	}
}

// Tick runs one polling cycle and reports whether the loop halted.
// Steps run strictly in order: connectivity, liveness, critical scan,
// event forwarding, progress. An early exit skips the later steps for
// this tick only; state committed by completed steps stays committed.
func (l *Loop) Tick(ctx context.Context) (halted bool) {
	// 1. Connectivity. Failure here is transport-stall, not
	// progress-stall: it must not consume the stall budget.
	if ok, _ := l.exec.Run(ctx, "echo ok", connectivityTimeout, remote.DefaultRetries); !ok {
		slog.Warn("SSH connection failed, retrying...")
		l.notifier.Notify("SSH Failed", fmt.Sprintf("Cannot reach %s", l.cfg.Server.Host), notify.UrgencyNormal, 5*time.Second)
		return false
	}

	// 2. Liveness.
	if !l.bot.IsRunning(ctx) {
		slog.Warn("Bot not running, restarting...")
		l.notifier.Notify("Bot Stopped", "Restarting bot...", notify.UrgencyNormal, 5*time.Second)
		l.logEvent("restart", "bot not running")
		l.phase = PhaseRestarting
		l.bot.Start(ctx, l.seed)
		l.phase = PhasePolling
		return false
	}

	// 3. Critical markers. Fatal to the loop: the bot is not restarted,
	// the condition may indicate danger in continuing.
	if event, found := l.logs.DetectCritical(ctx); found {
		l.notifier.Notify("CRITICAL", event.Message, notify.UrgencyCritical, 0)
		slog.Error(fmt.Sprintf("CRITICAL: %s - stopping monitor", event.Message))
		l.logEvent("critical", event.Message)
		l.phase = PhaseHalted
		return true
	}

	// 4. Forward new joke events, once each, never replayed.
	jokes, newOffset := l.logs.NewEvents(ctx, l.state.LastLogLine)
	l.state.LastLogLine = newOffset
	if len(jokes) > 0 {
		slog.Info(fmt.Sprintf("Forwarding %d dad joke(s)", len(jokes)))
	}
	for _, joke := range jokes {
		l.notifier.Notify("Dad Joke", joke, notify.UrgencyLow, 8*time.Second)
	}

	// 5. Progress.
	progress := Advance(l.state.LastNonce, l.state.LastKeys, l.tracker.Sample(ctx))
	slog.Info(fmt.Sprintf("nonce=%d (+%d) | keys=%d (-%d)", progress.Nonce, progress.NonceDiff, progress.Keys, progress.KeysDiff))
	if err := l.journal.LogProgress(progress.Nonce, progress.Keys, progress.NonceDiff, progress.KeysDiff); err != nil {
		slog.Debug(fmt.Sprintf("Failed to journal progress: %v", err))
	}

	// 6. Stall policy.
	if progress.Stalled() {
		l.state.StallCount++
		slog.Warn(fmt.Sprintf("No progress, stall count: %d/%d", l.state.StallCount, l.cfg.Monitoring.MaxStalls))

		if l.state.StallCount >= l.cfg.Monitoring.MaxStalls {
			slog.Warn("Too many stalls, restarting bot...")
			l.notifier.Notify("Restarting", "Bot stalled, restarting...", notify.UrgencyNormal, 5*time.Second)
			l.logEvent("restart", fmt.Sprintf("stalled %d checks", l.state.StallCount))
			l.phase = PhaseRestarting
			l.bot.Stop(ctx)
			select {
			case <-time.After(l.RestartPause):
			case <-ctx.Done():
			}
			l.bot.Start(ctx, l.seed)
			l.phase = PhasePolling
			l.state.StallCount = 0
		}
	} else {
		l.state.StallCount = 0
		if progress.NonceDiff > 0 || progress.KeysDiff > 0 {
			l.notifier.Notify("Progress",
				fmt.Sprintf("%d keys left | +%d tx | -%d keys", progress.Keys, progress.NonceDiff, progress.KeysDiff),
				notify.UrgencyNormal, 5*time.Second)
		}
	}

	// 7. Commit the baseline for the next tick.
	l.state.LastNonce = progress.Nonce
	l.state.LastKeys = progress.Keys
	return false
}

func (l *Loop) logEvent(eventType, details string) {
	if err := l.journal.LogEvent(eventType, details); err != nil {
		slog.Debug(fmt.Sprintf("Failed to journal event: %v", err))
	}
}

type nopJournal struct{}

func (nopJournal) LogEvent(string, string) error                   { return nil }
func (nopJournal) LogProgress(uint64, uint64, int64, int64) error { return nil }
