package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.olrik.dev/migmon/internal/remote"
)

const (
	logTimeout = 10 * time.Second
	// criticalWindow is how many trailing log lines are scanned for
	// critical markers. Critical conditions manifest near the point of
	// detection, full-log history is not needed.
	criticalWindow = 50
)

// CriticalEvent is a danger signal extracted from the bot log. The
// monitor halts on it rather than restarting the bot, since the
// condition may indicate danger in continuing.
type CriticalEvent struct {
	Message string
}

// criticalDetectors are evaluated in order against the tail window;
// first match wins.
var criticalDetectors = []struct {
	match   func(window string) bool
	message string
}{
	{
		match: func(window string) bool {
			return strings.Contains(window, "Balance decreased") || strings.Contains(window, "SLASHING")
		},
		message: "Balance decreased - possible slashing!",
	},
	{
		match: func(window string) bool {
			return strings.Contains(window, "5/5") && strings.Contains(strings.ToLower(window), "consecutive")
		},
		message: "Max retries reached",
	},
}

// LogWatcher tails the bot's remote log incrementally. The remote log is
// append-only and grows unboundedly over a multi-day migration, so only
// lines past the last seen offset are ever transferred.
type LogWatcher struct {
	exec   remote.Executor
	path   string
	marker string
}

// NewLogWatcher creates a watcher for the remote log at path. Lines
// containing marker carry a forwardable payload after it.
func NewLogWatcher(exec remote.Executor, path, marker string) *LogWatcher {
	return &LogWatcher{exec: exec, path: path, marker: marker}
}

// NewEvents returns the payloads found in lines strictly after lastLine,
// in source order, and the new total line count. On any failure the
// events are empty and the offset is returned unchanged, so no line is
// ever skipped or replayed.
func (w *LogWatcher) NewEvents(ctx context.Context, lastLine int) ([]string, int) {
	ok, output := w.exec.Run(ctx, fmt.Sprintf("wc -l < %s", w.path), logTimeout, remote.DefaultRetries)
	if !ok {
		return nil, lastLine
	}

	totalLines, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return nil, lastLine
	}
	if totalLines <= lastLine {
		return nil, lastLine
	}

	ok, output = w.exec.Run(ctx, fmt.Sprintf("tail -n +%d %s", lastLine+1, w.path), logTimeout, remote.DefaultRetries)
	if !ok {
		return nil, lastLine
	}

	var events []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, w.marker) {
			continue
		}
		parts := strings.Split(line, w.marker)
		payload := strings.TrimSpace(parts[len(parts)-1])
		if payload != "" {
			events = append(events, payload)
		}
	}

	return events, totalLines
}

// DetectCritical scans the last lines of the bot log for critical
// markers. Stateless: the window is re-fetched and re-evaluated each
// cycle.
func (w *LogWatcher) DetectCritical(ctx context.Context) (CriticalEvent, bool) {
	ok, output := w.exec.Run(ctx, fmt.Sprintf("tail -%d %s", criticalWindow, w.path), logTimeout, remote.DefaultRetries)
	if !ok {
		return CriticalEvent{}, false
	}

	for _, detector := range criticalDetectors {
		if detector.match(output) {
			return CriticalEvent{Message: detector.message}, true
		}
	}
	return CriticalEvent{}, false
}
