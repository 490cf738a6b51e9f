// Package lock provides the single-instance guard for the monitor.
//
// The guard is an advisory flock(2) on a fixed path. The file content is a
// best-effort pid used only for diagnostics when acquisition fails; the
// held lock itself is the semantic.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another process holds the lock.
type ErrHeld struct {
	Path   string
	Holder string // "pid 1234 (migmon)" when resolvable, empty otherwise
}

func (e *ErrHeld) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("lock %s is held by %s", e.Path, e.Holder)
	}
	return fmt.Sprintf("lock %s is held by another process", e.Path)
}

// Lock is a held instance lock. Release is safe to call multiple times.
type Lock struct {
	path string
	file *os.File
	once sync.Once
}

// Acquire takes a non-blocking exclusive lock on path. It never waits:
// contention returns *ErrHeld immediately, this is a singleton guard and
// not a work queue.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, &ErrHeld{Path: path, Holder: holder}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	// Record our pid for diagnostics. Best-effort.
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Sync()

	return &Lock{path: path, file: f}, nil
}

// Release drops the lock. Idempotent; safe to call on every exit path.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		l.file.Close()
	})
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// readHolder reads the pid recorded in the lock file and resolves it to a
// process name. Returns empty when the pid is stale or unreadable.
func readHolder(f *os.File) string {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return ""
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Sprintf("pid %d", pid)
	}
	name, err := proc.Name()
	if err != nil {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("pid %d (%s)", pid, name)
}
