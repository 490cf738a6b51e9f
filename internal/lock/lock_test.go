package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer l.Release()

	if l.Path() != path {
		t.Errorf("Path = %q, want %q", l.Path(), path)
	}

	// Our pid is recorded for diagnostics.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || pid != os.Getpid() {
		t.Errorf("lock content = %q, want our pid %d", content, os.Getpid())
	}
}

func TestAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	// flock is per open file description, so a second open in the same
	// process contends just like a second process would.
	_, err = Acquire(path)
	if err == nil {
		t.Fatal("second Acquire succeeded, want contention")
	}
	var held *ErrHeld
	if !errors.As(err, &held) {
		t.Fatalf("error = %v, want *ErrHeld", err)
	}
	if held.Holder == "" || !strings.Contains(held.Holder, strconv.Itoa(os.Getpid())) {
		t.Errorf("Holder = %q, want our own pid named", held.Holder)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	first.Release()

	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release failed: %v", err)
	}
	second.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	l.Release()
	l.Release() // must not panic or error

	var nilLock *Lock
	nilLock.Release() // safe on a lock that was never acquired
}

func TestErrHeldMessage(t *testing.T) {
	err := &ErrHeld{Path: "/tmp/x.lock"}
	if !strings.Contains(err.Error(), "another process") {
		t.Errorf("message = %q", err.Error())
	}

	err = &ErrHeld{Path: "/tmp/x.lock", Holder: "pid 7 (migmon)"}
	if !strings.Contains(err.Error(), "pid 7 (migmon)") {
		t.Errorf("message = %q", err.Error())
	}
}
