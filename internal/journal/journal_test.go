package journal

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLogAndReadEvents(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogEvent("started", "devbox"); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	if err := db.LogEvent("restart", "stalled 5 checks"); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	events, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].EventType != "restart" || events[1].EventType != "started" {
		t.Errorf("events = %v, %v; want restart then started", events[0].EventType, events[1].EventType)
	}
	if events[0].Details != "stalled 5 checks" {
		t.Errorf("Details = %q", events[0].Details)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Timestamp not recorded")
	}
}

func TestRecentEventsLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		if err := db.LogEvent("stall", ""); err != nil {
			t.Fatalf("LogEvent failed: %v", err)
		}
	}

	events, err := db.RecentEvents(3)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestLogAndReadProgress(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogProgress(12, 950, 2, 50); err != nil {
		t.Fatalf("LogProgress failed: %v", err)
	}
	if err := db.LogProgress(12, 950, 0, 0); err != nil {
		t.Fatalf("LogProgress failed: %v", err)
	}

	samples, err := db.RecentProgress(10)
	if err != nil {
		t.Fatalf("RecentProgress failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	latest := samples[0]
	if latest.NonceDiff != 0 || latest.KeysDiff != 0 {
		t.Errorf("latest diffs = (%d, %d), want (0, 0)", latest.NonceDiff, latest.KeysDiff)
	}
	first := samples[1]
	if first.Nonce != 12 || first.Keys != 950 || first.NonceDiff != 2 || first.KeysDiff != 50 {
		t.Errorf("first sample = %+v", first)
	}
}

func TestNegativeDiffsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogProgress(8, 1000, -2, -100); err != nil {
		t.Fatalf("LogProgress failed: %v", err)
	}

	samples, err := db.RecentProgress(1)
	if err != nil {
		t.Fatalf("RecentProgress failed: %v", err)
	}
	if samples[0].NonceDiff != -2 || samples[0].KeysDiff != -100 {
		t.Errorf("diffs = (%d, %d), want (-2, -100)", samples[0].NonceDiff, samples[0].KeysDiff)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	db.Close()
}
