package monitor

import (
	"context"
	"testing"
)

func TestAdvanceBothPresent(t *testing.T) {
	p := Advance(10, 1000, Sample{Nonce: 12, HasNonce: true, Keys: 950, HasKeys: true})

	if p.NonceDiff != 2 {
		t.Errorf("NonceDiff = %d, want 2", p.NonceDiff)
	}
	if p.KeysDiff != 50 {
		t.Errorf("KeysDiff = %d, want 50", p.KeysDiff)
	}
	if p.Nonce != 12 || p.Keys != 950 {
		t.Errorf("resolved values = (%d, %d), want (12, 950)", p.Nonce, p.Keys)
	}
	if p.Stalled() {
		t.Error("progress on both signals reported as stalled")
	}
}

func TestAdvanceAbsentFallsBackToPrevious(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
	}{
		{"both absent", Sample{}},
		{"nonce absent", Sample{Keys: 1000, HasKeys: true}},
		{"keys absent", Sample{Nonce: 10, HasNonce: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Advance(10, 1000, tt.sample)
			if p.NonceDiff != 0 || p.KeysDiff != 0 {
				t.Errorf("diffs = (%d, %d), want (0, 0)", p.NonceDiff, p.KeysDiff)
			}
			if !p.Stalled() {
				t.Error("unchanged values not reported as stalled")
			}
			if p.Nonce != 10 || p.Keys != 1000 {
				t.Errorf("resolved values = (%d, %d), want previous (10, 1000)", p.Nonce, p.Keys)
			}
		})
	}
}

// An absent keys sample must never produce a negative keys diff, no
// matter what the nonce did.
func TestAdvanceAbsentNeverNegative(t *testing.T) {
	p := Advance(10, 1000, Sample{Nonce: 15, HasNonce: true})
	if p.KeysDiff != 0 {
		t.Errorf("KeysDiff = %d, want 0 for absent keys", p.KeysDiff)
	}
	if p.NonceDiff != 5 {
		t.Errorf("NonceDiff = %d, want 5", p.NonceDiff)
	}
}

// A decreasing nonce is an inconsistent RPC view; it yields a negative
// diff and is otherwise tolerated.
func TestAdvanceToleratesDecreasingNonce(t *testing.T) {
	p := Advance(10, 1000, Sample{Nonce: 8, HasNonce: true, Keys: 1000, HasKeys: true})
	if p.NonceDiff != -2 {
		t.Errorf("NonceDiff = %d, want -2", p.NonceDiff)
	}
	if p.Stalled() {
		t.Error("nonzero nonce diff reported as stalled")
	}
}

func TestAdvanceKeysIncrease(t *testing.T) {
	// Remaining keys going up means negative progress on that signal.
	p := Advance(10, 1000, Sample{Nonce: 10, HasNonce: true, Keys: 1100, HasKeys: true})
	if p.KeysDiff != -100 {
		t.Errorf("KeysDiff = %d, want -100", p.KeysDiff)
	}
	if p.Stalled() {
		t.Error("keys regression reported as stalled")
	}
}

type fakeOracle struct {
	nonce    uint64
	hasNonce bool
	keys     uint64
	hasKeys  bool

	gotAccount string
}

func (f *fakeOracle) AccountNextIndex(ctx context.Context, account string) (uint64, bool) {
	f.gotAccount = account
	return f.nonce, f.hasNonce
}

func (f *fakeOracle) TrieMigrationStatus(ctx context.Context) (uint64, bool) {
	return f.keys, f.hasKeys
}

func TestTrackerSample(t *testing.T) {
	oracle := &fakeOracle{nonce: 42, hasNonce: true, keys: 7, hasKeys: true}
	tracker := NewTracker(oracle, "5Grw...test")

	s := tracker.Sample(context.Background())
	if !s.HasNonce || s.Nonce != 42 {
		t.Errorf("nonce = (%d, %v), want (42, true)", s.Nonce, s.HasNonce)
	}
	if !s.HasKeys || s.Keys != 7 {
		t.Errorf("keys = (%d, %v), want (7, true)", s.Keys, s.HasKeys)
	}
	if oracle.gotAccount != "5Grw...test" {
		t.Errorf("queried account %q, want %q", oracle.gotAccount, "5Grw...test")
	}
}

func TestTrackerSampleIndependentAbsence(t *testing.T) {
	oracle := &fakeOracle{nonce: 42, hasNonce: true, hasKeys: false}
	tracker := NewTracker(oracle, "acct")

	s := tracker.Sample(context.Background())
	if !s.HasNonce {
		t.Error("nonce should be present")
	}
	if s.HasKeys {
		t.Error("keys should be absent")
	}
}
