package monitor

import (
	"context"
)

// Sample is one polling cycle's progress observation. A component with
// its Has flag unset means the oracle query failed or returned nothing
// this cycle: unknown, not zero.
type Sample struct {
	Nonce    uint64
	HasNonce bool
	Keys     uint64
	HasKeys  bool
}

// Progress is a sample resolved against the previous baseline, with the
// per-cycle diffs for both signals.
type Progress struct {
	Nonce uint64
	Keys  uint64

	// NonceDiff is current − previous nonce. Normally non-negative; a
	// decrease indicates an inconsistent RPC view and is tolerated.
	NonceDiff int64
	// KeysDiff is previous − current remaining keys; positive means
	// work completed.
	KeysDiff int64
}

// Stalled reports whether this cycle made no forward progress on either
// signal.
func (p Progress) Stalled() bool {
	return p.NonceDiff == 0 && p.KeysDiff == 0
}

// Advance resolves cur against the previous baseline. Absent components
// substitute the previous value so their diff is exactly zero: a
// transient RPC failure must never masquerade as progress, a stall, or
// a regression.
func Advance(lastNonce, lastKeys uint64, cur Sample) Progress {
	nonce := lastNonce
	if cur.HasNonce {
		nonce = cur.Nonce
	}
	keys := lastKeys
	if cur.HasKeys {
		keys = cur.Keys
	}

	return Progress{
		Nonce:     nonce,
		Keys:      keys,
		NonceDiff: int64(nonce) - int64(lastNonce),
		KeysDiff:  int64(lastKeys) - int64(keys),
	}
}

// Oracle is the subset of the RPC client the tracker needs.
type Oracle interface {
	AccountNextIndex(ctx context.Context, account string) (uint64, bool)
	TrieMigrationStatus(ctx context.Context) (uint64, bool)
}

// Tracker samples the two progress signals each cycle.
type Tracker struct {
	oracle  Oracle
	account string
}

// NewTracker creates a Tracker for the given signer account.
func NewTracker(oracle Oracle, account string) *Tracker {
	return &Tracker{oracle: oracle, account: account}
}

// Sample queries both signals. Each is independently optional.
func (t *Tracker) Sample(ctx context.Context) Sample {
	var s Sample
	s.Nonce, s.HasNonce = t.oracle.AccountNextIndex(ctx, t.account)
	s.Keys, s.HasKeys = t.oracle.TrieMigrationStatus(ctx)
	return s
}
