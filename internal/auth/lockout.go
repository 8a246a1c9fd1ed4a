package auth

import (
	"sync"
	"time"
)

// attempt records one failed login's time and originating address.
type attempt struct {
	at         time.Time
	sourceAddr string
}

// FailedAttempts tracks failed login attempts per identifier (username) in
// memory, pruning entries older than the lockout window lazily on each
// touch, per §3's FailedAttempt table and §4.7's lockout computation.
type FailedAttempts struct {
	mu        sync.Mutex
	byID      map[string][]attempt
	threshold int
	window    time.Duration
}

// NewFailedAttempts creates a tracker. threshold is the number of failures
// within window that trips a lockout.
func NewFailedAttempts(threshold int, window time.Duration) *FailedAttempts {
	return &FailedAttempts{
		byID:      make(map[string][]attempt),
		threshold: threshold,
		window:    window,
	}
}

// prune drops entries older than the lockout window; caller holds mu.
func (f *FailedAttempts) prune(id string, now time.Time) []attempt {
	entries := f.byID[id]
	cutoff := now.Add(-f.window)
	kept := entries[:0:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(f.byID, id)
	} else {
		f.byID[id] = kept
	}
	return kept
}

// Locked reports whether id is currently locked out and, if so, the
// remaining seconds until the oldest counted failure ages out of the
// window -- the "Nth-most-recent-failure" computation from §4.7.
func (f *FailedAttempts) Locked(id string) (locked bool, remainingSeconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	entries := f.prune(id, now)
	if len(entries) < f.threshold {
		return false, 0
	}
	// entries is ordered oldest-to-newest (Record appends); the lockout
	// clears threshold failures after the most recent one, i.e. window
	// seconds after the threshold-th-most-recent failure ages out, not the
	// overall oldest kept entry.
	nth := entries[len(entries)-f.threshold].at
	remaining := f.window - now.Sub(nth)
	if remaining < 0 {
		remaining = 0
	}
	return true, int64(remaining.Seconds())
}

// Record appends a failed attempt for id.
func (f *FailedAttempts) Record(id, sourceAddr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.prune(id, now)
	f.byID[id] = append(f.byID[id], attempt{at: now, sourceAddr: sourceAddr})
}

// Clear removes all recorded failures for id, called on successful login.
func (f *FailedAttempts) Clear(id string) {
	f.mu.Lock()
	delete(f.byID, id)
	f.mu.Unlock()
}
