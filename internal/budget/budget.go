// Package budget enforces the daily spending cap (§4.1 admission control,
// §8 "budget ceiling is a hard stop"). The tracker is process-scoped and
// reconciled against the durable record on startup.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/bobarin/podclip/internal/db"
)

// Tracker is a UTC-day-keyed spend counter. It does not itself know why a
// request was admitted — the scheduler decides; the tracker only answers
// "is there room" and "record this much spend".
type Tracker struct {
	mu      sync.Mutex
	day     string // YYYY-MM-DD in UTC, the key the counter resets on
	spentUSD float64
	capUSD   float64
}

func New(capUSD float64) *Tracker {
	return &Tracker{
		day:    today(),
		capUSD: capUSD,
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// Reconcile seeds the counter from the durable sum of today's estimated
// costs — recovers the correct spend figure across a process restart
// instead of starting every boot back at zero.
func (t *Tracker) Reconcile(ctx context.Context, database *db.DB) error {
	if database == nil {
		return nil
	}
	sum, err := database.SumEstimatedCostToday(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.day = today()
	t.spentUSD = sum
	t.mu.Unlock()
	return nil
}

// Remaining returns the USD still available to spend today.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	r := t.capUSD - t.spentUSD
	if r < 0 {
		return 0
	}
	return r
}

// Reserve attempts to admit a job estimated to cost estimatedUSD. It
// returns false without reserving anything when the cap would be exceeded —
// admission control (§4.1) calls this synchronously before enqueueing.
func (t *Tracker) Reserve(estimatedUSD float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	if t.spentUSD+estimatedUSD > t.capUSD {
		return false
	}
	t.spentUSD += estimatedUSD
	return true
}

// Release gives back a reservation — used when a reserved job's durable
// write fails, when a job fails terminally, or when its final realized cost
// undercuts the estimate it reserved.
func (t *Tracker) Release(amountUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	t.spentUSD -= amountUSD
	if t.spentUSD < 0 {
		t.spentUSD = 0
	}
}

// rolloverLocked resets the counter when UTC midnight has passed since the
// last observation. Caller must hold t.mu.
func (t *Tracker) rolloverLocked() {
	d := today()
	if d != t.day {
		t.day = d
		t.spentUSD = 0
	}
}
