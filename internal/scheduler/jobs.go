package scheduler

import (
	"log/slog"
	"time"
)

// SessionSweeper drops idle conversation sessions.
type SessionSweeper interface {
	Sweep(now time.Time) int
}

// DedupPruner forgets old inbound message ids.
type DedupPruner interface {
	PruneBefore(cutoff time.Time) (int64, error)
}

// SweepSessionsJob returns a task that expires idle sessions and reports the count to onExpired.
func SweepSessionsJob(s SessionSweeper, now func() time.Time, onExpired func(n int)) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		n := s.Sweep(now())
		if n > 0 {
			slog.Info("SweepSessionsJob: expired idle sessions", "count", n)
			if onExpired != nil {
				onExpired(n)
			}
		}
	}
}

// PruneDedupJob returns a task that deletes dedup records older than retention.
func PruneDedupJob(p DedupPruner, retention time.Duration, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		n, err := p.PruneBefore(now().Add(-retention))
		if err != nil {
			slog.Error("PruneDedupJob: prune failed", "error", err)
			return
		}
		slog.Debug("PruneDedupJob: pruned dedup records", "count", n, "retention", retention)
	}
}
