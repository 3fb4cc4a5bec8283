package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionSweeper is the slice of the session service the timeout worker
// drives.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) int
}

// TimeoutWorker ticks once per sweep interval and force-closes every
// session whose deadline has passed. The deadline itself lives in the
// session snapshot; this loop only enforces it.
type TimeoutWorker struct {
	sessions SessionSweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewTimeoutWorker creates a TimeoutWorker.
func NewTimeoutWorker(sessions SessionSweeper, interval time.Duration, log zerolog.Logger) *TimeoutWorker {
	return &TimeoutWorker{
		sessions: sessions,
		interval: interval,
		log:      log.With().Str("component", "timeout_worker").Logger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *TimeoutWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("TimeoutWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("TimeoutWorker stopped")
			return
		case <-ticker.C:
			if n := w.sessions.SweepExpired(ctx); n > 0 {
				w.log.Info().Int("closed", n).Msg("expired sessions closed")
			}
		}
	}
}
