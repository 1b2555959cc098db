package distributor

import (
	"context"
	"log/slog"
	"time"
)

const StaleReason = "conversion timed out"

type StaleFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error)
}

type sweeper struct {
	store      StaleFailer
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(store StaleFailer, interval, staleAfter time.Duration) *sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &sweeper{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// StartCleanup fails unfinished conversions that have not moved for
// staleAfter, once per interval, until ctx is done.
func (s *sweeper) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

func (s *sweeper) Sweep(ctx context.Context) int {
	ids, err := s.store.FailStale(ctx, s.now().Add(-s.staleAfter), StaleReason)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("cleanup stale conversions", slog.String("error", err.Error()))
		}
		return 0
	}

	for _, id := range ids {
		slog.Warn("conversion marked FAILED by sweeper", slog.String("job_id", id))
	}
	if len(ids) > 0 {
		slog.Info("cleanup", slog.Int("count_of_stale_conversions", len(ids)))
	}
	return len(ids)
}
