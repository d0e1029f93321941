package backup

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler runs periodic retention passes in the background.
type Scheduler struct {
	store    *Store
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler creates a retention scheduler. A non-positive interval
// defaults to one hour.
func NewScheduler(store *Store, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{store: store, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, executing a retention pass every
// interval. The first pass is jittered to avoid thundering herds when many
// processes start together.
func (s *Scheduler) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(s.interval/10) + 1))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	results, err := s.store.PruneAll(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("scheduled retention pass failed")
		return
	}
	deleted := 0
	for _, r := range results {
		deleted += len(r.Deleted)
	}
	s.log.Debug().Int("resources", len(results)).Int("deleted", deleted).
		Msg("scheduled retention pass")
}
