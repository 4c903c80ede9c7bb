package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"urlbox/internal/platform/config"
	"urlbox/internal/platform/repositories"
)

// Retention deletes stored webhook events once they are older than the
// configured TTL.
type Retention struct {
	events   *repositories.RenderEventRepository
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	// OnPurge, when set, is told how many events each sweep removed.
	OnPurge func(deleted int64)
}

func NewRetention(events *repositories.RenderEventRepository, cfg config.RetentionConfig) *Retention {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Retention{
		events:   events,
		ttl:      cfg.EventTTL,
		interval: interval,
		now:      time.Now,
	}
}

// PurgeExpiredEvents runs a single sweep. A zero TTL keeps events forever.
func (r *Retention) PurgeExpiredEvents(ctx context.Context) (int64, error) {
	if r.ttl <= 0 {
		return 0, nil
	}

	cutoff := r.now().Add(-r.ttl).Unix()
	deleted, err := r.events.DeleteReceivedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if r.OnPurge != nil {
		r.OnPurge(deleted)
	}
	return deleted, nil
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	if r.ttl <= 0 {
		log.Info().Msg("Worker: event retention disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		deleted, err := r.PurgeExpiredEvents(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Worker: failed to purge webhook events")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Dur("ttl", r.ttl).Msg("Worker: purged expired webhook events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
