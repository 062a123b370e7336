package checkout

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Janitor periodically purges closed sessions from a Store.
type Janitor struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	clock     func() time.Time
	log       zerolog.Logger
}

// NewJanitor returns a Janitor that every interval deletes expired and
// cancelled sessions closed for longer than retention.
func NewJanitor(store Store, retention, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		clock:     time.Now,
		log:       logger,
	}
}

// Run sweeps until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.log.Error().Err(err).Msg("purging checkout sessions")
			}
		}
	}
}

// Sweep runs one purge and reports how many sessions were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	now := j.clock()
	n, err := j.store.Purge(ctx, now, now.Add(-j.retention))
	if err != nil {
		return n, err
	}
	if n > 0 {
		j.log.Info().Int("purged", n).Msg("purged closed checkout sessions")
	}
	return n, nil
}
