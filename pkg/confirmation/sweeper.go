package confirmation

import (
	"context"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	log "github.com/sirupsen/logrus"
)

// Sweeper periodically expires staged confirmations of every kind.
type Sweeper struct {
	repo     Repository
	clock    utils.Clock
	maxAge   time.Duration
	interval time.Duration
}

func NewSweeper(repo Repository, clock utils.Clock, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{repo: repo, clock: clock, maxAge: maxAge, interval: interval}
}

// SweepAll runs one pass over all kinds and returns the number of records removed.
// A failing kind is logged and does not stop the others.
func (s *Sweeper) SweepAll(ctx context.Context) int64 {
	cutoff := s.clock.Now().Add(-s.maxAge)
	var total int64
	for _, kind := range Kinds {
		deleted, err := sweepKind(ctx, s.repo, kind, cutoff)
		if err != nil {
			log.Errorf("sweeping %s confirmations failed: %v", kind, err)
			continue
		}
		if deleted > 0 {
			log.Infof("expired %d %s confirmation(s)", deleted, kind)
		}
		total += deleted
	}
	return total
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.SweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("confirmation sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}
