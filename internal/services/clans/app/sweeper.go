package app

import (
	"context"
	"log"
	"time"
)

// DefaultSweepInterval is the sweep cadence applied when none is configured.
const DefaultSweepInterval = time.Hour

// RunSweeper expires overdue invitations on a fixed interval until the
// context is cancelled. One sweep runs immediately at startup so a restart
// never leaves stale pending invitations waiting a full interval.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s.sweepOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	swept, err := s.SweepExpiredInvitations(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("sweep expired invitations: %v", err)
		}
		return
	}
	if swept > 0 {
		log.Printf("expired %d overdue invitations", swept)
	}
}
