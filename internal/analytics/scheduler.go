package analytics

import (
	"context"
	"time"
)

// StartPeriodicRecompute launches a goroutine that recomputes every interval
// until ctx is cancelled. A non-positive interval disables it.
func (s *Service) StartPeriodicRecompute(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Recompute(ctx); err != nil {
					s.logger.Error("periodic recompute failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("periodic recompute started", "interval", interval)
}
