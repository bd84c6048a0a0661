package market

import (
	"context"
	"log"
	"time"
)

// RunSweeper calls SweepExpired every interval until ctx is done. Expiry is
// also applied lazily on read, so a stopped sweeper only delays the stored
// status change.
func (m *Marketplace) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Println("[SWEEPER] Disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[SWEEPER] Started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[SWEEPER] Stopped")
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				log.Printf("[SWEEPER] Sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[SWEEPER] Expired %d listings", n)
			}
		}
	}
}
