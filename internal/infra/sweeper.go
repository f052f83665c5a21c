package infra

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ActionExpirer marks overdue dispatched actions as timed out.
type ActionExpirer interface {
	ExpireOverdue(ctx context.Context) error
}

// PresenceSweeper evicts presence entries whose TTL has lapsed.
type PresenceSweeper interface {
	Sweep(now time.Time) int
}

// Sweeper runs the periodic maintenance jobs: pending-action expiry and
// presence eviction. Both are passive sweeps; nothing in the hot path
// waits on them.
type Sweeper struct {
	cron     *cron.Cron
	expirer  ActionExpirer
	presence PresenceSweeper
}

// NewSweeper creates a new sweeper
func NewSweeper(expirer ActionExpirer, presence PresenceSweeper) *Sweeper {
	return &Sweeper{
		cron:     cron.New(cron.WithSeconds()),
		expirer:  expirer,
		presence: presence,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Sweeper) Start() error {
	// Action expiry every 15 seconds keeps the worst-case extra wait
	// well under the dispatch deadline itself.
	_, err := s.cron.AddFunc("*/15 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.expirer.ExpireOverdue(ctx); err != nil {
			log.Printf("ERROR: action expiry sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	// Presence eviction every 30 seconds.
	_, err = s.cron.AddFunc("*/30 * * * * *", func() {
		if removed := s.presence.Sweep(time.Now()); removed > 0 {
			log.Printf("[CRON] presence sweep evicted %d stale entries", removed)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Println("[OK] Sweeper started (action expiry 15s, presence 30s)")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Sweeper) Stop() {
	log.Println("Stopping sweeper...")
	s.cron.Stop()
	log.Println("[OK] Sweeper stopped")
}
