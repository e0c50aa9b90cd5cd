/*
scheduler.go - Automated penalty sweep scheduler

PURPOSE:
  Periodically assesses every employee's sick-leave penalty for the
  current year and applies any incremental deduction not yet taken.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips employees whose assessment is not applicable (below the floor,
    no excess-hours figure configured, or nothing new to deduct)
  - In the default log-only mode the sweep reports pending penalties
    without touching any balance; AutoApply turns on the deduction
  - Individual failures are logged and do not abort the sweep

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 24 hours)
  - Enabled: Whether the scheduler is active (default: true)
  - AutoApply: Apply pending penalties instead of only logging them
    (default: false)

USAGE:
  scheduler := NewPenaltyScheduler(penalties, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ApplyPenalty endpoint (manual application)
  - absence/penalty.go: PenaltyService
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// PenaltyScheduler handles automated sick-leave penalty application.
type PenaltyScheduler struct {
	Penalties     *absence.PenaltyService
	CheckInterval time.Duration
	Enabled       bool
	AutoApply     bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPenaltyScheduler creates a new scheduler.
func NewPenaltyScheduler(penalties *absence.PenaltyService, logger *slog.Logger) *PenaltyScheduler {
	return &PenaltyScheduler{
		Penalties:     penalties,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ps *PenaltyScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.logger.Info("penalty scheduler disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run()

	ps.logger.Info("penalty scheduler started", "interval", ps.CheckInterval.String())
}

// Stop stops the scheduler.
func (ps *PenaltyScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.logger.Info("penalty scheduler stopped")
	}
}

func (ps *PenaltyScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.sweep()

	for {
		select {
		case <-ps.ticker.C:
			ps.sweep()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PenaltyScheduler) sweep() {
	ctx := context.Background()
	year := time.Now().UTC().Year()

	liable, err := ps.Penalties.ListLiable(ctx, year)
	if err != nil {
		ps.logger.Error("penalty sweep failed to list employees", "error", err)
		return
	}

	applied := 0
	pending := 0
	skipped := 0
	for _, l := range liable {
		if !l.Assessment.Applicable() {
			skipped++
			continue
		}

		if !ps.AutoApply {
			pending++
			ps.logger.Info("penalty pending",
				"employee_id", l.Employee.ID,
				"year", year,
				"sick_days", l.Assessment.SickDays,
				"incremental_hours", int(l.Assessment.IncrementalHours))
			continue
		}

		a, err := ps.Penalties.Apply(ctx, l.Employee.ID, year)
		if err != nil {
			// Concurrent manual application is fine; anything else gets logged.
			if errors.Is(err, engine.ErrConcurrencyConflict) || errors.Is(err, engine.ErrNothingToApply) {
				skipped++
				continue
			}
			ps.logger.Error("penalty sweep failed for employee",
				"employee_id", l.Employee.ID, "year", year, "error", err)
			continue
		}

		applied++
		ps.logger.Info("penalty applied",
			"employee_id", l.Employee.ID,
			"year", year,
			"sick_days", a.SickDays,
			"incremental_hours", int(a.IncrementalHours))
	}

	if applied > 0 || pending > 0 || skipped > 0 {
		ps.logger.Info("penalty sweep completed",
			"year", year, "applied", applied, "pending", pending, "skipped", skipped)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ps *PenaltyScheduler) RunNow() {
	ps.sweep()
}
