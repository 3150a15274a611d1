/*
scheduler.go - Automated alert sweep scheduler

PURPOSE:
  Periodically runs the alert sweep so deadline notifications go out once a
  day without an external cron. Also re-reconciles the catalog daily, which
  extends every obligation's generated horizon as time advances.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The sweep's persisted last-run marker makes the daily run restart-safe:
    a process restart at 14:00 does not re-send the morning's alerts
  - Per-day alert dedupe makes extra runs harmless anyway

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(svc, sweeper)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - alert/sweep.go: the sweep itself
  - handlers.go: TriggerSweep endpoint (manual run)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/compliance-engine/alert"
	"github.com/warp/compliance-engine/compliance"
)

// SweepScheduler runs the daily alert sweep and horizon extension.
type SweepScheduler struct {
	Service       *compliance.Service
	Sweeper       *alert.Sweeper
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(svc *compliance.Service, sweeper *alert.Sweeper) *SweepScheduler {
	return &SweepScheduler{
		Service:       svc,
		Sweeper:       sweeper,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndProcess()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndProcess()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) checkAndProcess() {
	ctx := context.Background()

	ran, err := ss.Sweeper.RanToday(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error reading sweep state: %v", err)
		return
	}
	if ran {
		return
	}

	// Extend each obligation's horizon before alerting on it. Errors on one
	// obligation must not starve the rest.
	obligations, err := ss.Service.Store.ListObligations(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing obligations: %v", err)
		return
	}
	for _, ob := range obligations {
		if err := ss.Service.Reconcile(ctx, ob.ID); err != nil {
			log.Printf("[Scheduler] Error reconciling %s: %v", ob.ID, err)
		}
	}

	raised, err := ss.Sweeper.Run(ctx)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}
	log.Printf("[Scheduler] Daily run completed: %d obligations reconciled, %d alerts raised",
		len(obligations), raised)
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.checkAndProcess()
}
