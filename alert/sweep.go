/*
sweep.go - The daily alert sweep

PURPOSE:
  Walks every unfulfilled instance, raises the tier alerts its deadline
  distance calls for, records them, and hands them to the notifier.

CONCURRENCY:
  Obligations are independent, so the sweep fans out per obligation with a
  bounded errgroup. Within one obligation, instances are processed in order.

FAILURE POLICY:
  A notifier failure is logged and the alert is still recorded; the record
  is what drives dedupe, so a flaky channel cannot cause a send storm the
  next run. A store failure aborts that obligation's slice of the sweep but
  the other obligations finish.

SEE ALSO:
  - tiers.go:         tier thresholds and messages
  - api/scheduler.go: runs the sweep on a ticker
*/
package alert

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/schedule"
)

// maxConcurrentObligations bounds the sweep fan-out.
const maxConcurrentObligations = 8

type Sweeper struct {
	Store    compliance.Store
	Clock    schedule.Clock
	Notifier compliance.Notifier // optional
	Metrics  *metrics.Metrics    // optional
	Logger   *log.Logger         // optional
}

func NewSweeper(store compliance.Store, clock schedule.Clock) *Sweeper {
	return &Sweeper{Store: store, Clock: clock}
}

// Run executes one sweep pass. Safe to call repeatedly; per-day dedupe makes
// extra passes no-ops. Returns the number of alerts raised.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	today := s.Clock.Today()

	if s.Metrics != nil {
		s.Metrics.SweepRuns.Inc()
	}

	pending, err := s.Store.ListPendingInstances(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending instances: %w", err)
	}

	byObligation := make(map[string][]compliance.Instance)
	for _, inst := range pending {
		byObligation[inst.ObligationID] = append(byObligation[inst.ObligationID], inst)
	}
	obligationIDs := make([]string, 0, len(byObligation))
	for id := range byObligation {
		obligationIDs = append(obligationIDs, id)
	}
	sort.Strings(obligationIDs)

	counts := make([]int, len(obligationIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentObligations)
	for i, obligationID := range obligationIDs {
		i, obligationID := i, obligationID
		g.Go(func() error {
			n, err := s.sweepObligation(gctx, today, obligationID, byObligation[obligationID])
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if err := s.Store.SetLastSweepRun(ctx, today.Time()); err != nil && s.Logger != nil {
		s.Logger.Printf("[Sweep] persisting last-run marker failed: %v", err)
	}
	if s.Logger != nil {
		s.Logger.Printf("[Sweep] %d pending instances, %d alerts raised", len(pending), total)
	}
	return total, nil
}

// RanToday reports whether a sweep already completed on the clock's current
// day. The scheduler uses it to survive restarts without re-sweeping.
func (s *Sweeper) RanToday(ctx context.Context) (bool, error) {
	last, err := s.Store.LastSweepRun(ctx)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return schedule.DateOf(last).Equal(s.Clock.Today()), nil
}

func (s *Sweeper) sweepObligation(ctx context.Context, today schedule.Date, obligationID string, instances []compliance.Instance) (int, error) {
	ob, err := s.Store.GetObligation(ctx, obligationID)
	if err != nil {
		return 0, fmt.Errorf("load obligation %s: %w", obligationID, err)
	}

	raised := 0
	for _, inst := range instances {
		days := DaysUntilDue(today, inst.DueDate)
		for _, m := range Matches(days) {
			recipient := Recipient(m, *ob)
			if recipient == "" {
				continue
			}

			exists, err := s.Store.AlertExistsOn(ctx, inst.ID, recipient, m.Tier, today)
			if err != nil {
				return raised, fmt.Errorf("dedupe check for instance %s: %w", inst.ID, err)
			}
			if exists {
				continue
			}

			a := compliance.Alert{
				ID:          uuid.NewString(),
				InstanceID:  inst.ID,
				RecipientID: recipient,
				Tier:        m.Tier,
				Color:       m.Color,
				Subject:     Subject(*ob, inst),
				Message:     Body(m, *ob, inst, days),
				// Day granularity from the injected clock; dedupe compares
				// this against the sweep day.
				SentAt: today.Time(),
			}
			if err := s.Store.SaveAlert(ctx, a); err != nil {
				return raised, fmt.Errorf("save alert for instance %s: %w", inst.ID, err)
			}
			raised++

			if s.Metrics != nil {
				s.Metrics.AlertsSent.WithLabelValues(m.Tier).Inc()
			}
			s.deliver(ctx, a)
		}
	}
	return raised, nil
}

// deliver hands an alert to the notifier. Failures are logged only; the
// stored record already guarantees dedupe for the rest of the day.
func (s *Sweeper) deliver(ctx context.Context, a compliance.Alert) {
	if s.Notifier == nil {
		return
	}
	n := compliance.Notification{
		RecipientID: a.RecipientID,
		Subject:     a.Subject,
		Body:        a.Message,
		Tier:        a.Tier,
		Color:       a.Color,
	}
	if err := s.Notifier.Send(ctx, n); err != nil && s.Logger != nil {
		s.Logger.Printf("[Sweep] delivering %s alert for instance %s failed: %v", a.Tier, a.InstanceID, err)
	}
}
