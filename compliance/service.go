/*
service.go - Obligation lifecycle operations

PURPOSE:
  Ties the pure scheduling engine to persistence. Three mutating paths:

  CreateObligation: validate config, save, bulk-generate the first horizon.
  UpdateObligation: reconcile stored instances against the new config,
                    applied as one atomic unit under the obligation's lock.
  Submit:           fulfill one instance, computing deviation and status.

CONCURRENCY:
  Reconciliation mutates shared state, so the service serializes work per
  obligation: no two reconciliations (or a reconciliation concurrent with a
  submission) run against the same obligation's instance set. Distinct
  obligations proceed in parallel; the lock table is keyed by obligation id.

ERROR POLICY:
  Invalid configs and immutability violations are fatal and abort before or
  inside the transaction. Notification failures are logged and swallowed -
  they must never affect schedule correctness.

SEE ALSO:
  - schedule/reconcile.go: delta computation
  - store.go:              the transactional contract
*/
package compliance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// NOTIFIER - Outbound notification collaborator (fire-and-forget)
// =============================================================================

// Notification is what the engine hands to a delivery channel. Transport
// (email, WhatsApp) is an external concern.
type Notification struct {
	RecipientID string
	Subject     string
	Body        string
	Tier        string
	Color       string
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store    Store
	Clock    schedule.Clock
	Notifier Notifier         // optional
	Metrics  *metrics.Metrics // optional
	Logger   *log.Logger      // optional

	reconciler *schedule.Reconciler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, clock schedule.Clock) *Service {
	return &Service{
		Store:      store,
		Clock:      clock,
		reconciler: schedule.NewReconciler(clock),
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing work on one obligation.
func (s *Service) lockFor(obligationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[obligationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[obligationID] = l
	}
	return l
}

// =============================================================================
// OBLIGATION LIFECYCLE
// =============================================================================

// CreateObligation validates, persists, and bulk-generates the obligation's
// first instance horizon (start of the current month through the end of
// next year, clamped to the validity window).
func (s *Service) CreateObligation(ctx context.Context, ob Obligation) (*Obligation, error) {
	ob.Recurrence = ob.Recurrence.WithDefaults()
	if err := ob.Recurrence.Validate(); err != nil {
		return nil, err
	}
	if ob.ID == "" {
		ob.ID = uuid.NewString()
	}
	now := time.Now()
	ob.CreatedAt = now
	ob.UpdatedAt = now

	if err := s.Store.SaveObligation(ctx, ob); err != nil {
		return nil, fmt.Errorf("save obligation: %w", err)
	}

	// Creation is reconciliation against an empty instance set.
	if err := s.reconcile(ctx, &ob, nil); err != nil {
		return nil, err
	}
	return &ob, nil
}

// UpdateObligation persists the new configuration and reconciles the stored
// instance set against it, preserving fulfilled history.
func (s *Service) UpdateObligation(ctx context.Context, ob Obligation) (*Obligation, error) {
	ob.Recurrence = ob.Recurrence.WithDefaults()
	if err := ob.Recurrence.Validate(); err != nil {
		return nil, err
	}

	lock := s.lockFor(ob.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Store.GetObligation(ctx, ob.ID)
	if err != nil {
		return nil, err
	}
	ob.CreatedAt = current.CreatedAt
	ob.UpdatedAt = time.Now()

	if err := s.Store.SaveObligation(ctx, ob); err != nil {
		return nil, fmt.Errorf("save obligation: %w", err)
	}

	existing, err := s.Store.ListInstances(ctx, ob.ID)
	if err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx, &ob, existing); err != nil {
		return nil, err
	}
	return &ob, nil
}

// Reconcile re-runs reconciliation with the stored configuration. Admin and
// scheduler entry point; idempotent when nothing changed.
func (s *Service) Reconcile(ctx context.Context, obligationID string) error {
	lock := s.lockFor(obligationID)
	lock.Lock()
	defer lock.Unlock()

	ob, err := s.Store.GetObligation(ctx, obligationID)
	if err != nil {
		return err
	}
	existing, err := s.Store.ListInstances(ctx, obligationID)
	if err != nil {
		return err
	}
	return s.reconcile(ctx, ob, existing)
}

// reconcile computes and applies the delta. Caller holds the obligation
// lock (or knows the obligation is not yet visible to anyone else).
func (s *Service) reconcile(ctx context.Context, ob *Obligation, existing []Instance) error {
	if s.Metrics != nil {
		s.Metrics.ReconciliationRuns.Inc()
	}

	delta, err := s.reconciler.Reconcile(ob.Recurrence, ScheduleViews(existing))
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.ReconciliationErrors.Inc()
		}
		return err
	}
	if delta.Empty() {
		return nil
	}

	now := time.Now()
	insert := make([]Instance, 0, len(delta.ToInsert))
	for _, pi := range delta.ToInsert {
		insert = append(insert, Instance{
			ID:           uuid.NewString(),
			ObligationID: ob.ID,
			PeriodKey:    pi.Key,
			DueDate:      pi.DueDate,
			Status:       schedule.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if err := s.Store.ApplyReconciliation(ctx, ob.ID, delta.ToDelete, insert); err != nil {
		if s.Metrics != nil {
			s.Metrics.ReconciliationErrors.Inc()
		}
		return fmt.Errorf("apply reconciliation for %s: %w", ob.ID, err)
	}

	if s.Metrics != nil {
		s.Metrics.InstancesDeleted.Add(float64(len(delta.ToDelete)))
		s.Metrics.InstancesGenerated.Add(float64(len(insert)))
	}
	if s.Logger != nil {
		s.Logger.Printf("[Reconcile] obligation %s: deleted %d, generated %d", ob.ID, len(delta.ToDelete), len(insert))
	}
	return nil
}

// DeleteObligation removes an obligation and its pending instances. Refused
// while fulfilled history exists; submitted reports are evidence.
func (s *Service) DeleteObligation(ctx context.Context, obligationID string) error {
	lock := s.lockFor(obligationID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.Store.ListInstances(ctx, obligationID)
	if err != nil {
		return err
	}
	for _, inst := range existing {
		if inst.Fulfilled() {
			return &schedule.ImmutableInstanceError{InstanceID: inst.ID, PeriodKey: inst.PeriodKey, Status: inst.Status}
		}
	}
	return s.Store.DeleteObligation(ctx, obligationID)
}

// =============================================================================
// INSTANCES
// =============================================================================

// AddInstance creates a single instance on demand for a period not covered
// by the generated horizon (back-filing a historical period, typically).
func (s *Service) AddInstance(ctx context.Context, obligationID string, key schedule.PeriodKey) (*Instance, error) {
	lock := s.lockFor(obligationID)
	lock.Lock()
	defer lock.Unlock()

	ob, err := s.Store.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	existing, err := s.Store.ListInstances(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		if inst.PeriodKey == key {
			return nil, fmt.Errorf("period %s: %w", key, ErrDuplicatePeriod)
		}
	}

	calc := schedule.NewCalculator(s.Clock)
	calc.Logger = s.Logger
	res, err := calc.DueDate(ob.Recurrence, key)
	if err != nil {
		return nil, err
	}
	if res.FellBack && s.Logger != nil {
		s.Logger.Printf("[Instance] obligation %s: key %q fell back to %s", obligationID, key, res.Date)
	}

	now := time.Now()
	inst := Instance{
		ID:           uuid.NewString(),
		ObligationID: obligationID,
		PeriodKey:    key,
		DueDate:      res.Date,
		Status:       schedule.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// DeleteInstance removes a single pending instance. Fulfilled instances are
// immutable.
func (s *Service) DeleteInstance(ctx context.Context, instanceID string) error {
	inst, err := s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	lock := s.lockFor(inst.ObligationID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent submission may have fulfilled it.
	inst, err = s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Fulfilled() {
		return &schedule.ImmutableInstanceError{InstanceID: inst.ID, PeriodKey: inst.PeriodKey, Status: inst.Status}
	}
	return s.Store.ApplyReconciliation(ctx, inst.ObligationID, []string{inst.ID}, nil)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmissionRequest carries what the reporter provides when fulfilling an
// instance. Evidence files live with the external storage provider; only
// links arrive here.
type SubmissionRequest struct {
	SubmittedAt  time.Time // zero means now
	SubmittedBy  string
	ReportLink   string
	EvidenceLink string
	Notes        string
}

// Submit fulfills an instance: computes the signed deviation against the
// due date, assigns the permanent status, and notifies the supervisor.
func (s *Service) Submit(ctx context.Context, instanceID string, req SubmissionRequest) (*Instance, error) {
	inst, err := s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(inst.ObligationID)
	lock.Lock()
	defer lock.Unlock()

	inst, err = s.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Fulfilled() {
		return nil, &schedule.ImmutableInstanceError{InstanceID: inst.ID, PeriodKey: inst.PeriodKey, Status: inst.Status}
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	result := schedule.RecordSubmission(schedule.DateOf(submittedAt), inst.DueDate)

	inst.Status = result.Status
	inst.DeviationDays = result.DeviationDays
	inst.SubmittedAt = &submittedAt
	inst.SubmittedBy = req.SubmittedBy
	inst.ReportLink = req.ReportLink
	inst.EvidenceLink = req.EvidenceLink
	inst.Notes = req.Notes
	inst.UpdatedAt = time.Now()

	if err := s.Store.SaveInstance(ctx, *inst); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}

	if s.Metrics != nil {
		if result.Status == schedule.StatusLate {
			s.Metrics.SubmissionsLate.Inc()
		} else {
			s.Metrics.SubmissionsOnTime.Inc()
		}
	}

	s.notifyStatusChange(ctx, inst, result)
	return inst, nil
}

// notifyStatusChange tells the obligation's supervisor about the submission.
// Fire-and-forget: a delivery failure never affects the instance record.
func (s *Service) notifyStatusChange(ctx context.Context, inst *Instance, result schedule.SubmissionResult) {
	if s.Notifier == nil {
		return
	}
	ob, err := s.Store.GetObligation(ctx, inst.ObligationID)
	if err != nil || ob.SupervisorID == "" {
		return
	}

	body := fmt.Sprintf("%s - period %s submitted (%s, deviation %+d days)",
		ob.Name, inst.PeriodKey, result.Status, result.DeviationDays)
	n := Notification{
		RecipientID: ob.SupervisorID,
		Subject:     fmt.Sprintf("%s - %s", ob.Name, inst.PeriodKey),
		Body:        body,
		Tier:        "status_change",
	}
	if err := s.Notifier.Send(ctx, n); err != nil && s.Logger != nil {
		s.Logger.Printf("[Notify] status change for instance %s failed: %v", inst.ID, err)
	}
}
