/*
Package compliance is the domain layer over the scheduling engine.

PURPOSE:
  Owns the records the engine operates on (obligations, instances, alerts)
  and the service operations that tie the pure schedule package to
  persistence: creation, reconciliation on config change, and submission.

KEY CONCEPTS IN THIS FILE (types.go):
  - Obligation: a recurring reporting requirement owed to an entity
  - Instance:   one concrete occurrence for a specific period
  - Alert:      a notification raised against a pending instance

DESIGN PRINCIPLES:
  1. Plain value structs referencing each other by opaque id; the core
     never holds live object graphs.
  2. Fulfilled instances are immutable. The only mutation an instance ever
     sees is the submission that fulfills it.
  3. Evidence files live with an external storage provider; instances hold
     links only.

SEE ALSO:
  - store.go:   persistence interfaces
  - service.go: the operations
*/
package compliance

import (
	"time"

	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// OBLIGATION - A recurring reporting requirement
// =============================================================================

type Obligation struct {
	ID       string
	Name     string
	EntityID string // regulator or counterparty the report is owed to

	// LegalBasis cites the regulation mandating the report.
	LegalBasis string

	Recurrence schedule.RecurrenceConfig

	// Responsible parties, by user id.
	PreparerID   string
	SupervisorID string

	// Delivery expectations; informational, not enforced here.
	RequiredFormat   string
	InstructionsLink string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// INSTANCE - One occurrence of an obligation for a period
// =============================================================================

// Instance is the stored record. At most one exists per
// (obligation, periodKey); fulfilled ones never change again.
type Instance struct {
	ID           string
	ObligationID string

	PeriodKey schedule.PeriodKey
	DueDate   schedule.Date

	Status        schedule.Status
	SubmittedAt   *time.Time
	DeviationDays int // signed; set on submission, 0 while pending

	// Submission evidence. Links into the external storage provider.
	EvidenceLink string
	ReportLink   string
	Notes        string
	SubmittedBy  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fulfilled reports whether the instance is immutable.
func (i Instance) Fulfilled() bool { return i.Status.Fulfilled() }

// ScheduleView projects the record down to what the engine needs.
func (i Instance) ScheduleView() schedule.Instance {
	return schedule.Instance{
		ID:      i.ID,
		Key:     i.PeriodKey,
		DueDate: i.DueDate,
		Status:  i.Status,
	}
}

// ScheduleViews converts a slice of records for the reconciler.
func ScheduleViews(instances []Instance) []schedule.Instance {
	out := make([]schedule.Instance, len(instances))
	for i, inst := range instances {
		out[i] = inst.ScheduleView()
	}
	return out
}

// =============================================================================
// ALERT - Notification record keyed to an instance
// =============================================================================

// Alert records that a notification tier was raised for an instance on a
// given day. Alerts cascade away with the pending instance they belong to.
type Alert struct {
	ID          string
	InstanceID  string
	RecipientID string
	Tier        string
	Color       string
	Subject     string
	Message     string
	SentAt      time.Time
}
