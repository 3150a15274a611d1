/*
store.go - Persistence interfaces for the domain layer

PURPOSE:
  Defines the contract between the service and the database. Different
  implementations back it with SQLite or memory; the service never sees SQL.

TRANSACTIONAL CONTRACT:
  ApplyReconciliation is the one compound write: deletions (with their alert
  cascade) and insertions happen as a single atomic unit per obligation, and
  the immutability of fulfilled instances is re-checked INSIDE the
  transaction. Partial application is a correctness violation.

IMPLEMENTATIONS:
  - store/sqlite:          production SQLite
  - compliance/store:      in-memory, for tests

SEE ALSO:
  - service.go:            the caller
  - schedule/reconcile.go: produces the deltas applied here
*/
package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/warp/compliance-engine/schedule"
)

// Lookup failures shared by all implementations.
var (
	ErrObligationNotFound = errors.New("obligation not found")
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrDuplicatePeriod    = errors.New("instance already exists for period")
)

// ObligationStore persists obligation definitions.
type ObligationStore interface {
	SaveObligation(ctx context.Context, ob Obligation) error
	GetObligation(ctx context.Context, id string) (*Obligation, error)
	ListObligations(ctx context.Context) ([]Obligation, error)
	DeleteObligation(ctx context.Context, id string) error
}

// InstanceStore persists period-instances.
type InstanceStore interface {
	SaveInstance(ctx context.Context, inst Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, obligationID string) ([]Instance, error)
	ListAllInstances(ctx context.Context) ([]Instance, error)

	// ListPendingInstances returns every unfulfilled instance across all
	// obligations, for the alert sweep.
	ListPendingInstances(ctx context.Context) ([]Instance, error)

	// ApplyReconciliation applies a reconciliation atomically: delete the
	// named pending instances (alerts cascade), insert the prepared Pending
	// records. Returns schedule.ErrImmutableInstance and applies nothing if
	// any deletion names a fulfilled instance.
	ApplyReconciliation(ctx context.Context, obligationID string, deleteIDs []string, insert []Instance) error
}

// AlertStore persists alert records raised by the sweep.
type AlertStore interface {
	SaveAlert(ctx context.Context, a Alert) error
	ListAlerts(ctx context.Context, instanceID string) ([]Alert, error)

	// AlertExistsOn reports whether the same tier was already raised for
	// this instance and recipient on the given day. Dedupe for the sweep.
	AlertExistsOn(ctx context.Context, instanceID, recipientID, tier string, day schedule.Date) (bool, error)
}

// SweepStateStore persists the sweep's last-run marker. Explicit state
// instead of a process-wide mutable global, so restarts and multiple
// replicas behave predictably.
type SweepStateStore interface {
	LastSweepRun(ctx context.Context) (time.Time, error)
	SetLastSweepRun(ctx context.Context, at time.Time) error
}

// Store is the full persistence surface the service needs.
type Store interface {
	ObligationStore
	InstanceStore
	AlertStore
	SweepStateStore
}
