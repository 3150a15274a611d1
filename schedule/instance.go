package schedule

// =============================================================================
// STATUS - Instance lifecycle
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusOnTime   Status = "submitted_on_time"
	StatusLate     Status = "submitted_late"
	StatusApproved Status = "approved" // terminal variant of submitted
)

// Fulfilled reports whether the instance has been submitted (in any variant).
// Fulfilled instances are immutable: reconciliation never deletes them or
// recomputes their due date.
func (s Status) Fulfilled() bool {
	return s == StatusOnTime || s == StatusLate || s == StatusApproved
}

// ParseStatus maps stored status names, including the legacy Spanish ones,
// onto the enumeration. Unknown names read as Pending.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusOnTime, StatusLate, StatusApproved:
		return Status(s)
	}
	switch s {
	case "Pendiente":
		return StatusPending
	case "Enviado a tiempo":
		return StatusOnTime
	case "Enviado tarde":
		return StatusLate
	case "Aprobado":
		return StatusApproved
	default:
		return StatusPending
	}
}

// =============================================================================
// INSTANCE - The engine's view of a stored period-instance
// =============================================================================

// Instance is the minimal projection of a stored instance that the
// reconciliation engine needs. The engine never holds live object graphs;
// richer records live in the compliance package, referenced by opaque ID.
type Instance struct {
	ID      string
	Key     PeriodKey
	DueDate Date
	Status  Status
}

// PeriodInstance is one (periodKey, dueDate) pair owed by an obligation.
type PeriodInstance struct {
	Key     PeriodKey `json:"period_key"`
	DueDate Date      `json:"due_date"`
}
