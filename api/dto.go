/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Obligation:
    ObligationDTO (wraps factory.ObligationJSON), timestamps added

  Instance:
    InstanceDTO, AddInstanceRequest, SubmitRequest

  Alert:
    AlertDTO

  Statistics:
    compliance.Report is returned as-is; it is already JSON-shaped.

VALIDATION:
  Obligation definitions are validated by the factory at parse time; the
  handlers only translate errors to HTTP statuses. DTOs are pure carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/obligation.go: ObligationJSON type
*/
package api

import (
	"time"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ObligationDTO represents an obligation in API responses.
type ObligationDTO struct {
	factory.ObligationJSON
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// InstanceDTO represents a period-instance in API responses.
type InstanceDTO struct {
	ID            string `json:"id"`
	ObligationID  string `json:"obligation_id"`
	PeriodKey     string `json:"period_key"`
	DueDate       string `json:"due_date"`
	Status        string `json:"status"`
	SubmittedAt   string `json:"submitted_at,omitempty"`
	DeviationDays int    `json:"deviation_days"`
	EvidenceLink  string `json:"evidence_link,omitempty"`
	ReportLink    string `json:"report_link,omitempty"`
	Notes         string `json:"notes,omitempty"`
	SubmittedBy   string `json:"submitted_by,omitempty"`
}

// AddInstanceRequest creates a single instance for a period on demand.
type AddInstanceRequest struct {
	PeriodKey string `json:"period_key"`
}

// SubmitRequest fulfills an instance.
type SubmitRequest struct {
	SubmittedAt  string `json:"submitted_at,omitempty"` // RFC3339 or YYYY-MM-DD; empty means now
	SubmittedBy  string `json:"submitted_by,omitempty"`
	ReportLink   string `json:"report_link,omitempty"`
	EvidenceLink string `json:"evidence_link,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// AlertDTO represents a raised alert.
type AlertDTO struct {
	ID          string `json:"id"`
	InstanceID  string `json:"instance_id"`
	RecipientID string `json:"recipient_id"`
	Tier        string `json:"tier"`
	Color       string `json:"color"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
	SentAt      string `json:"sent_at"`
}

// SweepResultDTO is the response to a manual sweep trigger.
type SweepResultDTO struct {
	AlertsRaised int `json:"alerts_raised"`
}

// CatalogImportResultDTO summarizes a bulk catalog import.
type CatalogImportResultDTO struct {
	Imported int      `json:"imported"`
	IDs      []string `json:"ids"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toObligationDTO(f *factory.ObligationFactory, ob compliance.Obligation) ObligationDTO {
	return ObligationDTO{
		ObligationJSON: f.ToJSON(ob),
		CreatedAt:      ob.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      ob.UpdatedAt.Format(time.RFC3339),
	}
}

func toInstanceDTO(inst compliance.Instance) InstanceDTO {
	dto := InstanceDTO{
		ID:            inst.ID,
		ObligationID:  inst.ObligationID,
		PeriodKey:     string(inst.PeriodKey),
		DueDate:       inst.DueDate.String(),
		Status:        string(inst.Status),
		DeviationDays: inst.DeviationDays,
		EvidenceLink:  inst.EvidenceLink,
		ReportLink:    inst.ReportLink,
		Notes:         inst.Notes,
		SubmittedBy:   inst.SubmittedBy,
	}
	if inst.SubmittedAt != nil {
		dto.SubmittedAt = inst.SubmittedAt.Format(time.RFC3339)
	}
	return dto
}

func toInstanceDTOs(instances []compliance.Instance) []InstanceDTO {
	dtos := make([]InstanceDTO, len(instances))
	for i, inst := range instances {
		dtos[i] = toInstanceDTO(inst)
	}
	return dtos
}

func toAlertDTO(a compliance.Alert) AlertDTO {
	return AlertDTO{
		ID:          a.ID,
		InstanceID:  a.InstanceID,
		RecipientID: a.RecipientID,
		Tier:        a.Tier,
		Color:       a.Color,
		Subject:     a.Subject,
		Message:     a.Message,
		SentAt:      a.SentAt.Format(time.RFC3339),
	}
}
