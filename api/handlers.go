/*
handlers.go - HTTP API handlers for the compliance engine

PURPOSE:
  Exposes the obligation scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Obligations:
    GET    /api/obligations                 List the catalog
    POST   /api/obligations                 Create obligation (generates horizon)
    GET    /api/obligations/{id}            Get obligation details
    PUT    /api/obligations/{id}            Update obligation (reconciles)
    DELETE /api/obligations/{id}            Delete (refused with fulfilled history)
    POST   /api/obligations/{id}/reconcile  Force reconciliation
    GET    /api/obligations/{id}/instances  List the obligation's instances
    POST   /api/obligations/{id}/instances  Add a single period on demand

  Instances:
    GET    /api/instances/{id}              Get instance details
    POST   /api/instances/{id}/submit       Fulfill the instance
    DELETE /api/instances/{id}              Delete (pending only)
    GET    /api/instances/{id}/alerts       Alerts raised for the instance
    GET    /api/instances/pending           Every unfulfilled instance

  Statistics:
    GET    /api/stats                       Compliance statistics report

  Admin:
    POST   /api/admin/sweep                 Trigger the alert sweep now
    POST   /api/admin/catalog               Bulk import obligation definitions

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate period, immutable instance)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/compliance-engine/alert"
	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *compliance.Service
	Sweeper *alert.Sweeper
	Factory *factory.ObligationFactory
	Logger  *log.Logger
}

// NewHandler creates a new handler around the service.
func NewHandler(svc *compliance.Service, sweeper *alert.Sweeper) *Handler {
	return &Handler{
		Service: svc,
		Sweeper: sweeper,
		Factory: factory.NewObligationFactory(),
	}
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

// ListObligations returns the full catalog.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	obligations, err := h.Service.Store.ListObligations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list obligations", err)
		return
	}

	dtos := make([]ObligationDTO, len(obligations))
	for i, ob := range obligations {
		dtos[i] = toObligationDTO(h.Factory, ob)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetObligation returns a single obligation.
func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ob, err := h.Service.Store.GetObligation(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(h.Factory, *ob))
}

// CreateObligation creates an obligation and generates its first horizon.
func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	var oj factory.ObligationJSON
	if err := json.NewDecoder(r.Body).Decode(&oj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ob, err := h.Factory.FromJSON(oj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid obligation definition", err)
		return
	}

	created, err := h.Service.CreateObligation(r.Context(), *ob)
	if err != nil {
		writeDomainError(w, "Failed to create obligation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toObligationDTO(h.Factory, *created))
}

// UpdateObligation replaces an obligation's definition and reconciles its
// instance set against the new schedule.
func (h *Handler) UpdateObligation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var oj factory.ObligationJSON
	if err := json.NewDecoder(r.Body).Decode(&oj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	oj.ID = id

	ob, err := h.Factory.FromJSON(oj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid obligation definition", err)
		return
	}

	updated, err := h.Service.UpdateObligation(r.Context(), *ob)
	if err != nil {
		writeDomainError(w, "Failed to update obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(h.Factory, *updated))
}

// DeleteObligation removes an obligation without fulfilled history.
func (h *Handler) DeleteObligation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.DeleteObligation(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete obligation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileObligation forces a reconciliation run.
func (h *Handler) ReconcileObligation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.Reconcile(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to reconcile obligation", err)
		return
	}

	instances, err := h.Service.Store.ListInstances(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTOs(instances))
}

// =============================================================================
// INSTANCE HANDLERS
// =============================================================================

// ListInstances returns an obligation's instances, ordered by due date.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.Service.Store.GetObligation(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get obligation", err)
		return
	}

	instances, err := h.Service.Store.ListInstances(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTOs(instances))
}

// AddInstance creates a single instance for a period outside the generated
// horizon, typically to back-file a historical period.
func (h *Handler) AddInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AddInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PeriodKey == "" {
		writeError(w, http.StatusBadRequest, "period_key is required", nil)
		return
	}

	inst, err := h.Service.AddInstance(r.Context(), id, schedule.PeriodKey(req.PeriodKey))
	if err != nil {
		writeDomainError(w, "Failed to add instance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstanceDTO(*inst))
}

// GetInstance returns a single instance.
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := h.Service.Store.GetInstance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get instance", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTO(*inst))
}

// ListPendingInstances returns every unfulfilled instance across the catalog.
func (h *Handler) ListPendingInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.Service.Store.ListPendingInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending instances", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTOs(instances))
}

// SubmitInstance fulfills an instance.
func (h *Handler) SubmitInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	submittedAt, err := parseSubmittedAt(req.SubmittedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid submitted_at (use RFC3339 or YYYY-MM-DD)", err)
		return
	}

	inst, err := h.Service.Submit(r.Context(), id, compliance.SubmissionRequest{
		SubmittedAt:  submittedAt,
		SubmittedBy:  req.SubmittedBy,
		ReportLink:   req.ReportLink,
		EvidenceLink: req.EvidenceLink,
		Notes:        req.Notes,
	})
	if err != nil {
		writeDomainError(w, "Failed to submit instance", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTO(*inst))
}

// DeleteInstance removes a pending instance.
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.DeleteInstance(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete instance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInstanceAlerts returns the alerts raised for an instance.
func (h *Handler) ListInstanceAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.Service.Store.GetInstance(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get instance", err)
		return
	}

	alerts, err := h.Service.Store.ListAlerts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts", err)
		return
	}

	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STATISTICS
// =============================================================================

// GetStatistics returns the compliance statistics report.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs the alert sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	raised, err := h.Sweeper.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{AlertsRaised: raised})
}

// ImportCatalog bulk-imports obligation definitions. All-or-nothing at the
// parse stage; creation proceeds per obligation afterward.
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	catalog, err := h.Factory.ParseCatalog(string(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog", err)
		return
	}

	result := CatalogImportResultDTO{IDs: make([]string, 0, len(catalog))}
	for _, ob := range catalog {
		created, err := h.Service.CreateObligation(r.Context(), ob)
		if err != nil {
			writeDomainError(w, "Failed to create obligation "+ob.Name, err)
			return
		}
		result.Imported++
		result.IDs = append(result.IDs, created.ID)
	}
	writeJSON(w, http.StatusCreated, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseSubmittedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, compliance.ErrObligationNotFound),
		errors.Is(err, compliance.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, compliance.ErrDuplicatePeriod),
		errors.Is(err, schedule.ErrImmutableInstance):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, schedule.ErrInvalidConfig),
		errors.Is(err, schedule.ErrUnrecognizedCadence),
		errors.Is(err, schedule.ErrMalformedPeriodKey):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
