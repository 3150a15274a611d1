/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Obligation CRUD and horizon generation
- Instance submission, immutability conflicts
- Domain error to HTTP status mapping
- Manual sweep trigger
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warp/compliance-engine/alert"
	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/compliance/store"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/schedule"
)

func newTestRouter(t *testing.T) (http.Handler, *compliance.Service) {
	t.Helper()

	mem := store.NewMemory()
	clock := schedule.FixedClock{Date: schedule.NewDate(2024, time.March, 5)}
	svc := compliance.NewService(mem, clock)
	svc.Metrics = metrics.NewForTesting()

	sweeper := alert.NewSweeper(mem, clock)
	sweeper.Metrics = svc.Metrics

	return NewRouter(NewHandler(svc, sweeper)), svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func createObligation(t *testing.T, router http.Handler) ObligationDTO {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/obligations", map[string]any{
		"name":          "Monthly VAT declaration",
		"entity_id":     "tax-authority",
		"preparer_id":   "alice",
		"supervisor_id": "bob",
		"recurrence": map[string]any{
			"cadence":    "monthly",
			"due_day":    10,
			"valid_from": "2024-01-01",
			"active":     true,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[ObligationDTO](t, rec)
}

func TestCreateObligation_GeneratesInstances(t *testing.T) {
	// GIVEN: A fresh catalog
	router, _ := newTestRouter(t)

	// WHEN: Creating a monthly obligation
	ob := createObligation(t, router)
	if ob.ID == "" {
		t.Fatal("Expected a generated obligation id")
	}

	// THEN: The first horizon exists
	rec := doJSON(t, router, http.MethodGet, "/api/obligations/"+ob.ID+"/instances", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	instances := decodeBody[[]InstanceDTO](t, rec)
	if len(instances) == 0 {
		t.Fatal("Expected generated instances")
	}
	if instances[0].PeriodKey != "2024-02" {
		t.Errorf("Expected first period 2024-02, got %s", instances[0].PeriodKey)
	}
	if instances[0].DueDate != "2024-03-10" {
		t.Errorf("Expected first due date 2024-03-10, got %s", instances[0].DueDate)
	}
	for _, inst := range instances {
		if inst.Status != "pending" {
			t.Errorf("Expected pending, got %s", inst.Status)
		}
	}
}

func TestCreateObligation_InvalidCadenceIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/obligations", map[string]any{
		"name":       "Broken",
		"recurrence": map[string]any{"cadence": "fortnightly", "active": true},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGetObligation_UnknownIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/obligations/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestSubmitInstance_RecordsDeviation(t *testing.T) {
	// GIVEN: An obligation with a generated instance due 2024-03-10
	router, _ := newTestRouter(t)
	ob := createObligation(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/obligations/"+ob.ID+"/instances", nil)
	instances := decodeBody[[]InstanceDTO](t, rec)
	target := instances[0]

	// WHEN: Submitting two days late
	rec = doJSON(t, router, http.MethodPost, "/api/instances/"+target.ID+"/submit", SubmitRequest{
		SubmittedAt: "2024-03-12",
		SubmittedBy: "alice",
		ReportLink:  "https://drive.example/report.pdf",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// THEN: Status and deviation reflect the late submission
	submitted := decodeBody[InstanceDTO](t, rec)
	if submitted.Status != "submitted_late" {
		t.Errorf("Expected submitted_late, got %s", submitted.Status)
	}
	if submitted.DeviationDays != 2 {
		t.Errorf("Expected deviation 2, got %d", submitted.DeviationDays)
	}

	// AND: A second submission conflicts
	rec = doJSON(t, router, http.MethodPost, "/api/instances/"+target.ID+"/submit", SubmitRequest{
		SubmittedAt: "2024-03-13",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on resubmission, got %d", rec.Code)
	}
}

func TestDeleteInstance_FulfilledIs409(t *testing.T) {
	router, _ := newTestRouter(t)
	ob := createObligation(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/obligations/"+ob.ID+"/instances", nil)
	instances := decodeBody[[]InstanceDTO](t, rec)
	target := instances[0]

	rec = doJSON(t, router, http.MethodPost, "/api/instances/"+target.ID+"/submit", SubmitRequest{
		SubmittedAt: "2024-03-08",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/instances/"+target.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}

	// A pending sibling deletes fine.
	rec = doJSON(t, router, http.MethodDelete, "/api/instances/"+instances[1].ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
}

func TestAddInstance_DuplicatePeriodIs409(t *testing.T) {
	router, _ := newTestRouter(t)
	ob := createObligation(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/obligations/"+ob.ID+"/instances",
		AddInstanceRequest{PeriodKey: "2023-11"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	added := decodeBody[InstanceDTO](t, rec)
	if added.DueDate != "2023-12-10" {
		t.Errorf("Expected due 2023-12-10, got %s", added.DueDate)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/obligations/"+ob.ID+"/instances",
		AddInstanceRequest{PeriodKey: "2023-11"})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}
}

func TestUpdateObligation_ReconcilesPending(t *testing.T) {
	router, _ := newTestRouter(t)
	ob := createObligation(t, router)

	body := ob.ObligationJSON
	body.Recurrence.DueDay = 20
	rec := doJSON(t, router, http.MethodPut, "/api/obligations/"+ob.ID, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/obligations/"+ob.ID+"/instances", nil)
	instances := decodeBody[[]InstanceDTO](t, rec)
	for _, inst := range instances {
		if inst.DueDate[8:] != "20" {
			t.Errorf("Expected day 20 due dates after update, got %s for %s", inst.DueDate, inst.PeriodKey)
		}
	}
}

func TestStatistics_Endpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	createObligation(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	report := decodeBody[map[string]any](t, rec)
	if _, ok := report["counts"]; !ok {
		t.Error("Expected counts in statistics report")
	}
}

func TestTriggerSweep_RaisesAlerts(t *testing.T) {
	// GIVEN: An instance due in exactly 5 days (2024-03-10 from the fixed
	// clock at 2024-03-05), which matches the follow-up and supervision tiers
	router, _ := newTestRouter(t)
	ob := createObligation(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/sweep", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[SweepResultDTO](t, rec)
	if result.AlertsRaised != 2 {
		t.Errorf("Expected 2 alerts, got %d", result.AlertsRaised)
	}

	// Alerts are attached to the due instance
	rec = doJSON(t, router, http.MethodGet, "/api/obligations/"+ob.ID+"/instances", nil)
	instances := decodeBody[[]InstanceDTO](t, rec)
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/instances/%s/alerts", instances[0].ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	alerts := decodeBody[[]AlertDTO](t, rec)
	if len(alerts) != 2 {
		t.Errorf("Expected 2 alerts for the due instance, got %d", len(alerts))
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
