/*
Package factory provides JSON to Go obligation conversion.

PURPOSE:
  Converts JSON obligation definitions into compliance.Obligation values.
  This enables obligation configuration without code changes - compliance
  officers can define the reporting catalog in JSON, and the factory
  creates the proper Go structs with deserialization-time validation.

WHY JSON?
  - Non-developers can maintain the catalog
  - Easy integration with admin UI
  - Version control for obligation definitions
  - Bulk import of an existing catalog

JSON SCHEMA:
  {
    "id": "vat-monthly",
    "name": "Monthly VAT declaration",
    "entity_id": "tax-authority",
    "legal_basis": "Tax Code art. 164",
    "preparer_id": "alice",
    "supervisor_id": "bob",
    "required_format": "XML",
    "recurrence": {
      "cadence": "monthly",
      "due_day": 10,
      "grace_days": 0,
      "valid_from": "2024-01-01",
      "active": true
    }
  }

KEY FEATURES:
  - Strict cadence parsing: unknown names fail here, not at due-date time
  - Legacy cadence and status names from historical exports are accepted
  - Anchor defaults applied; the full config is validated before return

USAGE:
  factory := NewObligationFactory()
  ob, err := factory.Parse(jsonString)
  svc.CreateObligation(ctx, *ob)

SEE ALSO:
  - schedule/cadence.go: RecurrenceConfig and its validation
  - compliance/types.go: Obligation definition
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ObligationJSON is the JSON representation of an obligation.
type ObligationJSON struct {
	ID               string         `json:"id,omitempty"`
	Name             string         `json:"name"`
	EntityID         string         `json:"entity_id"`
	LegalBasis       string         `json:"legal_basis,omitempty"`
	PreparerID       string         `json:"preparer_id,omitempty"`
	SupervisorID     string         `json:"supervisor_id,omitempty"`
	RequiredFormat   string         `json:"required_format,omitempty"`
	InstructionsLink string         `json:"instructions_link,omitempty"`
	Recurrence       RecurrenceJSON `json:"recurrence"`
}

// RecurrenceJSON represents the schedule rule.
type RecurrenceJSON struct {
	Cadence   string `json:"cadence"`
	DueDay    int    `json:"due_day,omitempty"`
	DueMonth  int    `json:"due_month,omitempty"`
	GraceDays int    `json:"grace_days,omitempty"`
	ValidFrom string `json:"valid_from,omitempty"` // YYYY-MM-DD
	ValidTo   string `json:"valid_to,omitempty"`   // YYYY-MM-DD, empty = open-ended
	Active    bool   `json:"active"`
}

// =============================================================================
// OBLIGATION FACTORY
// =============================================================================

// ObligationFactory converts JSON obligations to Go structs.
type ObligationFactory struct{}

func NewObligationFactory() *ObligationFactory {
	return &ObligationFactory{}
}

// Parse parses a JSON string into a validated Obligation.
func (f *ObligationFactory) Parse(jsonStr string) (*compliance.Obligation, error) {
	var oj ObligationJSON
	if err := json.Unmarshal([]byte(jsonStr), &oj); err != nil {
		return nil, fmt.Errorf("failed to parse obligation JSON: %w", err)
	}
	return f.FromJSON(oj)
}

// ParseCatalog parses a JSON array of obligations, as produced by a bulk
// catalog export. All entries must parse; a single bad entry fails the lot.
func (f *ObligationFactory) ParseCatalog(jsonStr string) ([]compliance.Obligation, error) {
	var raw []ObligationJSON
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse obligation catalog JSON: %w", err)
	}

	out := make([]compliance.Obligation, 0, len(raw))
	for i, oj := range raw {
		ob, err := f.FromJSON(oj)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d (%q): %w", i, oj.Name, err)
		}
		out = append(out, *ob)
	}
	return out, nil
}

// FromJSON converts ObligationJSON to a compliance.Obligation. Validation
// happens here so a bad definition never reaches the scheduling engine.
func (f *ObligationFactory) FromJSON(oj ObligationJSON) (*compliance.Obligation, error) {
	if oj.Name == "" {
		return nil, fmt.Errorf("obligation name is required")
	}

	rec, err := parseRecurrence(oj.Recurrence)
	if err != nil {
		return nil, err
	}

	ob := &compliance.Obligation{
		ID:               oj.ID,
		Name:             oj.Name,
		EntityID:         oj.EntityID,
		LegalBasis:       oj.LegalBasis,
		PreparerID:       oj.PreparerID,
		SupervisorID:     oj.SupervisorID,
		RequiredFormat:   oj.RequiredFormat,
		InstructionsLink: oj.InstructionsLink,
		Recurrence:       rec,
	}
	return ob, nil
}

// ToJSON converts an Obligation back to its JSON representation.
func (f *ObligationFactory) ToJSON(ob compliance.Obligation) ObligationJSON {
	oj := ObligationJSON{
		ID:               ob.ID,
		Name:             ob.Name,
		EntityID:         ob.EntityID,
		LegalBasis:       ob.LegalBasis,
		PreparerID:       ob.PreparerID,
		SupervisorID:     ob.SupervisorID,
		RequiredFormat:   ob.RequiredFormat,
		InstructionsLink: ob.InstructionsLink,
		Recurrence: RecurrenceJSON{
			Cadence:   ob.Recurrence.Cadence.String(),
			DueDay:    ob.Recurrence.DueDay,
			DueMonth:  ob.Recurrence.DueMonth,
			GraceDays: ob.Recurrence.GraceDays,
			Active:    ob.Recurrence.Active,
		},
	}
	if !ob.Recurrence.ValidFrom.IsZero() {
		oj.Recurrence.ValidFrom = ob.Recurrence.ValidFrom.String()
	}
	if !ob.Recurrence.ValidTo.IsZero() {
		oj.Recurrence.ValidTo = ob.Recurrence.ValidTo.String()
	}
	return oj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRecurrence(rj RecurrenceJSON) (schedule.RecurrenceConfig, error) {
	cadence, err := schedule.ParseCadence(rj.Cadence)
	if err != nil {
		return schedule.RecurrenceConfig{}, err
	}

	cfg := schedule.RecurrenceConfig{
		Cadence:   cadence,
		DueDay:    rj.DueDay,
		DueMonth:  rj.DueMonth,
		GraceDays: rj.GraceDays,
		Active:    rj.Active,
	}

	if rj.ValidFrom != "" {
		cfg.ValidFrom, err = schedule.ParseDate(rj.ValidFrom)
		if err != nil {
			return schedule.RecurrenceConfig{}, fmt.Errorf("valid_from: %w", err)
		}
	}
	if rj.ValidTo != "" {
		cfg.ValidTo, err = schedule.ParseDate(rj.ValidTo)
		if err != nil {
			return schedule.RecurrenceConfig{}, fmt.Errorf("valid_to: %w", err)
		}
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return schedule.RecurrenceConfig{}, err
	}
	return cfg, nil
}
