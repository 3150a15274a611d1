/*
Package schedule is the obligation scheduling and reconciliation engine.

PURPOSE:
  Converts an obligation's recurrence configuration into concrete due dates
  per reporting period, materializes the set of period-instances owed over a
  date range, reconciles that set when the configuration changes without
  destroying fulfilled history, and computes submission deviation.

KEY CONCEPTS:
  - Cadence:          The recurrence family (Monthly, Quarterly, ...)
  - RecurrenceConfig: Due-day/month anchors, grace days, validity window
  - PeriodKey:        Canonical string identifying which cycle an instance
                      covers ("2024-03", "2024-Q1", "2024")
  - Instance:         One concrete occurrence of an obligation for a period

DESIGN PRINCIPLES:
  1. Purity: calculators and generators are pure functions of their inputs;
     "today" comes from an injected Clock, never a global.
  2. Idempotence: generating twice with identical inputs yields identical
     sequences; reconciling twice with no config change yields an empty delta.
  3. Immutability: a submitted instance is never deleted or recomputed.
  4. Observability: best-effort fallbacks (unknown cadence, malformed key)
     are reported through Resolution.FellBack instead of being silent.

SEE ALSO:
  - duedate.go:   Per-cadence due-date algorithms
  - periodkey.go: Period key codec
  - generate.go:  Instance set generation over a range
  - reconcile.go: Delta computation against stored instances
*/
package schedule

import (
	"fmt"
	"strings"
)

// =============================================================================
// CADENCE - Closed enumeration of recurrence families
// =============================================================================

type Cadence int

const (
	Monthly Cadence = iota
	Bimonthly
	Quarterly
	FourMonthly
	Semiannual
	Annual
	Weekly
	Daily
	OneTime
)

// PeriodMonths returns the cycle length in months for month-of-year cadences,
// and 0 for Weekly/Daily/OneTime.
func (c Cadence) PeriodMonths() int {
	switch c {
	case Monthly:
		return 1
	case Bimonthly:
		return 2
	case Quarterly:
		return 3
	case FourMonthly:
		return 4
	case Semiannual:
		return 6
	case Annual:
		return 12
	default:
		return 0
	}
}

func (c Cadence) String() string {
	switch c {
	case Monthly:
		return "monthly"
	case Bimonthly:
		return "bimonthly"
	case Quarterly:
		return "quarterly"
	case FourMonthly:
		return "four_monthly"
	case Semiannual:
		return "semiannual"
	case Annual:
		return "annual"
	case Weekly:
		return "weekly"
	case Daily:
		return "daily"
	case OneTime:
		return "one_time"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// ParseCadence maps a stored cadence name to the enumeration. Unrecognized
// names are a deserialization-time error, not a runtime fallback. Legacy
// Spanish names from historical data are accepted.
func ParseCadence(s string) (Cadence, error) {
	switch normalizeCadenceName(s) {
	case "MONTHLY", "MENSUAL":
		return Monthly, nil
	case "BIMONTHLY", "BIMESTRAL":
		return Bimonthly, nil
	case "QUARTERLY", "TRIMESTRAL":
		return Quarterly, nil
	case "FOUR_MONTHLY", "FOURMONTHLY", "CUATRIMESTRAL":
		return FourMonthly, nil
	case "SEMIANNUAL", "SEMESTRAL":
		return Semiannual, nil
	case "ANNUAL", "ANUAL":
		return Annual, nil
	case "WEEKLY", "SEMANAL":
		return Weekly, nil
	case "DAILY", "DIARIA":
		return Daily, nil
	case "ONE_TIME", "ONETIME", "UNICA VEZ", "ESPECIFICA":
		return OneTime, nil
	default:
		return Monthly, &CadenceError{Name: s}
	}
}

func normalizeCadenceName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	// Strip accents seen in historical data (ÚNICA VEZ, ESPECÍFICA, DIARÍA).
	replacer := strings.NewReplacer("Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U")
	return replacer.Replace(s)
}

// =============================================================================
// RECURRENCE CONFIG
// =============================================================================

// Defaults applied when a config leaves anchors unset.
const (
	DefaultDueDay   = 15
	DefaultDueMonth = 1
)

// RecurrenceConfig is one immutable version of an obligation's schedule rule.
type RecurrenceConfig struct {
	Cadence Cadence

	// DueDay is the day-of-month anchor (1-31) for month-of-year cadences,
	// and the ISO weekday (1=Monday..7=Sunday) for Weekly.
	DueDay int

	// DueMonth (1-12) is the due month for Annual and the month offset within
	// the cycle for the quarterly family.
	DueMonth int

	// GraceDays are added after the base due date, unconditionally.
	GraceDays int

	// Validity window, inclusive. Zero ValidTo means open-ended.
	ValidFrom Date
	ValidTo   Date

	// Inactive obligations generate no new instances.
	Active bool
}

// WithDefaults returns a copy with unset anchors replaced by defaults.
func (c RecurrenceConfig) WithDefaults() RecurrenceConfig {
	if c.DueDay == 0 {
		c.DueDay = DefaultDueDay
	}
	if c.DueMonth == 0 {
		c.DueMonth = DefaultDueMonth
	}
	return c
}

// Validate rejects configurations that must never reach generation or
// reconciliation. Fatal: callers abort before touching any instance.
func (c RecurrenceConfig) Validate() error {
	cfg := c.WithDefaults()
	if cfg.DueDay < 1 || cfg.DueDay > 31 {
		return &ConfigError{Field: "dueDay", Value: cfg.DueDay, Reason: "must be 1-31"}
	}
	if cfg.Cadence == Weekly && cfg.DueDay > 7 {
		return &ConfigError{Field: "dueDay", Value: cfg.DueDay, Reason: "must be 1-7 (ISO weekday) for weekly cadence"}
	}
	if cfg.DueMonth < 1 || cfg.DueMonth > 12 {
		return &ConfigError{Field: "dueMonth", Value: cfg.DueMonth, Reason: "must be 1-12"}
	}
	if cfg.GraceDays < 0 {
		return &ConfigError{Field: "graceDays", Value: cfg.GraceDays, Reason: "must be >= 0"}
	}
	if !cfg.ValidTo.IsZero() && cfg.ValidTo.Before(cfg.ValidFrom) {
		return &ConfigError{Field: "validTo", Value: cfg.ValidTo.String(), Reason: "before validFrom"}
	}
	return nil
}
