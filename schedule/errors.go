/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error kinds in one place. Two severities exist:

  RECOVERED (logged, computation continues on a fallback):
    - ErrUnrecognizedCadence: falls back to the Monthly algorithm
    - ErrMalformedPeriodKey:  falls back to a "today + cadence length" estimate
    Both fallbacks are surfaced via Resolution.FellBack so callers and tests
    can observe which path was taken.

  FATAL (abort before any instance is touched):
    - ErrInvalidConfig:     rejected before generation/reconciliation
    - ErrImmutableInstance: deleting or recomputing a fulfilled instance
      aborts the enclosing reconciliation transaction entirely

USAGE:
  if errors.Is(err, schedule.ErrMalformedPeriodKey) { ... }

SEE ALSO:
  - duedate.go:   produces the recovered kinds
  - reconcile.go: produces ErrImmutableInstance
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnrecognizedCadence marks a cadence value outside the enumeration.
	// Recovered: the Monthly algorithm is used as a defensive default.
	ErrUnrecognizedCadence = errors.New("unrecognized cadence")

	// ErrMalformedPeriodKey marks a period key that does not parse for its
	// cadence. Recovered: a heuristic estimate is used, because historical
	// data may predate stricter validation.
	ErrMalformedPeriodKey = errors.New("malformed period key")

	// ErrInvalidConfig marks a recurrence configuration that must be
	// rejected before any generation or reconciliation runs.
	ErrInvalidConfig = errors.New("invalid recurrence config")

	// ErrImmutableInstance marks an attempt to delete or recompute a
	// fulfilled instance. Fatal: the enclosing transaction must abort whole.
	ErrImmutableInstance = errors.New("fulfilled instance is immutable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CadenceError reports an unrecognized cadence name at parse time.
type CadenceError struct {
	Name string
}

func (e *CadenceError) Error() string {
	return fmt.Sprintf("unrecognized cadence %q", e.Name)
}

func (e *CadenceError) Unwrap() error { return ErrUnrecognizedCadence }

// PeriodKeyError reports a key that failed to parse for a cadence.
type PeriodKeyError struct {
	Cadence Cadence
	Key     PeriodKey
	Reason  string
}

func (e *PeriodKeyError) Error() string {
	return fmt.Sprintf("period key %q invalid for %s cadence: %s", e.Key, e.Cadence, e.Reason)
}

func (e *PeriodKeyError) Unwrap() error { return ErrMalformedPeriodKey }

// ConfigError reports a recurrence configuration field out of range.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid recurrence config: %s=%v (%s)", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ImmutableInstanceError identifies which instance a reconciliation or
// submission tried to mutate.
type ImmutableInstanceError struct {
	InstanceID string
	PeriodKey  PeriodKey
	Status     Status
}

func (e *ImmutableInstanceError) Error() string {
	return fmt.Sprintf("instance %s (period %s, status %s) is immutable", e.InstanceID, e.PeriodKey, e.Status)
}

func (e *ImmutableInstanceError) Unwrap() error { return ErrImmutableInstance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRecovered reports whether the error kind is handled by a fallback path
// rather than aborting the operation.
func IsRecovered(err error) bool {
	return errors.Is(err, ErrUnrecognizedCadence) || errors.Is(err, ErrMalformedPeriodKey)
}

// IsFatal reports whether the error must abort the enclosing operation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrImmutableInstance)
}
