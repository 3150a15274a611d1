/*
Package alert raises deadline notifications for pending period-instances.

PURPOSE:
  A daily sweep walks every unfulfilled instance, measures the distance to
  its due date, and raises tiered alerts to the responsible parties. Tiers
  escalate as the deadline approaches and keep firing daily once it passes.

TIERS (days until due -> tier, color, audience):
  15, 10        Preventive   green    preparer
  5             FollowUp     yellow   preparer
  1             Risk         orange   preparer
  overdue       Critical     red      preparer (daily until submitted)
  5, 1          Supervision  blue     supervisor

DEDUPE:
  At most one alert per (instance, recipient, tier, day). The sweep can run
  any number of times a day without double-sending.

SEE ALSO:
  - sweep.go: the sweep itself
*/
package alert

import (
	"fmt"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// TIERS
// =============================================================================

const (
	TierPreventive  = "preventive"
	TierFollowUp    = "follow_up"
	TierRisk        = "risk"
	TierCritical    = "critical"
	TierSupervision = "supervision"
)

const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorOrange = "orange"
	ColorRed    = "red"
	ColorBlue   = "blue"
)

// Audience selects which responsible party receives a tier.
type Audience int

const (
	AudiencePreparer Audience = iota
	AudienceSupervisor
)

// Match is one alert a sweep pass should raise for an instance.
type Match struct {
	Tier     string
	Color    string
	Audience Audience
}

// Matches returns the tiers applicable at the given distance to the due
// date. daysUntilDue is negative once the deadline has passed. An instance
// can match both a preparer tier and the supervision tier on the same day.
func Matches(daysUntilDue int) []Match {
	var out []Match
	switch {
	case daysUntilDue < 0:
		out = append(out, Match{TierCritical, ColorRed, AudiencePreparer})
	case daysUntilDue == 15 || daysUntilDue == 10:
		out = append(out, Match{TierPreventive, ColorGreen, AudiencePreparer})
	case daysUntilDue == 5:
		out = append(out, Match{TierFollowUp, ColorYellow, AudiencePreparer})
	case daysUntilDue == 1:
		out = append(out, Match{TierRisk, ColorOrange, AudiencePreparer})
	}
	if daysUntilDue == 5 || daysUntilDue == 1 {
		out = append(out, Match{TierSupervision, ColorBlue, AudienceSupervisor})
	}
	return out
}

// =============================================================================
// MESSAGES
// =============================================================================

// Subject builds the alert subject line.
func Subject(ob compliance.Obligation, inst compliance.Instance) string {
	return fmt.Sprintf("%s - period %s due %s", ob.Name, inst.PeriodKey, inst.DueDate)
}

// Body builds the alert message for a tier at the given distance.
func Body(m Match, ob compliance.Obligation, inst compliance.Instance, daysUntilDue int) string {
	switch m.Tier {
	case TierCritical:
		return fmt.Sprintf("%s for period %s is OVERDUE by %d day(s) (due %s). Submit immediately.",
			ob.Name, inst.PeriodKey, -daysUntilDue, inst.DueDate)
	case TierSupervision:
		return fmt.Sprintf("%s for period %s assigned to %s is due in %d day(s) (%s) and has not been submitted.",
			ob.Name, inst.PeriodKey, ob.PreparerID, daysUntilDue, inst.DueDate)
	case TierRisk:
		return fmt.Sprintf("%s for period %s is due TOMORROW (%s).", ob.Name, inst.PeriodKey, inst.DueDate)
	default:
		return fmt.Sprintf("%s for period %s is due in %d day(s) (%s).",
			ob.Name, inst.PeriodKey, daysUntilDue, inst.DueDate)
	}
}

// Recipient resolves the audience to a user id. Empty when the obligation
// has no one assigned for that role.
func Recipient(m Match, ob compliance.Obligation) string {
	if m.Audience == AudienceSupervisor {
		return ob.SupervisorID
	}
	return ob.PreparerID
}

// DaysUntilDue is the signed distance from today to the due date.
func DaysUntilDue(today, due schedule.Date) int {
	return schedule.DaysBetween(today, due)
}
