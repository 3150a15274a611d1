/*
stats.go - Compliance statistics over the instance set

PURPOSE:
  Aggregates the stored instances into the figures a compliance officer
  reads: counts by status, the overall compliance rate, average delay on
  late submissions, and breakdowns per entity, per preparer, and per month.

PRECISION:
  Rates and averages are decimal, not float64. Compliance percentages end
  up in regulatory self-assessments; binary floating point drift in the
  second decimal place is not acceptable there.

SEE ALSO:
  - service.go: exposes Statistics through the store
*/
package compliance

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/schedule"
)

// ratePlaces is the rounding applied to every percentage and average.
const ratePlaces = 2

// =============================================================================
// RESULT TYPES
// =============================================================================

// StatusCounts tallies instances by lifecycle state.
type StatusCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	OnTime   int `json:"on_time"`
	Late     int `json:"late"`
	Approved int `json:"approved"`
	Overdue  int `json:"overdue"` // pending with due date before today
}

// GroupStats is one row of a breakdown (per entity, per preparer).
type GroupStats struct {
	Key            string          `json:"key"`
	Counts         StatusCounts    `json:"counts"`
	ComplianceRate decimal.Decimal `json:"compliance_rate"`
}

// MonthStats is one row of the monthly trend, keyed by due month.
type MonthStats struct {
	Month          string          `json:"month"` // YYYY-MM
	Counts         StatusCounts    `json:"counts"`
	ComplianceRate decimal.Decimal `json:"compliance_rate"`
}

// Report is the full statistics snapshot.
type Report struct {
	Counts StatusCounts `json:"counts"`

	// ComplianceRate is fulfilled-on-time over all fulfilled, as a
	// percentage. Approved counts as on time.
	ComplianceRate decimal.Decimal `json:"compliance_rate"`

	// AverageDelayDays averages DeviationDays over late submissions only.
	AverageDelayDays decimal.Decimal `json:"average_delay_days"`

	ByEntity   []GroupStats `json:"by_entity"`
	ByPreparer []GroupStats `json:"by_preparer"`
	Monthly    []MonthStats `json:"monthly"`
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Statistics computes the report over every stored instance.
func (s *Service) Statistics(ctx context.Context) (*Report, error) {
	instances, err := s.Store.ListAllInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	obligations, err := s.Store.ListObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	return buildReport(instances, obligations, s.Clock.Today()), nil
}

func buildReport(instances []Instance, obligations []Obligation, today schedule.Date) *Report {
	byObligation := make(map[string]Obligation, len(obligations))
	for _, ob := range obligations {
		byObligation[ob.ID] = ob
	}

	report := &Report{}
	entities := newGrouper()
	preparers := newGrouper()
	months := newGrouper()

	var lateDaysSum, lateCount int64
	for _, inst := range instances {
		tally(&report.Counts, inst, today)

		if inst.Status == schedule.StatusLate {
			lateDaysSum += int64(inst.DeviationDays)
			lateCount++
		}

		ob, known := byObligation[inst.ObligationID]
		if known {
			entities.add(ob.EntityID, inst, today)
			preparers.add(ob.PreparerID, inst, today)
		}
		months.add(inst.DueDate.Time().Format("2006-01"), inst, today)
	}

	report.ComplianceRate = complianceRate(report.Counts)
	if lateCount > 0 {
		report.AverageDelayDays = decimal.NewFromInt(lateDaysSum).
			Div(decimal.NewFromInt(lateCount)).
			Round(ratePlaces)
	}

	report.ByEntity = entities.rows()
	report.ByPreparer = preparers.rows()
	for _, g := range months.rows() {
		report.Monthly = append(report.Monthly, MonthStats{
			Month:          g.Key,
			Counts:         g.Counts,
			ComplianceRate: g.ComplianceRate,
		})
	}
	return report
}

func tally(c *StatusCounts, inst Instance, today schedule.Date) {
	c.Total++
	switch inst.Status {
	case schedule.StatusPending:
		c.Pending++
		if inst.DueDate.Before(today) {
			c.Overdue++
		}
	case schedule.StatusOnTime:
		c.OnTime++
	case schedule.StatusLate:
		c.Late++
	case schedule.StatusApproved:
		c.Approved++
	}
}

// complianceRate is (on time + approved) / fulfilled, in percent. Zero when
// nothing has been fulfilled yet; an empty denominator is not 100%.
func complianceRate(c StatusCounts) decimal.Decimal {
	fulfilled := c.OnTime + c.Late + c.Approved
	if fulfilled == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.OnTime + c.Approved)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(fulfilled))).
		Round(ratePlaces)
}

// =============================================================================
// GROUPING
// =============================================================================

type grouper struct {
	counts map[string]*StatusCounts
	order  []string
}

func newGrouper() *grouper {
	return &grouper{counts: make(map[string]*StatusCounts)}
}

func (g *grouper) add(key string, inst Instance, today schedule.Date) {
	if key == "" {
		return
	}
	c, ok := g.counts[key]
	if !ok {
		c = &StatusCounts{}
		g.counts[key] = c
		g.order = append(g.order, key)
	}
	tally(c, inst, today)
}

// rows returns the groups sorted by key for stable output.
func (g *grouper) rows() []GroupStats {
	keys := make([]string, len(g.order))
	copy(keys, g.order)
	sort.Strings(keys)

	out := make([]GroupStats, 0, len(keys))
	for _, k := range keys {
		c := g.counts[k]
		out = append(out, GroupStats{
			Key:            k,
			Counts:         *c,
			ComplianceRate: complianceRate(*c),
		})
	}
	return out
}
