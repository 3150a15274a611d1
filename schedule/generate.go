/*
generate.go - Instance set generation over a date range

PURPOSE:
  Pure function from (RecurrenceConfig, [from, to]) to the ordered,
  duplicate-free sequence of (periodKey, dueDate) pairs owed in that range.
  The walk steps by the cadence's period length (1/2/3/4/6/12 months, 7 days,
  1 day); OneTime yields at most one pair.

CONSISTENCY:
  Every due date is obtained through the Calculator from the generated key,
  so GenerateInstances and ComputeDueDate can never disagree about the same
  period. Reconciliation correctness depends on this: calling the generator
  twice with identical inputs yields an identical sequence.

SEE ALSO:
  - duedate.go:   per-period due dates
  - reconcile.go: consumes the generated set
*/
package schedule

import "time"

// Generator materializes the period-instances owed over a range.
type Generator struct {
	Calc *Calculator
}

func NewGenerator(clock Clock) *Generator {
	return &Generator{Calc: NewCalculator(clock)}
}

// Instances returns the (periodKey, dueDate) pairs whose due dates fall in
// [from, to], clamped to the config's validity window. Pure and idempotent.
func (g *Generator) Instances(cfg RecurrenceConfig, from, to Date) ([]PeriodInstance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	// Clamp to the validity window.
	from = MaxDate(from, cfg.ValidFrom)
	if !cfg.ValidTo.IsZero() {
		to = MinDate(to, cfg.ValidTo)
	}
	if from.After(to) {
		return nil, nil
	}

	switch cfg.Cadence {
	case Monthly, Bimonthly, Quarterly, FourMonthly, Semiannual, Annual:
		return g.walkMonths(cfg, from, to)
	case Weekly:
		return g.walkDays(cfg, from, to, 7)
	case Daily:
		return g.walkDays(cfg, from, to, 1)
	case OneTime:
		return g.oneTime(cfg, from, to)
	default:
		// Same defensive default as the calculator: treat as Monthly.
		monthly := cfg
		monthly.Cadence = Monthly
		return g.walkMonths(monthly, from, to)
	}
}

// walkMonths steps through cycle anchors until the computed due date exceeds
// `to`. Due dates trail their cycle by roughly one cycle plus grace days, so
// the walk first backs up to the earliest cycle whose due date is still on or
// after `from`.
func (g *Generator) walkMonths(cfg RecurrenceConfig, from, to Date) ([]PeriodInstance, error) {
	step := cfg.Cadence.PeriodMonths()

	// First day of the cycle containing `from`, then back up while earlier
	// cycles still come due inside the range.
	ordinal := (int(from.Month())-1)/step + 1
	anchor := NewDate(from.Year(), monthOfOrdinal(ordinal, step), 1)
	for {
		prev := anchor.AddMonths(-step)
		res, err := g.Calc.DueDate(cfg, EncodePeriodKey(cfg.Cadence, prev))
		if err != nil || res.Date.Before(from) {
			break
		}
		anchor = prev
	}

	var out []PeriodInstance
	seen := make(map[PeriodKey]bool)
	for {
		key := EncodePeriodKey(cfg.Cadence, anchor)
		res, err := g.Calc.DueDate(cfg, key)
		if err != nil {
			return nil, err
		}
		if res.Date.After(to) {
			break
		}
		if res.Date.AfterOrEqual(from) && !seen[key] {
			seen[key] = true
			out = append(out, PeriodInstance{Key: key, DueDate: res.Date})
		}
		anchor = anchor.AddMonths(step)
	}
	return out, nil
}

// walkDays steps through literal date anchors (weekly/daily cadences), with
// the same backward extension as walkMonths.
func (g *Generator) walkDays(cfg RecurrenceConfig, from, to Date, step int) ([]PeriodInstance, error) {
	start := from
	for {
		prev := start.AddDays(-step)
		res, err := g.Calc.DueDate(cfg, EncodePeriodKey(cfg.Cadence, prev))
		if err != nil || res.Date.Before(from) {
			break
		}
		start = prev
	}

	var out []PeriodInstance
	seen := make(map[PeriodKey]bool)
	for anchor := start; ; anchor = anchor.AddDays(step) {
		key := EncodePeriodKey(cfg.Cadence, anchor)
		res, err := g.Calc.DueDate(cfg, key)
		if err != nil {
			return nil, err
		}
		if res.Date.After(to) {
			break
		}
		if res.Date.AfterOrEqual(from) && !seen[key] {
			seen[key] = true
			out = append(out, PeriodInstance{Key: key, DueDate: res.Date})
		}
	}
	return out, nil
}

// oneTime yields the single instance anchored at ValidFrom (or the range
// start when the window is open on the left), if its due date is in range.
func (g *Generator) oneTime(cfg RecurrenceConfig, from, to Date) ([]PeriodInstance, error) {
	anchor := cfg.ValidFrom
	if anchor.IsZero() {
		anchor = from
	}
	key := EncodePeriodKey(OneTime, anchor)
	res, err := g.Calc.DueDate(cfg, key)
	if err != nil {
		return nil, err
	}
	if res.Date.Before(from) || res.Date.After(to) {
		return nil, nil
	}
	return []PeriodInstance{{Key: key, DueDate: res.Date}}, nil
}

func monthOfOrdinal(ordinal, step int) time.Month {
	return time.Month((ordinal-1)*step + 1)
}
