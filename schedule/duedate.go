/*
duedate.go - Due-date computation per cadence

PURPOSE:
  Pure function from (RecurrenceConfig, PeriodKey) to a due date. Each
  month-of-year cadence follows the same pattern: find the last calendar
  month of the cycle, advance one month, clamp the due day to the month's
  length. Grace days are added unconditionally at the end.

FALLBACK POLICY:
  Two recoverable conditions exist, both inherited from historical behavior:
  - A cadence value outside the enumeration uses the Monthly algorithm.
  - A key that fails to parse uses a "today + cadence length" estimate.
  Neither is fatal. Both are reported via Resolution.FellBack and Warning,
  and logged, so the path taken is observable instead of guessed from logs.

SEE ALSO:
  - periodkey.go: anchor resolution
  - generate.go:  walks periods and calls DueDate for each
*/
package schedule

import (
	"log"
	"time"
)

// =============================================================================
// RESOLUTION - Due date plus how it was obtained
// =============================================================================

// Resolution is the outcome of a due-date computation. FellBack distinguishes
// a cleanly parsed result from a best-effort estimate after a recovered error.
type Resolution struct {
	Date     Date
	FellBack bool
	Warning  error // the recovered error, nil when parsed cleanly
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes due dates. The Clock feeds only the fallback
// estimates; clean computations depend on the key alone.
type Calculator struct {
	Clock  Clock
	Logger *log.Logger // optional
}

func NewCalculator(clock Clock) *Calculator {
	return &Calculator{Clock: clock}
}

// DueDate computes the due date for one reporting period. The config is
// re-validated defensively; an invalid config is the only fatal outcome.
func (c *Calculator) DueDate(cfg RecurrenceConfig, key PeriodKey) (Resolution, error) {
	if err := cfg.Validate(); err != nil {
		return Resolution{}, err
	}
	cfg = cfg.WithDefaults()

	res := c.baseDate(cfg, key)

	// Grace days apply after the base date, for every cadence.
	if cfg.GraceDays > 0 {
		res.Date = res.Date.AddDays(cfg.GraceDays)
	}

	if res.FellBack && c.Logger != nil {
		c.Logger.Printf("[DueDate] fallback for key %q (%s): %v", key, cfg.Cadence, res.Warning)
	}
	return res, nil
}

func (c *Calculator) baseDate(cfg RecurrenceConfig, key PeriodKey) Resolution {
	switch cfg.Cadence {
	case Monthly:
		return c.monthFamily(cfg, key)
	case Bimonthly, Quarterly, FourMonthly, Semiannual:
		return c.monthFamily(cfg, key)

	case Annual:
		anchor, err := ParsePeriodKey(Annual, key)
		if err != nil {
			// Heuristic: one year out from today, at the configured anchors.
			t := c.today().AddYears(1)
			return Resolution{Date: clampDay(t.Year(), time.Month(cfg.DueMonth), cfg.DueDay), FellBack: true, Warning: err}
		}
		return Resolution{Date: clampDay(anchor.Year+1, time.Month(cfg.DueMonth), cfg.DueDay)}

	case Weekly:
		anchor, err := ParsePeriodKey(Weekly, key)
		if err != nil {
			return Resolution{Date: c.today().AddDays(7), FellBack: true, Warning: err}
		}
		return Resolution{Date: nextOrSameWeekday(anchor.Date.AddDays(7), cfg.DueDay)}

	case Daily:
		anchor, err := ParsePeriodKey(Daily, key)
		if err != nil {
			return Resolution{Date: c.today().AddDays(1), FellBack: true, Warning: err}
		}
		return Resolution{Date: anchor.Date.AddDays(1)}

	case OneTime:
		anchor, err := ParsePeriodKey(OneTime, key)
		if err != nil {
			return Resolution{Date: c.today(), FellBack: true, Warning: err}
		}
		return Resolution{Date: anchor.Date}

	default:
		// Defensive default: treat as Monthly. Observed legacy behavior,
		// kept for compatibility; never fatal.
		monthly := cfg
		monthly.Cadence = Monthly
		res := c.monthFamily(monthly, key)
		res.FellBack = true
		if res.Warning == nil {
			res.Warning = &CadenceError{Name: cfg.Cadence.String()}
		}
		return res
	}
}

// monthFamily covers Monthly plus the Bimonthly/Quarterly/FourMonthly/
// Semiannual cycles: last month of the cycle, advance one month, clamp.
func (c *Calculator) monthFamily(cfg RecurrenceConfig, key PeriodKey) Resolution {
	anchor, err := ParsePeriodKey(cfg.Cadence, key)
	if err != nil {
		// Heuristic: one cycle length out from today.
		t := c.today().AddMonths(cfg.Cadence.PeriodMonths())
		return Resolution{Date: clampDay(t.Year(), t.Month(), cfg.DueDay), FellBack: true, Warning: err}
	}

	// First day of the month following the cycle, then clamp the due day.
	next := NewDate(anchor.Year, anchor.LastMonth(), 1).AddMonths(1)
	return Resolution{Date: clampDay(next.Year(), next.Month(), cfg.DueDay)}
}

func (c *Calculator) today() Date {
	if c.Clock == nil {
		return SystemClock().Today()
	}
	return c.Clock.Today()
}

// nextOrSameWeekday advances d to the next occurrence of the ISO weekday
// (1=Monday..7=Sunday), staying put if d already falls on it.
func nextOrSameWeekday(d Date, isoWeekday int) Date {
	target := time.Weekday(isoWeekday % 7) // ISO 7 (Sunday) maps to Go 0
	diff := (int(target) - int(d.Weekday()) + 7) % 7
	return d.AddDays(diff)
}
