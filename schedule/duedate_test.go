package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) schedule.Date {
	return schedule.NewDate(y, m, d)
}

func fixedClock(y int, m time.Month, d int) schedule.Clock {
	return schedule.FixedClock{Date: date(y, m, d)}
}

func newCalc() *schedule.Calculator {
	return schedule.NewCalculator(fixedClock(2025, time.March, 15))
}

func cfg(c schedule.Cadence, dueDay int) schedule.RecurrenceConfig {
	return schedule.RecurrenceConfig{
		Cadence:   c,
		DueDay:    dueDay,
		ValidFrom: date(2020, time.January, 1),
		Active:    true,
	}
}

func mustDue(t *testing.T, calc *schedule.Calculator, c schedule.RecurrenceConfig, key string) schedule.Resolution {
	t.Helper()
	res, err := calc.DueDate(c, schedule.PeriodKey(key))
	if err != nil {
		t.Fatalf("DueDate(%q): unexpected error: %v", key, err)
	}
	return res
}

// =============================================================================
// MONTH-OF-YEAR CADENCES
// =============================================================================

func TestDueDate_Monthly_NextMonthAtDueDay(t *testing.T) {
	// GIVEN: Monthly cadence, dueDay 15
	// WHEN: Computing the due date for reporting period 2024-03
	// THEN: Due falls on the 15th of the following month

	res := mustDue(t, newCalc(), cfg(schedule.Monthly, 15), "2024-03")
	if !res.Date.Equal(date(2024, time.April, 15)) {
		t.Errorf("expected 2024-04-15, got %s", res.Date)
	}
	if res.FellBack {
		t.Error("clean key must not report a fallback")
	}
}

func TestDueDate_Monthly_DueDayClampedToMonthLength(t *testing.T) {
	// GIVEN: Monthly cadence with dueDay 31
	// WHEN: The target month is February
	// THEN: The day clamps to the month's last day

	res := mustDue(t, newCalc(), cfg(schedule.Monthly, 31), "2023-01")
	if !res.Date.Equal(date(2023, time.February, 28)) {
		t.Errorf("expected 2023-02-28, got %s", res.Date)
	}

	// Leap year February keeps the 29th.
	res = mustDue(t, newCalc(), cfg(schedule.Monthly, 31), "2024-01")
	if !res.Date.Equal(date(2024, time.February, 29)) {
		t.Errorf("expected 2024-02-29, got %s", res.Date)
	}

	// A 31-day target month needs no clamp.
	res = mustDue(t, newCalc(), cfg(schedule.Monthly, 31), "2024-02")
	if !res.Date.Equal(date(2024, time.March, 31)) {
		t.Errorf("expected 2024-03-31, got %s", res.Date)
	}
}

func TestDueDate_Quarterly_MonthAfterLastCycleMonth(t *testing.T) {
	// GIVEN: Quarterly cadence, dueDay 10
	// WHEN: Computing for 2024-Q1 (Jan-Mar)
	// THEN: Last month of the cycle is March; due is April 10

	res := mustDue(t, newCalc(), cfg(schedule.Quarterly, 10), "2024-Q1")
	if !res.Date.Equal(date(2024, time.April, 10)) {
		t.Errorf("expected 2024-04-10, got %s", res.Date)
	}
}

func TestDueDate_Quarterly_AcceptsLegacyTrimesterKeys(t *testing.T) {
	// GIVEN: Historical data wrote quarterly keys as "2024-T1"
	// WHEN: Computing a due date from the legacy form
	// THEN: It parses cleanly, no fallback

	res := mustDue(t, newCalc(), cfg(schedule.Quarterly, 10), "2024-T1")
	if res.FellBack {
		t.Fatal("legacy trimester key should parse without fallback")
	}
	if !res.Date.Equal(date(2024, time.April, 10)) {
		t.Errorf("expected 2024-04-10, got %s", res.Date)
	}
}

func TestDueDate_BimonthlySemiannualFourMonthly(t *testing.T) {
	calc := newCalc()

	// Bimester 1 (Jan-Feb) comes due in March.
	res := mustDue(t, calc, cfg(schedule.Bimonthly, 15), "2024-B1")
	if !res.Date.Equal(date(2024, time.March, 15)) {
		t.Errorf("bimonthly: expected 2024-03-15, got %s", res.Date)
	}

	// Second semester (Jul-Dec) comes due the following January.
	res = mustDue(t, calc, cfg(schedule.Semiannual, 15), "2024-S2")
	if !res.Date.Equal(date(2025, time.January, 15)) {
		t.Errorf("semiannual: expected 2025-01-15, got %s", res.Date)
	}

	// Second four-month cycle (May-Aug) comes due in September.
	res = mustDue(t, calc, cfg(schedule.FourMonthly, 15), "2024-C2")
	if !res.Date.Equal(date(2024, time.September, 15)) {
		t.Errorf("four_monthly: expected 2024-09-15, got %s", res.Date)
	}
}

func TestDueDate_Annual_NextYearAtDueMonth(t *testing.T) {
	// GIVEN: Annual cadence, dueMonth 3, dueDay 31
	// WHEN: Computing for period 2024
	// THEN: Due is March 31 of the following year

	c := cfg(schedule.Annual, 31)
	c.DueMonth = 3
	res := mustDue(t, newCalc(), c, "2024")
	if !res.Date.Equal(date(2025, time.March, 31)) {
		t.Errorf("expected 2025-03-31, got %s", res.Date)
	}
}

// =============================================================================
// DAY-BASED CADENCES
// =============================================================================

func TestDueDate_Weekly_AnchorPlusWeekThenWeekday(t *testing.T) {
	// GIVEN: Weekly cadence, due weekday Friday (ISO 5)
	// WHEN: The anchor is Monday 2025-03-10
	// THEN: Anchor + 7 days is Monday 3/17; next Friday is 3/21

	res := mustDue(t, newCalc(), cfg(schedule.Weekly, 5), "2025-03-10")
	if !res.Date.Equal(date(2025, time.March, 21)) {
		t.Errorf("expected 2025-03-21, got %s", res.Date)
	}
}

func TestDueDate_Weekly_StaysWhenAlreadyOnWeekday(t *testing.T) {
	// GIVEN: Weekly cadence due on Mondays (ISO 1)
	// WHEN: Anchor + 7 already lands on a Monday
	// THEN: No further advance

	res := mustDue(t, newCalc(), cfg(schedule.Weekly, 1), "2025-03-10")
	if !res.Date.Equal(date(2025, time.March, 17)) {
		t.Errorf("expected 2025-03-17, got %s", res.Date)
	}
}

func TestDueDate_DailyAndOneTime(t *testing.T) {
	calc := newCalc()

	res := mustDue(t, calc, cfg(schedule.Daily, 15), "2025-03-10")
	if !res.Date.Equal(date(2025, time.March, 11)) {
		t.Errorf("daily: expected 2025-03-11, got %s", res.Date)
	}

	// OneTime keys carry the literal date, unmodified.
	res = mustDue(t, calc, cfg(schedule.OneTime, 15), "ESP-2025-06-30")
	if !res.Date.Equal(date(2025, time.June, 30)) {
		t.Errorf("one_time: expected 2025-06-30, got %s", res.Date)
	}
}

// =============================================================================
// GRACE DAYS AND FALLBACKS
// =============================================================================

func TestDueDate_GraceDaysAddedAfterBaseDate(t *testing.T) {
	// GIVEN: Quarterly, dueDay 10, 5 grace days
	// WHEN: Base due date is 2024-04-10
	// THEN: Final due date is 2024-04-15

	c := cfg(schedule.Quarterly, 10)
	c.GraceDays = 5
	res := mustDue(t, newCalc(), c, "2024-Q1")
	if !res.Date.Equal(date(2024, time.April, 15)) {
		t.Errorf("expected 2024-04-15, got %s", res.Date)
	}
}

func TestDueDate_MalformedKey_FallsBackToHeuristic(t *testing.T) {
	// GIVEN: A key that does not parse for the cadence
	// WHEN: Computing the due date (clock fixed at 2025-03-15)
	// THEN: Heuristic is today + one cycle length, and the fallback is
	//       observable instead of silent

	res := mustDue(t, newCalc(), cfg(schedule.Monthly, 15), "not-a-period")
	if !res.FellBack {
		t.Fatal("expected FellBack for malformed key")
	}
	if !errors.Is(res.Warning, schedule.ErrMalformedPeriodKey) {
		t.Errorf("expected ErrMalformedPeriodKey warning, got %v", res.Warning)
	}
	if !res.Date.Equal(date(2025, time.April, 15)) {
		t.Errorf("expected heuristic 2025-04-15, got %s", res.Date)
	}
}

func TestDueDate_InvalidConfig_Fatal(t *testing.T) {
	// GIVEN: dueMonth out of range
	// WHEN: Computing any due date
	// THEN: Rejected before any computation, no fallback

	c := cfg(schedule.Annual, 15)
	c.DueMonth = 13
	_, err := newCalc().DueDate(c, "2024")
	if !errors.Is(err, schedule.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
