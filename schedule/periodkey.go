/*
periodkey.go - Canonical period identifier codec

PURPOSE:
  Encodes a calendar date into the canonical key for a cadence and parses
  keys back into the representative anchor used for due-date computation.

CANONICAL FORMS:
  Monthly      YYYY-MM          (the *reporting* month; due falls next month)
  Bimonthly    YYYY-Bn          n = ceil(month/2), Jan-Feb = B1
  Quarterly    YYYY-Qn          n = ceil(month/3); legacy "Tn" keys parse too
  FourMonthly  YYYY-Cn          n = ceil(month/4)
  Semiannual   YYYY-Sn          n = 1 for Jan-Jun, else 2
  Annual       YYYY
  Weekly/Daily YYYY-MM-DD       literal anchor date
  OneTime      ESP-YYYY-MM-DD   literal anchor date

  Parsing failures return a *PeriodKeyError; callers fall back to a
  best-effort estimate (see duedate.go) rather than failing hard, because
  historical data predates stricter validation.

SEE ALSO:
  - duedate.go: consumes Anchor to compute due dates
*/
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodKey identifies which cycle an instance covers. Unique per obligation.
type PeriodKey string

// Anchor is the resolved representation of a period key: the cycle within a
// year for month-of-year cadences, or a literal date for the rest.
type Anchor struct {
	Cadence Cadence
	Year    int
	Ordinal int  // 1-based cycle number within the year (month-of-year only)
	Date    Date // literal anchor (Weekly, Daily, OneTime only)
}

// FirstMonth returns the first calendar month of the cycle.
func (a Anchor) FirstMonth() time.Month {
	return time.Month((a.Ordinal-1)*a.Cadence.PeriodMonths() + 1)
}

// LastMonth returns the last calendar month of the cycle.
func (a Anchor) LastMonth() time.Month {
	return time.Month(a.Ordinal * a.Cadence.PeriodMonths())
}

// =============================================================================
// ENCODING
// =============================================================================

// EncodePeriodKey produces the canonical key for the cycle containing date.
func EncodePeriodKey(c Cadence, date Date) PeriodKey {
	year := date.Year()
	month := int(date.Month())

	switch c {
	case Monthly:
		return PeriodKey(fmt.Sprintf("%d-%02d", year, month))
	case Bimonthly:
		return PeriodKey(fmt.Sprintf("%d-B%d", year, (month-1)/2+1))
	case Quarterly:
		return PeriodKey(fmt.Sprintf("%d-Q%d", year, (month-1)/3+1))
	case FourMonthly:
		return PeriodKey(fmt.Sprintf("%d-C%d", year, (month-1)/4+1))
	case Semiannual:
		half := 1
		if month > 6 {
			half = 2
		}
		return PeriodKey(fmt.Sprintf("%d-S%d", year, half))
	case Annual:
		return PeriodKey(strconv.Itoa(year))
	case OneTime:
		return PeriodKey("ESP-" + date.String())
	default: // Weekly, Daily
		return PeriodKey(date.String())
	}
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePeriodKey resolves a key back into its anchor. Malformed keys return
// a *PeriodKeyError wrapping ErrMalformedPeriodKey.
func ParsePeriodKey(c Cadence, key PeriodKey) (Anchor, error) {
	s := strings.TrimSpace(string(key))

	switch c {
	case Monthly:
		year, month, err := parseYearMonth(s)
		if err != nil {
			return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: err.Error()}
		}
		return Anchor{Cadence: c, Year: year, Ordinal: month}, nil

	case Bimonthly:
		return parseOrdinalKey(c, key, s, "B", 6)
	case Quarterly:
		// Historical exports wrote trimester keys as "T"; accept both.
		if strings.Contains(s, "-T") {
			return parseOrdinalKey(c, key, strings.Replace(s, "-T", "-Q", 1), "Q", 4)
		}
		return parseOrdinalKey(c, key, s, "Q", 4)
	case FourMonthly:
		return parseOrdinalKey(c, key, s, "C", 3)
	case Semiannual:
		return parseOrdinalKey(c, key, s, "S", 2)

	case Annual:
		year, err := strconv.Atoi(s)
		if err != nil || year < 1000 || year > 9999 {
			return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: "want YYYY"}
		}
		return Anchor{Cadence: c, Year: year, Ordinal: 1}, nil

	case Weekly, Daily:
		date, err := ParseDate(s)
		if err != nil {
			return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: "want YYYY-MM-DD"}
		}
		return Anchor{Cadence: c, Year: date.Year(), Date: date}, nil

	case OneTime:
		date, err := ParseDate(strings.TrimPrefix(s, "ESP-"))
		if err != nil {
			return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: "want ESP-YYYY-MM-DD"}
		}
		return Anchor{Cadence: c, Year: date.Year(), Date: date}, nil

	default:
		return Anchor{}, &CadenceError{Name: c.String()}
	}
}

func parseYearMonth(s string) (year, month int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want YYYY-MM")
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil || year < 1000 || year > 9999 {
		return 0, 0, fmt.Errorf("bad year %q", parts[0])
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("bad month %q", parts[1])
	}
	return year, month, nil
}

func parseOrdinalKey(c Cadence, key PeriodKey, s, marker string, max int) (Anchor, error) {
	parts := strings.SplitN(s, "-"+marker, 2)
	if len(parts) != 2 {
		return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: fmt.Sprintf("want YYYY-%sn", marker)}
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1000 || year > 9999 {
		return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: fmt.Sprintf("bad year %q", parts[0])}
	}
	ordinal, err := strconv.Atoi(parts[1])
	if err != nil || ordinal < 1 || ordinal > max {
		return Anchor{}, &PeriodKeyError{Cadence: c, Key: key, Reason: fmt.Sprintf("%s must be 1-%d", marker, max)}
	}
	return Anchor{Cadence: c, Year: year, Ordinal: ordinal}, nil
}
