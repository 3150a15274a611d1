package schedule_test

import (
	"testing"
	"time"

	"github.com/warp/compliance-engine/schedule"
)

func TestRecordSubmission_LatePositive(t *testing.T) {
	// Submission two days after the due date.
	res := schedule.RecordSubmission(date(2024, time.April, 12), date(2024, time.April, 10))
	if res.DeviationDays != 2 {
		t.Errorf("expected deviation 2, got %d", res.DeviationDays)
	}
	if res.Status != schedule.StatusLate {
		t.Errorf("expected submitted_late, got %s", res.Status)
	}
}

func TestRecordSubmission_OnDueDateIsOnTime(t *testing.T) {
	res := schedule.RecordSubmission(date(2024, time.April, 10), date(2024, time.April, 10))
	if res.DeviationDays != 0 {
		t.Errorf("expected deviation 0, got %d", res.DeviationDays)
	}
	if res.Status != schedule.StatusOnTime {
		t.Errorf("expected submitted_on_time, got %s", res.Status)
	}
}

func TestRecordSubmission_EarlyNegative(t *testing.T) {
	res := schedule.RecordSubmission(date(2024, time.April, 5), date(2024, time.April, 10))
	if res.DeviationDays != -5 {
		t.Errorf("expected deviation -5, got %d", res.DeviationDays)
	}
	if res.Status != schedule.StatusOnTime {
		t.Errorf("early submission is on time, got %s", res.Status)
	}
}
