package schedule

// =============================================================================
// DEVIATION - Signed gap between submission and due date
// =============================================================================

// SubmissionResult is the outcome of fulfilling an instance. The status
// assignment, once made, is permanent for that instance.
type SubmissionResult struct {
	DeviationDays int
	Status        Status
}

// RecordSubmission computes the signed deviation (submission - due) in days.
// Positive is late; zero or negative is on time.
func RecordSubmission(submitted, due Date) SubmissionResult {
	deviation := DaysBetween(due, submitted)
	status := StatusOnTime
	if deviation > 0 {
		status = StatusLate
	}
	return SubmissionResult{DeviationDays: deviation, Status: status}
}
