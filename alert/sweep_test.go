package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/alert"
	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/compliance/store"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// HELPERS
// =============================================================================

type recordingNotifier struct {
	sent []compliance.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n compliance.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func seedObligation(t *testing.T, mem *store.Memory, supervisorID string) compliance.Obligation {
	t.Helper()
	ob := compliance.Obligation{
		ID:           "ob-1",
		Name:         "Liquidity report",
		EntityID:     "regulator",
		PreparerID:   "alice",
		SupervisorID: supervisorID,
		Recurrence: schedule.RecurrenceConfig{
			Cadence: schedule.Monthly,
			DueDay:  10,
			Active:  true,
		},
	}
	require.NoError(t, mem.SaveObligation(context.Background(), ob))
	return ob
}

func seedInstance(t *testing.T, mem *store.Memory, id string, key schedule.PeriodKey, due schedule.Date) {
	t.Helper()
	require.NoError(t, mem.SaveInstance(context.Background(), compliance.Instance{
		ID:           id,
		ObligationID: "ob-1",
		PeriodKey:    key,
		DueDate:      due,
		Status:       schedule.StatusPending,
	}))
}

func newSweeper(mem *store.Memory, today schedule.Date) (*alert.Sweeper, *recordingNotifier) {
	notifier := &recordingNotifier{}
	sw := alert.NewSweeper(mem, schedule.FixedClock{Date: today})
	sw.Notifier = notifier
	sw.Metrics = metrics.NewForTesting()
	return sw, notifier
}

func tiersByRecipient(notifications []compliance.Notification) map[string][]string {
	out := make(map[string][]string)
	for _, n := range notifications {
		out[n.RecipientID] = append(out[n.RecipientID], n.Tier)
	}
	return out
}

// =============================================================================
// TIER MATCHING
// =============================================================================

func TestMatches_Thresholds(t *testing.T) {
	cases := []struct {
		days  int
		tiers []string
	}{
		{15, []string{alert.TierPreventive}},
		{10, []string{alert.TierPreventive}},
		{5, []string{alert.TierFollowUp, alert.TierSupervision}},
		{1, []string{alert.TierRisk, alert.TierSupervision}},
		{0, nil},
		{-1, []string{alert.TierCritical}},
		{-30, []string{alert.TierCritical}},
		{7, nil},
		{20, nil},
	}
	for _, tc := range cases {
		got := alert.Matches(tc.days)
		var names []string
		for _, m := range got {
			names = append(names, m.Tier)
		}
		assert.Equal(t, tc.tiers, names, "days=%d", tc.days)
	}
}

// =============================================================================
// SWEEP
// =============================================================================

func TestSweep_RaisesTieredAlerts(t *testing.T) {
	today := schedule.NewDate(2024, time.March, 5)
	mem := store.NewMemory()
	seedObligation(t, mem, "bob")

	seedInstance(t, mem, "i-prev", "2024-02", schedule.NewDate(2024, time.March, 20))  // 15 days out
	seedInstance(t, mem, "i-follow", "2024-01", schedule.NewDate(2024, time.March, 10)) // 5 days out
	seedInstance(t, mem, "i-risk", "2023-12", schedule.NewDate(2024, time.March, 6))   // 1 day out
	seedInstance(t, mem, "i-late", "2023-11", schedule.NewDate(2024, time.March, 1))   // overdue
	seedInstance(t, mem, "i-quiet", "2023-10", schedule.NewDate(2024, time.March, 12)) // 7 days out, no tier

	sw, notifier := newSweeper(mem, today)
	raised, err := sw.Run(context.Background())
	require.NoError(t, err)

	// FollowUp and Risk each bring a Supervision alert alongside.
	assert.Equal(t, 6, raised)
	require.Len(t, notifier.sent, 6)

	byRecipient := tiersByRecipient(notifier.sent)
	assert.ElementsMatch(t,
		[]string{alert.TierPreventive, alert.TierFollowUp, alert.TierRisk, alert.TierCritical},
		byRecipient["alice"])
	assert.ElementsMatch(t,
		[]string{alert.TierSupervision, alert.TierSupervision},
		byRecipient["bob"])
}

func TestSweep_SecondRunSameDayIsNoOp(t *testing.T) {
	today := schedule.NewDate(2024, time.March, 5)
	mem := store.NewMemory()
	seedObligation(t, mem, "bob")
	seedInstance(t, mem, "i-late", "2024-01", schedule.NewDate(2024, time.March, 1))

	sw, notifier := newSweeper(mem, today)

	first, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second)
	assert.Len(t, notifier.sent, 1)
}

func TestSweep_OverdueFiresAgainNextDay(t *testing.T) {
	mem := store.NewMemory()
	seedObligation(t, mem, "")
	seedInstance(t, mem, "i-late", "2024-01", schedule.NewDate(2024, time.March, 1))

	sw, _ := newSweeper(mem, schedule.NewDate(2024, time.March, 5))
	first, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	sw.Clock = schedule.FixedClock{Date: schedule.NewDate(2024, time.March, 6)}
	second, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second)
}

func TestSweep_SkipsUnassignedSupervisor(t *testing.T) {
	today := schedule.NewDate(2024, time.March, 5)
	mem := store.NewMemory()
	seedObligation(t, mem, "") // no supervisor
	seedInstance(t, mem, "i-follow", "2024-01", schedule.NewDate(2024, time.March, 10))

	sw, notifier := newSweeper(mem, today)
	raised, err := sw.Run(context.Background())
	require.NoError(t, err)

	// FollowUp to the preparer only; the supervision tier has no recipient.
	assert.Equal(t, 1, raised)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "alice", notifier.sent[0].RecipientID)
	assert.Equal(t, alert.TierFollowUp, notifier.sent[0].Tier)
}

func TestSweep_IgnoresFulfilledInstances(t *testing.T) {
	today := schedule.NewDate(2024, time.March, 5)
	mem := store.NewMemory()
	seedObligation(t, mem, "bob")

	submittedAt := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SaveInstance(context.Background(), compliance.Instance{
		ID:           "i-done",
		ObligationID: "ob-1",
		PeriodKey:    "2024-01",
		DueDate:      schedule.NewDate(2024, time.March, 1),
		Status:       schedule.StatusOnTime,
		SubmittedAt:  &submittedAt,
	}))

	sw, notifier := newSweeper(mem, today)
	raised, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)
	assert.Empty(t, notifier.sent)
}

func TestSweep_RanToday(t *testing.T) {
	today := schedule.NewDate(2024, time.March, 5)
	mem := store.NewMemory()
	sw, _ := newSweeper(mem, today)
	ctx := context.Background()

	ran, err := sw.RanToday(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	_, err = sw.Run(ctx)
	require.NoError(t, err)

	ran, err = sw.RanToday(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}
