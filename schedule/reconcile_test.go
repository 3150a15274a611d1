package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/compliance-engine/schedule"
)

func newRec() *schedule.Reconciler {
	return schedule.NewReconciler(fixedClock(2024, time.March, 5))
}

func applyDelta(existing []schedule.Instance, d schedule.Delta) []schedule.Instance {
	deleted := make(map[string]bool)
	for _, id := range d.ToDelete {
		deleted[id] = true
	}
	var out []schedule.Instance
	for _, inst := range existing {
		if !deleted[inst.ID] {
			out = append(out, inst)
		}
	}
	for i, pi := range d.ToInsert {
		out = append(out, schedule.Instance{
			ID:      "new-" + string(rune('a'+i)),
			Key:     pi.Key,
			DueDate: pi.DueDate,
			Status:  schedule.StatusPending,
		})
	}
	return out
}

func TestReconcile_FirstCreation_GeneratesFullHorizon(t *testing.T) {
	// GIVEN: A new active monthly obligation, no existing instances
	// WHEN: Reconciling (the creation path uses the same procedure)
	// THEN: Instances cover start of current month through Dec 31 next year

	delta, err := newRec().Reconcile(cfg(schedule.Monthly, 15), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.ToDelete) != 0 {
		t.Errorf("creation must delete nothing, got %v", delta.ToDelete)
	}
	if len(delta.ToInsert) == 0 {
		t.Fatal("expected generated instances")
	}

	first := delta.ToInsert[0]
	last := delta.ToInsert[len(delta.ToInsert)-1]
	if first.DueDate.Before(date(2024, time.March, 1)) {
		t.Errorf("first due %s precedes start of current month", first.DueDate)
	}
	if last.DueDate.After(date(2025, time.December, 31)) {
		t.Errorf("last due %s exceeds end of next year", last.DueDate)
	}
}

func TestReconcile_PreservesFulfilledHistory(t *testing.T) {
	// GIVEN: One SubmittedOnTime instance for 2024-01 and one Pending for
	//        2024-02, dueDay changing from 15 to 20
	// WHEN: Reconciling
	// THEN: The pending instance is deleted and regenerated with the new due
	//       date; the fulfilled instance is never named in the delta

	existing := []schedule.Instance{
		{ID: "i-jan", Key: "2024-01", DueDate: date(2024, time.February, 15), Status: schedule.StatusOnTime},
		{ID: "i-feb", Key: "2024-02", DueDate: date(2024, time.March, 15), Status: schedule.StatusPending},
	}

	delta, err := newRec().Reconcile(cfg(schedule.Monthly, 20), existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(delta.ToDelete) != 1 || delta.ToDelete[0] != "i-feb" {
		t.Fatalf("expected only i-feb deleted, got %v", delta.ToDelete)
	}

	var regenerated *schedule.PeriodInstance
	for i := range delta.ToInsert {
		if delta.ToInsert[i].Key == "2024-01" {
			t.Error("fulfilled period 2024-01 must never be re-inserted")
		}
		if delta.ToInsert[i].Key == "2024-02" {
			regenerated = &delta.ToInsert[i]
		}
	}
	if regenerated == nil {
		t.Fatal("expected period 2024-02 regenerated")
	}
	if !regenerated.DueDate.Equal(date(2024, time.March, 20)) {
		t.Errorf("expected new due 2024-03-20, got %s", regenerated.DueDate)
	}
}

func TestReconcile_SecondRunIsEmptyDelta(t *testing.T) {
	// GIVEN: A reconciled instance set
	// WHEN: Reconciling again with no config change
	// THEN: Empty delta

	c := cfg(schedule.Monthly, 15)
	rec := newRec()

	first, err := rec.Reconcile(c, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := applyDelta(nil, first)

	second, err := rec.Reconcile(c, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Empty() {
		t.Errorf("expected empty delta, got delete=%v insert=%v", second.ToDelete, second.ToInsert)
	}
}

func TestReconcile_OverdueUnsentIsDeleted(t *testing.T) {
	// GIVEN: A pending instance already past due under the old schedule
	// WHEN: Reconciling after a cadence change
	// THEN: It is deleted; unsent instances carry nothing worth preserving

	existing := []schedule.Instance{
		{ID: "i-old", Key: "2023-11", DueDate: date(2023, time.December, 15), Status: schedule.StatusPending},
	}

	delta, err := newRec().Reconcile(cfg(schedule.Quarterly, 10), existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.ToDelete) != 1 || delta.ToDelete[0] != "i-old" {
		t.Errorf("expected i-old deleted, got %v", delta.ToDelete)
	}
}

func TestReconcile_InactiveObligation_NoNewInstances(t *testing.T) {
	// GIVEN: The obligation was deactivated
	// WHEN: Reconciling
	// THEN: Pending instances are removed, nothing is generated, fulfilled
	//       history stays

	c := cfg(schedule.Monthly, 15)
	c.Active = false

	existing := []schedule.Instance{
		{ID: "i-done", Key: "2024-01", DueDate: date(2024, time.February, 15), Status: schedule.StatusApproved},
		{ID: "i-open", Key: "2024-02", DueDate: date(2024, time.March, 15), Status: schedule.StatusPending},
	}

	delta, err := newRec().Reconcile(c, existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.ToInsert) != 0 {
		t.Errorf("inactive obligation generated %v", delta.ToInsert)
	}
	if len(delta.ToDelete) != 1 || delta.ToDelete[0] != "i-open" {
		t.Errorf("expected only i-open deleted, got %v", delta.ToDelete)
	}
}

func TestReconcile_RespectsValidTo(t *testing.T) {
	// GIVEN: Validity ends mid-year
	// WHEN: Reconciling
	// THEN: No instance comes due past validTo

	c := cfg(schedule.Monthly, 15)
	c.ValidTo = date(2024, time.June, 30)

	delta, err := newRec().Reconcile(c, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pi := range delta.ToInsert {
		if pi.DueDate.After(c.ValidTo) {
			t.Errorf("instance %v due after validTo", pi)
		}
	}
	if len(delta.ToInsert) == 0 {
		t.Fatal("expected instances before validTo")
	}
}

func TestValidateDelta_RejectsFulfilledDeletion(t *testing.T) {
	// GIVEN: A delta that names a fulfilled instance for deletion (which the
	//        engine itself never produces)
	// WHEN: Validating inside the persistence transaction
	// THEN: ErrImmutableInstance, aborting the whole unit

	existing := []schedule.Instance{
		{ID: "i-done", Key: "2024-01", DueDate: date(2024, time.February, 15), Status: schedule.StatusLate},
	}
	err := schedule.ValidateDelta(existing, schedule.Delta{ToDelete: []string{"i-done"}})
	if !errors.Is(err, schedule.ErrImmutableInstance) {
		t.Fatalf("expected ErrImmutableInstance, got %v", err)
	}

	var imm *schedule.ImmutableInstanceError
	if !errors.As(err, &imm) || imm.InstanceID != "i-done" {
		t.Errorf("expected context naming i-done, got %v", err)
	}
}
