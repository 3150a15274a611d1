/*
reconcile.go - Aligning stored instances with a changed configuration

PURPOSE:
  When an obligation's recurrence configuration changes (cadence, anchors,
  validity window, or the active flag), the stored instance set must be
  brought into agreement with the new schedule WITHOUT discarding fulfilled
  history. The engine computes a minimal delta; persistence applies it as a
  single atomic unit per obligation.

ALGORITHM:
  1. Partition existing instances into fulfilled and pending. Pending
     includes overdue-but-unsent instances: an unfulfilled instance for a
     changed schedule carries no information worth preserving.
  2. If the obligation is active, generate the desired set over
     [max(start of today's month, validFrom), validTo or Dec 31 next year];
     inactive obligations desire nothing new.
  3. A pending instance that already matches a desired (periodKey, dueDate)
     pair is kept as-is; every other pending instance is deleted (dependent
     alerts cascade with it).
  4. Fulfilled history wins: a desired period occupied by a fulfilled
     instance is never re-inserted. Remaining desired pairs become new
     Pending instances with deviation 0.

  The delta is minimal: reconciling twice in a row with no config change
  yields an empty delta the second time. First creation is the same
  procedure with steps 1 and 3 trivially empty.

INVARIANT:
  The delta never names a fulfilled instance for deletion. ValidateDelta
  re-checks this inside the persistence transaction; a violation aborts the
  whole unit (partial reconciliation is worse than none).

SEE ALSO:
  - generate.go: produces the desired set
  - compliance:  applies deltas under a per-obligation lock
*/
package schedule

// Delta is the minimal change set bringing stored instances in line with a
// configuration. Applying an empty delta is a no-op.
type Delta struct {
	ToDelete []string         // instance IDs, all Pending
	ToInsert []PeriodInstance // new Pending instances, deviation 0
}

func (d Delta) Empty() bool {
	return len(d.ToDelete) == 0 && len(d.ToInsert) == 0
}

// Reconciler computes deltas. It is stateless; exclusive per-obligation
// access during application is the caller's responsibility.
type Reconciler struct {
	Gen   *Generator
	Clock Clock
}

func NewReconciler(clock Clock) *Reconciler {
	return &Reconciler{Gen: NewGenerator(clock), Clock: clock}
}

// Reconcile computes the delta between the stored instances and the set the
// configuration now calls for. Pure: it mutates nothing and is idempotent
// once its output has been applied.
func (r *Reconciler) Reconcile(cfg RecurrenceConfig, existing []Instance) (Delta, error) {
	if err := cfg.Validate(); err != nil {
		return Delta{}, err
	}

	var desired []PeriodInstance
	if cfg.Active {
		today := r.Clock.Today()
		start := MaxDate(today.StartOfMonth(), cfg.ValidFrom)
		end := today.AddYears(1).EndOfYear()
		if !cfg.ValidTo.IsZero() {
			end = cfg.ValidTo
		}

		var err error
		desired, err = r.Gen.Instances(cfg, start, end)
		if err != nil {
			return Delta{}, err
		}
	}

	desiredByKey := make(map[PeriodKey]Date, len(desired))
	for _, pi := range desired {
		desiredByKey[pi.Key] = pi.DueDate
	}

	// Keep pending instances that already match the desired schedule; delete
	// the rest. Fulfilled instances are untouchable either way.
	fulfilled := make(map[PeriodKey]bool)
	kept := make(map[PeriodKey]bool)
	var delta Delta
	for _, inst := range existing {
		if inst.Status.Fulfilled() {
			fulfilled[inst.Key] = true
			continue
		}
		due, wanted := desiredByKey[inst.Key]
		if wanted && due.Equal(inst.DueDate) && !kept[inst.Key] {
			kept[inst.Key] = true
			continue
		}
		delta.ToDelete = append(delta.ToDelete, inst.ID)
	}

	for _, pi := range desired {
		if fulfilled[pi.Key] || kept[pi.Key] {
			continue
		}
		delta.ToInsert = append(delta.ToInsert, pi)
	}
	return delta, nil
}

// ValidateDelta re-checks the immutability invariant against the instance
// set visible inside the persistence transaction. Any fulfilled instance
// named for deletion is a fatal error; the transaction must abort whole.
func ValidateDelta(existing []Instance, d Delta) error {
	byID := make(map[string]Instance, len(existing))
	for _, inst := range existing {
		byID[inst.ID] = inst
	}
	for _, id := range d.ToDelete {
		inst, ok := byID[id]
		if !ok {
			continue
		}
		if inst.Status.Fulfilled() {
			return &ImmutableInstanceError{InstanceID: inst.ID, PeriodKey: inst.Key, Status: inst.Status}
		}
	}
	return nil
}
