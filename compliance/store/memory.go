// Package store provides compliance.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	obligations map[string]compliance.Obligation
	instances   map[string]compliance.Instance
	alerts      map[string][]compliance.Alert // by instance id
	lastSweep   time.Time
}

func NewMemory() *Memory {
	return &Memory{
		obligations: make(map[string]compliance.Obligation),
		instances:   make(map[string]compliance.Instance),
		alerts:      make(map[string][]compliance.Alert),
	}
}

// -----------------------------------------------------------------------------
// Obligations
// -----------------------------------------------------------------------------

func (m *Memory) SaveObligation(_ context.Context, ob compliance.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obligations[ob.ID] = ob
	return nil
}

func (m *Memory) GetObligation(_ context.Context, id string) (*compliance.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.obligations[id]
	if !ok {
		return nil, compliance.ErrObligationNotFound
	}
	return &ob, nil
}

func (m *Memory) ListObligations(_ context.Context) ([]compliance.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]compliance.Obligation, 0, len(m.obligations))
	for _, ob := range m.obligations {
		out = append(out, ob)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteObligation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.obligations[id]; !ok {
		return compliance.ErrObligationNotFound
	}
	delete(m.obligations, id)
	for instID, inst := range m.instances {
		if inst.ObligationID == id {
			delete(m.instances, instID)
			delete(m.alerts, instID)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Instances
// -----------------------------------------------------------------------------

func (m *Memory) SaveInstance(_ context.Context, inst compliance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveInstanceLocked(inst)
}

func (m *Memory) saveInstanceLocked(inst compliance.Instance) error {
	// One instance per (obligation, period).
	for _, existing := range m.instances {
		if existing.ID != inst.ID &&
			existing.ObligationID == inst.ObligationID &&
			existing.PeriodKey == inst.PeriodKey {
			return compliance.ErrDuplicatePeriod
		}
	}
	m.instances[inst.ID] = inst
	return nil
}

func (m *Memory) GetInstance(_ context.Context, id string) (*compliance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, compliance.ErrInstanceNotFound
	}
	return &inst, nil
}

func (m *Memory) ListInstances(_ context.Context, obligationID string) ([]compliance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []compliance.Instance
	for _, inst := range m.instances {
		if inst.ObligationID == obligationID {
			out = append(out, inst)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func (m *Memory) ListAllInstances(_ context.Context) ([]compliance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]compliance.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sortByDueDate(out)
	return out, nil
}

func (m *Memory) ListPendingInstances(_ context.Context) ([]compliance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []compliance.Instance
	for _, inst := range m.instances {
		if !inst.Fulfilled() {
			out = append(out, inst)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func sortByDueDate(instances []compliance.Instance) {
	sort.Slice(instances, func(i, j int) bool {
		if !instances[i].DueDate.Equal(instances[j].DueDate) {
			return instances[i].DueDate.Before(instances[j].DueDate)
		}
		return instances[i].ID < instances[j].ID
	})
}

// ApplyReconciliation deletes and inserts as one atomic unit. The write lock
// spans the whole operation; the immutability check happens under it, so no
// concurrent submission can slip between check and delete.
func (m *Memory) ApplyReconciliation(_ context.Context, _ string, deleteIDs []string, insert []compliance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range deleteIDs {
		inst, ok := m.instances[id]
		if !ok {
			continue
		}
		if inst.Fulfilled() {
			return &schedule.ImmutableInstanceError{
				InstanceID: inst.ID,
				PeriodKey:  inst.PeriodKey,
				Status:     inst.Status,
			}
		}
	}

	for _, id := range deleteIDs {
		delete(m.instances, id)
		delete(m.alerts, id)
	}
	for _, inst := range insert {
		if err := m.saveInstanceLocked(inst); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

func (m *Memory) SaveAlert(_ context.Context, a compliance.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.InstanceID] = append(m.alerts[a.InstanceID], a)
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, instanceID string) ([]compliance.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]compliance.Alert, len(m.alerts[instanceID]))
	copy(out, m.alerts[instanceID])
	return out, nil
}

func (m *Memory) AlertExistsOn(_ context.Context, instanceID, recipientID, tier string, day schedule.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.alerts[instanceID] {
		if a.RecipientID == recipientID && a.Tier == tier && schedule.DateOf(a.SentAt).Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

// -----------------------------------------------------------------------------
// Sweep state
// -----------------------------------------------------------------------------

func (m *Memory) LastSweepRun(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSweep, nil
}

func (m *Memory) SetLastSweepRun(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSweep = at
	return nil
}
