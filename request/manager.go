package request

import (
	"github.com/wippyai/native-bridge/correlation"
	"github.com/wippyai/native-bridge/errors"
)

// Manager owns the correlation table and the handles registered in it.
type Manager struct {
	table *correlation.Table
}

// NewManager creates a manager with an empty table.
func NewManager() *Manager {
	return &Manager{table: correlation.NewTable()}
}

// Table exposes the correlation table for observers.
func (m *Manager) Table() *correlation.Table {
	return m.table
}

// Begin registers h and returns its request ID. The caller must pass the
// ID to the native service; a registered request that is never issued is
// only reclaimed by Drain. Begin fails once the manager has been drained.
func (m *Manager) Begin(h *Handle) (ID, error) {
	if h == nil {
		panic(errors.Invariant(errors.PhaseRegister, "nil handle registration"))
	}
	rec, ok := m.table.Insert(h)
	if !ok {
		return 0, errors.Closed(errors.PhaseRegister, "request manager")
	}
	h.Bind(rec.ID)
	return rec.ID, nil
}

// Complete resolves id for a completion. For a finished completion the
// record is removed before the handle is returned, so the caller owns the
// handle and must release it after the final invocation.
func (m *Manager) Complete(id ID, finished bool) (*Handle, bool) {
	rec, ok := m.table.Take(id, finished)
	if !ok {
		return nil, false
	}
	return rec.Callback.(*Handle), true
}

// Cancel removes id and releases its handle without invoking it. Work
// already submitted to the native service is not interrupted; its later
// completions are stale.
func (m *Manager) Cancel(id ID) bool {
	rec, ok := m.table.Remove(id)
	if !ok {
		return false
	}
	rec.Callback.(*Handle).Release(ReasonCancelled)
	return true
}

// Drain closes the manager to new requests and releases every pending
// handle without invoking it. It returns the number of handles released.
func (m *Manager) Drain() int {
	recs := m.table.Drain()
	for _, rec := range recs {
		rec.Callback.(*Handle).Release(ReasonDrained)
	}
	return len(recs)
}

// Pending returns the number of registered requests.
func (m *Manager) Pending() int {
	return m.table.Len()
}
