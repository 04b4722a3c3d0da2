package correlation

import (
	"math"
	"slices"
	"sync"

	"github.com/wippyai/native-bridge/errors"
)

// Table maps request IDs to their records. Every mutation and lookup runs
// under one RWMutex, so a terminal Take and a concurrent lookup of the same
// ID cannot both observe the record.
type Table struct {
	records   map[ID]*Record
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	last      ID
	drained   bool
}

// NewTable creates an empty table. The first issued ID is 1.
func NewTable() *Table {
	return &Table{
		records: make(map[ID]*Record),
	}
}

// Insert allocates the next free ID, links a record for cb and returns it.
// It returns false once the table has been drained. It panics only when
// every ID is live.
func (t *Table) Insert(cb any) (*Record, bool) {
	if cb == nil {
		panic(errors.Invariant(errors.PhaseRegister, "nil callback registration"))
	}

	t.mu.Lock()
	if t.drained {
		t.mu.Unlock()
		return nil, false
	}

	if uint64(len(t.records)) >= math.MaxUint32 {
		t.mu.Unlock()
		panic(errors.Invariant(errors.PhaseRegister, "request id space exhausted (live=%d)", len(t.records)))
	}

	// IDs still live after wrap-around are skipped.
	id := t.last
	for {
		id++
		if id == 0 {
			continue
		}
		if _, live := t.records[id]; !live {
			break
		}
	}
	t.last = id

	rec := &Record{ID: id, Callback: cb}
	t.records[id] = rec
	t.mu.Unlock()

	t.notify(Event{Type: EventRegistered, ID: id, Record: rec})
	return rec, true
}

// Get returns the live record for id without changing it.
func (t *Table) Get(id ID) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Take looks up id for a completion. A finished completion unlinks the
// record and transfers ownership to the caller; an intermediate one leaves
// it in place. Unknown IDs return false.
func (t *Table) Take(id ID, finished bool) (*Record, bool) {
	var rec *Record
	var ok bool

	t.mu.Lock()
	rec, ok = t.records[id]
	if ok && finished {
		delete(t.records, id)
	}
	t.mu.Unlock()

	if !ok {
		return nil, false
	}

	typ := EventNotified
	if finished {
		typ = EventFinished
	}
	t.notify(Event{Type: typ, ID: id, Record: rec})
	return rec, true
}

// Remove unlinks id unconditionally.
func (t *Table) Remove(id ID) (*Record, bool) {
	t.mu.Lock()
	rec, ok := t.records[id]
	if ok {
		delete(t.records, id)
	}
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	t.notify(Event{Type: EventCancelled, ID: id, Record: rec})
	return rec, true
}

// Drain unlinks every remaining record and returns them in ID order. The
// table accepts no further inserts afterwards. Draining twice returns nil.
func (t *Table) Drain() []*Record {
	t.mu.Lock()
	t.drained = true
	recs := make([]*Record, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	clear(t.records)
	t.mu.Unlock()

	slices.SortFunc(recs, func(a, b *Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	for _, rec := range recs {
		t.notify(Event{Type: EventDrained, ID: rec.ID, Record: rec})
	}
	if len(recs) == 0 {
		return nil
	}
	return recs
}

// Drained reports whether Drain has been called.
func (t *Table) Drained() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.drained
}

// Len returns the number of live records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Each calls fn for every live record in ID order while holding the read
// lock. fn must not call back into the table. Iteration stops when fn
// returns false.
func (t *Table) Each(fn func(*Record) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]ID, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if !fn(t.records[id]) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnCorrelationEvent(e)
	}
}
