package request

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/native-bridge/errors"
)

func TestManager_BeginComplete(t *testing.T) {
	m := NewManager()

	var seen []Response
	h := NewHandle(func(r Response) { seen = append(seen, r) }, nil)
	id, err := m.Begin(h)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if id != 1 {
		t.Fatalf("first ID = %d, want 1", id)
	}
	if m.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", m.Pending())
	}

	got, ok := m.Complete(id, false)
	if !ok || got != h {
		t.Fatal("intermediate Complete failed")
	}
	if m.Pending() != 1 {
		t.Fatal("intermediate Complete must keep the record")
	}

	got, ok = m.Complete(id, true)
	if !ok || got != h {
		t.Fatal("terminal Complete failed")
	}
	if m.Pending() != 0 {
		t.Fatal("terminal Complete must remove the record")
	}

	if _, ok := m.Complete(id, true); ok {
		t.Fatal("stale Complete must miss")
	}
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager()
	invoked := false
	discarded := false
	var reason Reason
	h := NewHandle(func(Response) { invoked = true }, func(_ ID, r Reason) {
		discarded = true
		reason = r
	})
	id, _ := m.Begin(h)

	if !m.Cancel(id) {
		t.Fatal("Cancel failed")
	}
	if m.Cancel(id) {
		t.Fatal("second Cancel must miss")
	}
	if !h.Released() || !discarded || invoked {
		t.Fatalf("released=%v discarded=%v invoked=%v", h.Released(), discarded, invoked)
	}
	if reason != ReasonCancelled {
		t.Fatalf("reason = %v, want cancelled", reason)
	}
	if _, ok := m.Complete(id, true); ok {
		t.Fatal("completion after cancel must be stale")
	}
}

func TestManager_Drain(t *testing.T) {
	m := NewManager()
	var handles []*Handle
	invoked := 0
	for i := 0; i < 3; i++ {
		h := NewHandle(func(Response) { invoked++ }, nil)
		handles = append(handles, h)
		if _, err := m.Begin(h); err != nil {
			t.Fatal(err)
		}
	}

	if n := m.Drain(); n != 3 {
		t.Fatalf("Drain = %d, want 3", n)
	}
	for i, h := range handles {
		if !h.Released() {
			t.Fatalf("handle %d not released", i)
		}
		if h.Invoke(Response{}) {
			t.Fatalf("handle %d invoked after drain", i)
		}
	}
	if invoked != 0 {
		t.Fatal("drain must not invoke callbacks")
	}

	_, err := m.Begin(NewHandle(func(Response) {}, nil))
	if !stderrors.Is(err, errors.Closed(errors.PhaseRegister, "")) {
		t.Fatalf("Begin after drain: %v, want closed", err)
	}
	if n := m.Drain(); n != 0 {
		t.Fatalf("second Drain = %d, want 0", n)
	}
}

func TestManager_BeginNilPanics(t *testing.T) {
	defer func() {
		r := recover()
		if err, ok := r.(*errors.Error); !ok || err.Kind != errors.KindInvariant {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	NewManager().Begin(nil)
}

func TestManager_AtMostOneTerminal(t *testing.T) {
	m := NewManager()
	h := NewHandle(func(Response) {}, nil)
	id, _ := m.Begin(h)

	var wg sync.WaitGroup
	var mu sync.Mutex
	owners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Complete(id, true); ok {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if owners != 1 {
		t.Fatalf("%d terminal owners, want 1", owners)
	}
}
