package correlation

import (
	"math"
	"sync"
	"testing"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnCorrelationEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *testObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type
	}
	return out
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	rec, ok := table.Insert("cb")
	if !ok {
		t.Fatal("Insert failed")
	}
	if rec.ID != 1 {
		t.Fatalf("first ID = %d, want 1", rec.ID)
	}

	got, ok := table.Get(rec.ID)
	if !ok || got != rec {
		t.Fatal("Get failed")
	}

	// Intermediate completion keeps the record
	got, ok = table.Take(rec.ID, false)
	if !ok || got.Callback != "cb" {
		t.Fatal("Take(false) failed")
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d after intermediate take, want 1", table.Len())
	}

	// Terminal completion unlinks it
	got, ok = table.Take(rec.ID, true)
	if !ok || got != rec {
		t.Fatal("Take(true) failed")
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after terminal take")
	}

	if _, ok := table.Take(rec.ID, true); ok {
		t.Fatal("second terminal take must miss")
	}
	if _, ok := table.Take(rec.ID, false); ok {
		t.Fatal("take after finish must miss")
	}
}

func TestTable_IDsMonotonic(t *testing.T) {
	table := NewTable()
	for want := ID(1); want <= 5; want++ {
		rec, _ := table.Insert(struct{}{})
		if rec.ID != want {
			t.Fatalf("ID = %d, want %d", rec.ID, want)
		}
		table.Take(rec.ID, true)
	}

	// Removed IDs are not reused
	rec, _ := table.Insert(struct{}{})
	if rec.ID != 6 {
		t.Fatalf("ID = %d, want 6", rec.ID)
	}
}

func TestTable_UnknownID(t *testing.T) {
	table := NewTable()
	if _, ok := table.Take(0, true); ok {
		t.Fatal("ID 0 must never resolve")
	}
	if _, ok := table.Take(42, false); ok {
		t.Fatal("unknown ID must miss")
	}
	if _, ok := table.Remove(42); ok {
		t.Fatal("Remove of unknown ID must miss")
	}
}

func TestTable_WrapAroundSkipsZero(t *testing.T) {
	table := NewTable()
	table.last = math.MaxUint32 - 1

	rec, _ := table.Insert("a")
	if rec.ID != math.MaxUint32 {
		t.Fatalf("ID = %d, want MaxUint32", rec.ID)
	}
	table.Take(rec.ID, true)

	rec, _ = table.Insert("b")
	if rec.ID != 1 {
		t.Fatalf("ID after wrap = %d, want 1", rec.ID)
	}
}

func TestTable_WrapAroundSkipsLiveIDs(t *testing.T) {
	table := NewTable()
	first, _ := table.Insert("live")
	second, _ := table.Insert("also live")
	table.last = math.MaxUint32

	ids := make([]ID, 0, 3)
	for i := 0; i < 3; i++ {
		rec, ok := table.Insert(i)
		if !ok {
			t.Fatal("insert after wrap-around failed")
		}
		ids = append(ids, rec.ID)
	}

	want := []ID{3, 4, 5}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs after wrap-around = %v, want %v", ids, want)
		}
	}
	if rec, _ := table.Get(first.ID); rec != first {
		t.Fatal("live record 1 was replaced")
	}
	if rec, _ := table.Get(second.ID); rec != second {
		t.Fatal("live record 2 was replaced")
	}
}

func TestTable_NilCallbackPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewTable().Insert(nil)
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	a, _ := table.Insert("a")
	b, _ := table.Insert("b")
	c, _ := table.Insert("c")
	table.Take(a.ID, false)
	table.Take(a.ID, true)
	table.Remove(b.ID)
	table.Drain()

	want := []EventType{
		EventRegistered, EventRegistered, EventRegistered,
		EventNotified, EventFinished, EventCancelled, EventDrained,
	}
	got := obs.types()
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if obs.events[len(obs.events)-1].ID != c.ID {
		t.Fatal("drained event carries wrong ID")
	}

}

func TestTable_Unsubscribe(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)
	table.Insert("a")
	table.Unsubscribe(obs)
	table.Insert("b")

	if n := len(obs.types()); n != 1 {
		t.Fatalf("got %d events, want 1", n)
	}
}

func TestTable_Drain(t *testing.T) {
	table := NewTable()
	for i := 0; i < 5; i++ {
		table.Insert(i)
	}
	table.Take(3, true)

	recs := table.Drain()
	if len(recs) != 4 {
		t.Fatalf("drained %d, want 4", len(recs))
	}
	want := []ID{1, 2, 4, 5}
	for i, rec := range recs {
		if rec.ID != want[i] {
			t.Fatalf("drain order: got %d at %d, want %d", rec.ID, i, want[i])
		}
	}

	if table.Len() != 0 || !table.Drained() {
		t.Fatal("table should be empty and drained")
	}
	if _, ok := table.Insert("late"); ok {
		t.Fatal("Insert after drain must fail")
	}
	if _, ok := table.Take(1, true); ok {
		t.Fatal("Take after drain must miss")
	}
	if recs := table.Drain(); recs != nil {
		t.Fatal("second drain must be empty")
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	for i := 0; i < 4; i++ {
		table.Insert(i)
	}

	var ids []ID
	table.Each(func(r *Record) bool {
		ids = append(ids, r.ID)
		return r.ID < 2
	})
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("Each visited %v, want [1 2]", ids)
	}
}

func TestTable_ConcurrentTerminalTake(t *testing.T) {
	table := NewTable()
	rec, _ := table.Insert("once")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := table.Take(rec.ID, true); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d goroutines took the record, want exactly 1", winners)
	}
}

func TestTable_ConcurrentInsertUnique(t *testing.T) {
	table := NewTable()
	const workers, per = 8, 200

	ids := make(chan ID, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				rec, ok := table.Insert(i)
				if !ok {
					t.Error("Insert failed")
					return
				}
				ids <- rec.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ID]bool)
	for id := range ids {
		if id == 0 {
			t.Fatal("issued ID 0")
		}
		if seen[id] {
			t.Fatalf("duplicate ID %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*per {
		t.Fatalf("got %d IDs, want %d", len(seen), workers*per)
	}
}
