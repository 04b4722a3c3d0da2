package bridge

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/native-bridge/dispatch"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/interop"
	"github.com/wippyai/native-bridge/metrics"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/native/loopback"
)

type submission struct {
	done   native.CompletionFunc
	method string
	params []byte
	ctx    native.ContextHandle
	id     uint32
}

// fakeService records submissions; tests complete them by hand.
type fakeService struct {
	mu        sync.Mutex
	subs      []submission
	destroyed []native.ContextHandle
	next      uint32
}

func (f *fakeService) CreateContext(config []byte) (native.ContextHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return native.ContextHandle(f.next), nil
}

func (f *fakeService) DestroyContext(h native.ContextHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, h)
}

func (f *fakeService) SubmitRequest(h native.ContextHandle, method string, params []byte, id uint32, done native.CompletionFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, submission{ctx: h, method: method, params: bytes.Clone(params), id: id, done: done})
}

func (f *fakeService) Close() error { return nil }

func (f *fakeService) last() submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

type result struct {
	result   string
	err      string
	finished bool
}

type results struct {
	mu  sync.Mutex
	got []result
}

func (r *results) fn(res, errJSON []byte, finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, result{string(res), string(errJSON), finished})
}

func (r *results) all() []result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]result(nil), r.got...)
}

func startLoop(t *testing.T) *dispatch.Loop {
	t.Helper()
	loop := dispatch.NewLoop(dispatch.LoopOptions{QueueSize: 256})
	loop.Start()
	t.Cleanup(loop.Close)
	return loop
}

func TestBridge_PingScenario(t *testing.T) {
	before := interop.Live()
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, err := b.CreateContext(nil)
	if err != nil {
		t.Fatal(err)
	}

	rs := &results{}
	id, err := b.BeginRequest(h, "ping", []byte("{}"), rs.fn)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("first request ID = %d, want 1", id)
	}

	sub := svc.last()
	if sub.method != "ping" || string(sub.params) != "{}" || sub.id != 1 || sub.ctx != h {
		t.Fatalf("submission = %+v", sub)
	}

	sub.done(native.Completion{RequestID: 1, Result: []byte(`{"pong":true}`), Finished: true})
	waitFor(t, func() bool { return len(rs.all()) == 1 })

	got := rs.all()[0]
	if got.result != `{"pong":true}` || got.err != "" || !got.finished {
		t.Fatalf("result = %+v", got)
	}
	if b.Pending() != 0 {
		t.Fatal("request 1 still pending after its finished completion")
	}
	waitFor(t, func() bool { return interop.Live() == before })

	time.Sleep(10 * time.Millisecond)
	if len(rs.all()) != 1 {
		t.Fatal("callback invoked more than once")
	}
}

func TestBridge_AtMostOneTerminal(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	rs := &results{}
	id, _ := b.BeginRequest(h, "m", nil, rs.fn)

	var wg sync.WaitGroup
	var delivered atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := b.OnCompletion(native.Completion{RequestID: uint32(id), Result: []byte(fmt.Sprint(i)), Finished: true})
			if out == dispatch.Delivered {
				delivered.Add(1)
			}
		}(i)
	}
	wg.Wait()

	waitFor(t, func() bool { return len(rs.all()) == 1 })
	time.Sleep(10 * time.Millisecond)
	if n := len(rs.all()); n != 1 {
		t.Fatalf("%d terminal deliveries, want 1", n)
	}
	if delivered.Load() != 1 {
		t.Fatalf("%d completions delivered, want 1", delivered.Load())
	}
}

func TestBridge_UniqueIDs(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	var wg sync.WaitGroup
	ids := make(chan ID, 400)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) {})
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ID]bool)
	for id := range ids {
		if id == 0 || seen[id] {
			t.Fatalf("ID %d issued twice or zero", id)
		}
		seen[id] = true
	}
	if b.Pending() != 400 {
		t.Fatalf("Pending = %d, want 400", b.Pending())
	}
}

func TestBridge_ShutdownDrains(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	var invoked atomic.Int32
	var subs []submission
	for i := 0; i < 5; i++ {
		if _, err := b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) { invoked.Add(1) }); err != nil {
			t.Fatal(err)
		}
		subs = append(subs, svc.last())
	}

	if n := b.Shutdown(); n != 5 {
		t.Fatalf("Shutdown = %d, want 5", n)
	}
	if n := b.Shutdown(); n != 0 {
		t.Fatalf("second Shutdown = %d, want 0", n)
	}
	if !b.Closed() || b.Pending() != 0 {
		t.Fatal("bridge must be closed and empty")
	}

	// Native work outliving the bridge completes into nothing.
	for _, s := range subs {
		if out := b.OnCompletion(native.Completion{RequestID: s.id, Result: []byte("late"), Finished: true}); out != dispatch.Stale {
			t.Fatalf("late completion = %v, want stale", out)
		}
	}
	time.Sleep(10 * time.Millisecond)
	if invoked.Load() != 0 {
		t.Fatal("drained callbacks must never run")
	}

	if _, err := b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) {}); !stderrors.Is(err, ErrClosed) {
		t.Fatalf("BeginRequest after shutdown = %v, want ErrClosed", err)
	}
	if _, err := b.SendRequest(h, "m", nil); !stderrors.Is(err, ErrClosed) {
		t.Fatalf("SendRequest after shutdown = %v, want ErrClosed", err)
	}
	if _, err := b.CreateContext(nil); !stderrors.Is(err, ErrClosed) {
		t.Fatalf("CreateContext after shutdown = %v, want ErrClosed", err)
	}
}

func TestBridge_ShutdownRacesCompletions(t *testing.T) {
	svc := loopback.New()
	defer svc.Close()
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	var finished atomic.Int32
	for i := 0; i < 50; i++ {
		b.BeginRequest(h, "client.stream", []byte(`{"count":5}`), func(_, _ []byte, fin bool) {
			if fin {
				finished.Add(1)
			}
		})
	}
	drained := b.Shutdown()

	svc.Close()
	time.Sleep(20 * time.Millisecond)
	if int(finished.Load())+drained > 50 {
		t.Fatalf("finished %d + drained %d exceeds 50 requests", finished.Load(), drained)
	}
}

func TestBridge_InvalidInput(t *testing.T) {
	b := New(&fakeService{}, startLoop(t))
	if _, err := b.BeginRequest(1, "", nil, func([]byte, []byte, bool) {}); err == nil {
		t.Fatal("empty method must fail")
	}
	if _, err := b.BeginRequest(1, "m", nil, nil); err == nil {
		t.Fatal("nil callback must fail")
	}
	if b.Pending() != 0 {
		t.Fatal("failed requests must not register")
	}
}

func TestBridge_Cancel(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	rs := &results{}
	id, _ := b.BeginRequest(h, "m", nil, rs.fn)
	if !b.Cancel(id) {
		t.Fatal("Cancel failed")
	}
	if b.Cancel(id) {
		t.Fatal("second Cancel must fail")
	}
	if out := b.OnCompletion(native.Completion{RequestID: uint32(id), Finished: true}); out != dispatch.Stale {
		t.Fatalf("completion after cancel = %v", out)
	}
	time.Sleep(10 * time.Millisecond)
	if len(rs.all()) != 0 {
		t.Fatal("cancelled callback ran")
	}
}

func TestBridge_DestroyContext(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)
	b.DestroyContext(h)
	if len(svc.destroyed) != 1 || svc.destroyed[0] != h {
		t.Fatalf("destroyed = %v", svc.destroyed)
	}
}

func TestBridge_InterleavedStreams(t *testing.T) {
	svc := loopback.New()
	defer svc.Close()
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	a, c := &results{}, &results{}
	if _, err := b.BeginRequest(h, "client.stream", []byte(`{"count":20,"payload":"A"}`), a.fn); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BeginRequest(h, "client.stream", []byte(`{"count":20,"payload":"C"}`), c.fn); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(a.all()) == 21 && len(c.all()) == 21 })

	check := func(rs *results, tag string) {
		got := rs.all()
		for i, r := range got[:20] {
			want := fmt.Sprintf(`{"payload":"%s","index":%d}`, tag, i)
			if r.result != want || r.finished {
				t.Fatalf("%s notification %d = %+v, want %s", tag, i, r, want)
			}
		}
		if last := got[20]; !last.finished || last.result != `{"sent":20}` {
			t.Fatalf("%s final = %+v", tag, last)
		}
	}
	check(a, "A")
	check(c, "C")
}

func TestBridge_PayloadRoundTrip(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	rs := &results{}
	params := []byte("{\"v\":\"a\x00b\xc3\xa9\"}")
	b.BeginRequest(h, "m", params, rs.fn)

	sub := svc.last()
	if !bytes.Equal(sub.params, params) {
		t.Fatalf("params = %q", sub.params)
	}

	raw := bytes.Clone(params)
	sub.done(native.Completion{RequestID: sub.id, Result: raw, Finished: true})
	clear(raw)

	waitFor(t, func() bool { return len(rs.all()) == 1 })
	if got := rs.all()[0].result; got != string(params) {
		t.Fatalf("result = %q, want %q", got, params)
	}
}

func TestBridge_NativeErrorForwarded(t *testing.T) {
	svc := loopback.New()
	defer svc.Close()
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	rs := &results{}
	b.BeginRequest(h, "client.missing", nil, rs.fn)
	waitFor(t, func() bool { return len(rs.all()) == 1 })

	got := rs.all()[0]
	if got.result != "" || !got.finished {
		t.Fatalf("result = %+v", got)
	}
	if got.err != `{"message":"Unknown function: client.missing","code":25}` {
		t.Fatalf("error payload = %s", got.err)
	}
}

func TestBridge_DroppedWhenLoopClosed(t *testing.T) {
	svc := &fakeService{}
	loop := dispatch.NewLoop(dispatch.LoopOptions{})
	loop.Close()
	b := New(svc, loop)
	h, _ := b.CreateContext(nil)

	var invoked atomic.Bool
	id, _ := b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) { invoked.Store(true) })

	if out := b.OnCompletion(native.Completion{RequestID: uint32(id), Finished: true}); out != dispatch.Dropped {
		t.Fatalf("outcome = %v, want dropped", out)
	}
	if b.Pending() != 0 || invoked.Load() {
		t.Fatal("dropped terminal completion must remove the request without invoking it")
	}
}

func TestBridge_ResponseHandler(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	type delivery struct {
		id       ID
		payload  string
		rt       native.ResponseType
		finished bool
	}
	var mu sync.Mutex
	var first, second []delivery
	record := func(dst *[]delivery) ResponseHandler {
		return func(id ID, payload []byte, rt native.ResponseType, finished bool) {
			mu.Lock()
			defer mu.Unlock()
			*dst = append(*dst, delivery{id, string(payload), rt, finished})
		}
	}
	count := func(d *[]delivery) int {
		mu.Lock()
		defer mu.Unlock()
		return len(*d)
	}

	b.SetResponseHandler(record(&first))
	id, err := b.SendRequest(h, "m", nil)
	if err != nil {
		t.Fatal(err)
	}
	sub := svc.last()

	sub.done(native.Completion{RequestID: sub.id, Result: []byte(`{"step":1}`), Type: native.ResponseAppNotify})
	waitFor(t, func() bool { return count(&first) == 1 })

	// Replacement takes effect for the next delivery.
	b.SetResponseHandler(record(&second))
	sub.done(native.Completion{RequestID: sub.id, Error: []byte(`{"code":1}`), Type: native.ResponseSuccess, Finished: true})
	waitFor(t, func() bool { return count(&second) == 1 })

	mu.Lock()
	if d := first[0]; d.id != id || d.payload != `{"step":1}` || d.rt != native.ResponseAppNotify || d.finished {
		t.Fatalf("first delivery = %+v", d)
	}
	if d := second[0]; d.id != id || d.payload != `{"code":1}` || d.rt != native.ResponseError || !d.finished {
		t.Fatalf("second delivery = %+v", d)
	}
	mu.Unlock()

	// Cleared handler: deliveries are dropped silently.
	b.SetResponseHandler(nil)
	id2, _ := b.SendRequest(h, "m", nil)
	if out := b.OnCompletion(native.Completion{RequestID: uint32(id2), Result: []byte("x"), Finished: true}); out != dispatch.Delivered {
		t.Fatalf("outcome = %v", out)
	}
	waitFor(t, func() bool { return b.Pending() == 0 })
	time.Sleep(10 * time.Millisecond)
	if count(&first) != 1 || count(&second) != 1 {
		t.Fatal("cleared handler still received deliveries")
	}
}

func TestBridge_ResponseHandlerReplacedDuringDelivery(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var oldCalls atomic.Int32
	b.SetResponseHandler(func(ID, []byte, native.ResponseType, bool) {
		oldCalls.Add(1)
		close(entered)
		<-release
	})
	b.SendRequest(h, "m", nil)
	sub := svc.last()
	sub.done(native.Completion{RequestID: sub.id, Result: []byte("1")})
	<-entered

	// The running delivery keeps its handler until it returns.
	b.SetResponseHandler(nil)
	close(release)

	sub.done(native.Completion{RequestID: sub.id, Result: []byte("2"), Finished: true})
	waitFor(t, func() bool { return b.Pending() == 0 })
	time.Sleep(10 * time.Millisecond)
	if oldCalls.Load() != 1 {
		t.Fatalf("retired handler called %d times, want 1", oldCalls.Load())
	}
}

func TestBridge_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	svc := &fakeService{}
	b := New(svc, startLoop(t), WithMetrics(m))
	h, _ := b.CreateContext(nil)

	done := make(chan struct{})
	id1, _ := b.BeginRequest(h, "m", nil, func(_, _ []byte, fin bool) {
		if fin {
			close(done)
		}
	})
	id2, _ := b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) {})
	b.BeginRequest(h, "m", nil, func([]byte, []byte, bool) {})

	b.OnCompletion(native.Completion{RequestID: uint32(id1), Finished: true})
	<-done
	b.Cancel(id2)
	b.OnCompletion(native.Completion{RequestID: 999, Finished: true})
	b.Shutdown()

	if v := testutil.ToFloat64(m.RequestsStarted.(prometheus.Collector)); v != 3 {
		t.Fatalf("requests started = %v", v)
	}
	if v := testutil.ToFloat64(m.InFlight.(prometheus.Collector)); v != 0 {
		t.Fatalf("in flight = %v", v)
	}
	if v := testutil.ToFloat64(m.Cancelled.(prometheus.Collector)); v != 1 {
		t.Fatalf("cancelled = %v", v)
	}
	if v := testutil.ToFloat64(m.Drained.(prometheus.Collector)); v != 1 {
		t.Fatalf("drained = %v", v)
	}
}

func TestBridge_ErrorsMatch(t *testing.T) {
	if !stderrors.Is(errors.Closed(errors.PhaseRegister, "x"), ErrClosed) {
		t.Fatal("closed errors must match ErrClosed")
	}
	if stderrors.Is(ErrAlreadyAttached, ErrNotAttached) {
		t.Fatal("distinct lifecycle errors must not match")
	}
}

func TestBridge_CallContextTimeout(t *testing.T) {
	svc := &fakeService{}
	b := New(svc, startLoop(t))
	h, _ := b.CreateContext(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.CallContext(ctx, h, "m", nil)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if b.Pending() != 0 {
		t.Fatal("timed out call must be cancelled")
	}
}
