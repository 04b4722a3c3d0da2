package bridge

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/correlation"
	"github.com/wippyai/native-bridge/dispatch"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/interop"
	"github.com/wippyai/native-bridge/metrics"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/request"
)

// ID identifies a request issued through the bridge.
type ID = request.ID

var (
	ErrClosed          = errors.Closed(errors.PhaseRegister, "bridge")
	ErrCancelled       = errors.Cancelled(0)
	ErrDropped         = errors.Dropped(0)
	ErrAlreadyAttached = errors.New(errors.PhaseLifecycle, errors.KindAlreadyAttached).Detail("bridge already attached").Build()
	ErrNotAttached     = errors.New(errors.PhaseLifecycle, errors.KindNotAttached).Detail("bridge not attached").Build()
	ErrReattach        = errors.New(errors.PhaseLifecycle, errors.KindReattach).Detail("bridge cannot be attached again after detach").Build()
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for this bridge and its dispatcher.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics records bridge activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithNotify receives intermediate completions of requests issued with Call.
// It runs on the host execution context.
func WithNotify(fn func(id ID, payload []byte, rt native.ResponseType)) Option {
	return func(b *Bridge) {
		b.notify = fn
	}
}

// Bridge connects a native service to a host execution context. Requests
// are issued from any goroutine; every callback runs on the scheduler.
type Bridge struct {
	svc      native.Service
	sched    dispatch.Scheduler
	manager  *request.Manager
	disp     *dispatch.Dispatcher
	metrics  *metrics.Metrics
	log      *zap.Logger
	notify   func(id ID, payload []byte, rt native.ResponseType)
	handlers handlerSlot
	once     sync.Once
	closed   atomic.Bool
}

// New creates a bridge over svc whose callbacks run on sched.
func New(svc native.Service, sched dispatch.Scheduler, opts ...Option) *Bridge {
	b := &Bridge{
		svc:     svc,
		sched:   sched,
		manager: request.NewManager(),
		metrics: metrics.Noop(),
		log:     Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.disp = dispatch.NewDispatcher(b.manager, sched, b.metrics, b.log)
	b.manager.Table().Subscribe(&metricsObserver{m: b.metrics})
	return b
}

// CreateContext creates a native context. Its lifetime is independent of
// the requests issued on it.
func (b *Bridge) CreateContext(config []byte) (native.ContextHandle, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	h, err := b.svc.CreateContext(config)
	if err != nil {
		return 0, err
	}
	b.log.Debug("context created", zap.Uint32("context", uint32(h)))
	return h, nil
}

// DestroyContext releases a native context. Requests in flight on it still
// complete.
func (b *Bridge) DestroyContext(h native.ContextHandle) {
	b.svc.DestroyContext(h)
	b.log.Debug("context destroyed", zap.Uint32("context", uint32(h)))
}

// BeginRequest issues method on context h. onResult runs on the host
// context for every completion; the last call has finished set.
func (b *Bridge) BeginRequest(h native.ContextHandle, method string, params []byte, onResult ResultFunc) (ID, error) {
	if onResult == nil {
		return 0, errors.InvalidInput(errors.PhaseRegister, "nil result callback")
	}
	hd := request.NewHandle(func(r request.Response) {
		onResult(r.Result, r.Error, r.Finished)
	}, nil)
	return b.issue(h, method, params, hd)
}

// SetResponseHandler installs the handler used by SendRequest. The handler
// is looked up at delivery time. A replaced handler is retired once the
// deliveries already running through it return. nil clears the handler;
// later deliveries are dropped silently.
func (b *Bridge) SetResponseHandler(fn ResponseHandler) {
	b.handlers.store(fn)
}

// SendRequest issues method on context h and routes its completions to the
// current response handler.
func (b *Bridge) SendRequest(h native.ContextHandle, method string, params []byte) (ID, error) {
	hd := request.NewHandle(func(r request.Response) {
		b.handlers.deliver(r.RequestID, payloadOf(r), r.Type, r.Finished)
	}, nil)
	return b.issue(h, method, params, hd)
}

// Cancel abandons request id. Its callback is released without being
// invoked and later completions are stale. The native work is not stopped.
func (b *Bridge) Cancel(id ID) bool {
	ok := b.manager.Cancel(id)
	if ok {
		b.log.Debug("request cancelled", zap.Uint32("request_id", uint32(id)))
	}
	return ok
}

// Shutdown closes the bridge and releases every pending callback without
// invoking it. It returns the number released. Later calls return 0.
func (b *Bridge) Shutdown() int {
	n := 0
	b.once.Do(func() {
		b.closed.Store(true)
		n = b.manager.Drain()
		b.log.Info("bridge shut down", zap.Int("drained", n))
	})
	return n
}

// Closed reports whether Shutdown has been called.
func (b *Bridge) Closed() bool {
	return b.closed.Load()
}

// Pending returns the number of requests awaiting their finished completion.
func (b *Bridge) Pending() int {
	return b.manager.Pending()
}

// OnCompletion feeds one native completion into the bridge. Services call
// it through the CompletionFunc passed to SubmitRequest.
func (b *Bridge) OnCompletion(c native.Completion) dispatch.Outcome {
	return b.disp.OnNativeCompletion(c)
}

func (b *Bridge) complete(c native.Completion) {
	b.disp.OnNativeCompletion(c)
}

func (b *Bridge) issue(h native.ContextHandle, method string, params []byte, hd *request.Handle) (ID, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	if method == "" {
		return 0, errors.InvalidInput(errors.PhaseRegister, "empty method name")
	}

	id, err := b.manager.Begin(hd)
	if err != nil {
		return 0, ErrClosed
	}
	// Shutdown may have drained between the check above and Begin.
	if b.closed.Load() {
		b.manager.Cancel(id)
		return 0, ErrClosed
	}

	buf := interop.FromBytes(params)
	defer buf.Release()

	b.log.Debug("request issued",
		zap.Uint32("request_id", uint32(id)),
		zap.String("method", method),
		zap.Uint32("context", uint32(h)))
	b.svc.SubmitRequest(h, method, buf.Bytes(), uint32(id), b.complete)
	return id, nil
}

func payloadOf(r request.Response) []byte {
	if r.Type == native.ResponseError || len(r.Error) > 0 {
		return r.Error
	}
	return r.Result
}

type metricsObserver struct {
	m *metrics.Metrics
}

func (o *metricsObserver) OnCorrelationEvent(e correlation.Event) {
	switch e.Type {
	case correlation.EventRegistered:
		o.m.RequestsStarted.Inc()
		o.m.InFlight.Inc()
	case correlation.EventFinished:
		o.m.InFlight.Dec()
	case correlation.EventCancelled:
		o.m.InFlight.Dec()
		o.m.Cancelled.Inc()
	case correlation.EventDrained:
		o.m.InFlight.Dec()
		o.m.Drained.Inc()
	}
}
