package dispatch

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/interop"
	"github.com/wippyai/native-bridge/metrics"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/request"
)

// Dispatcher turns native completions into host callback invocations.
//
// Each request moves PENDING -> NOTIFIED* -> FINISHED. Intermediate
// completions leave the record in place; the finished one removes it before
// the callback runs, so no later completion for the same ID can reach it.
type Dispatcher struct {
	manager *request.Manager
	sched   Scheduler
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher. m and log may be nil.
func NewDispatcher(mgr *request.Manager, sched Scheduler, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = Logger()
	}
	return &Dispatcher{
		manager: mgr,
		sched:   sched,
		metrics: m,
		log:     log,
	}
}

// OnNativeCompletion handles one completion. It is safe to call from any
// goroutine. The payloads are copied before it returns, so the native side
// may free them immediately after. Dropped and Stale outcomes are logged and
// counted, never reported back to the native service. A scheduled task is
// counted when it runs or is discarded, not when it is queued.
func (d *Dispatcher) OnNativeCompletion(c native.Completion) Outcome {
	result := interop.FromBytes(c.Result)
	errBuf := interop.FromBytes(c.Error)

	id := request.ID(c.RequestID)
	h, ok := d.manager.Complete(id, c.Finished)
	if !ok {
		result.Release()
		errBuf.Release()
		d.metrics.Completions.With(Stale.String()).Inc()
		d.log.Debug("stale completion",
			zap.Uint32("request_id", c.RequestID),
			zap.Bool("finished", c.Finished))
		return Stale
	}

	t := &delivery{
		log:      d.log,
		metrics:  d.metrics,
		handle:   h,
		result:   result,
		errBuf:   errBuf,
		id:       id,
		typ:      c.Kind(),
		finished: c.Finished,
		queued:   time.Now(),
	}

	if out := d.sched.Schedule(t); out != Delivered {
		t.Discard()
		d.log.Warn("completion dropped",
			zap.Uint32("request_id", c.RequestID),
			zap.Bool("finished", c.Finished),
			zap.Stringer("outcome", out))
		return Dropped
	}
	return Delivered
}

// delivery carries one completion to the host context.
type delivery struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	handle   *request.Handle
	result   *interop.Buffer
	errBuf   *interop.Buffer
	queued   time.Time
	id       request.ID
	typ      native.ResponseType
	finished bool
}

func (t *delivery) Run() {
	t.metrics.DeliveryLatency.Observe(time.Since(t.queued).Seconds())
	t.metrics.Completions.With(Delivered.String()).Inc()

	invoked := t.invoke(request.Response{
		RequestID: t.id,
		Result:    t.result.Bytes(),
		Error:     t.errBuf.Bytes(),
		Type:      t.typ,
		Finished:  t.finished,
	})

	t.result.Release()
	t.errBuf.Release()
	if t.finished {
		reason := request.ReasonDropped
		if invoked {
			reason = request.ReasonDelivered
		}
		t.handle.Release(reason)
	}
}

func (t *delivery) invoke(resp request.Response) (invoked bool) {
	defer func() {
		if r := recover(); r != nil {
			invoked = true
			t.log.Warn("recovered callback panic",
				zap.Uint32("request_id", uint32(t.id)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	return t.handle.Invoke(resp)
}

func (t *delivery) Discard() {
	t.metrics.Completions.With(Dropped.String()).Inc()
	t.result.Release()
	t.errBuf.Release()
	if t.finished {
		t.handle.Release(request.ReasonDropped)
	}
}
