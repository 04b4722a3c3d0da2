package request

import (
	"sync"

	"github.com/wippyai/native-bridge/correlation"
	"github.com/wippyai/native-bridge/native"
)

// ID identifies a registered request.
type ID = correlation.ID

// Response is what the host callback sees for one completion.
type Response struct {
	Result    []byte
	Error     []byte
	RequestID ID
	Type      native.ResponseType
	Finished  bool
}

// Reason records why a handle was released.
type Reason uint8

const (
	ReasonNone      Reason = iota
	ReasonDelivered        // a finished response reached the callback
	ReasonDropped          // the host context refused the delivery
	ReasonCancelled        // the caller cancelled the request
	ReasonDrained          // the bridge shut down
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDelivered:
		return "delivered"
	case ReasonDropped:
		return "dropped"
	case ReasonCancelled:
		return "cancelled"
	case ReasonDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Handle owns one host callback. It is invoked on the host execution
// context and released exactly once. A release that races an invocation
// retires the handle; the callback is dropped when the last in-flight
// invocation returns.
type Handle struct {
	fn        func(Response)
	onDiscard func(ID, Reason)
	mu        sync.Mutex
	refs      int
	id        ID
	reason    Reason
	retired   bool
	delivered bool
	finalized bool
}

// NewHandle wraps fn. onDiscard, if not nil, runs once when the handle is
// released without ever having delivered a finished response. It receives
// the request ID and the release reason.
func NewHandle(fn func(Response), onDiscard func(ID, Reason)) *Handle {
	return &Handle{fn: fn, onDiscard: onDiscard}
}

// Bind records the request ID the handle was registered under.
func (h *Handle) Bind(id ID) {
	h.mu.Lock()
	h.id = id
	h.mu.Unlock()
}

// Invoke calls the callback with resp. It returns false without calling
// anything once the handle has been released.
func (h *Handle) Invoke(resp Response) bool {
	h.mu.Lock()
	if h.retired || h.fn == nil {
		h.mu.Unlock()
		return false
	}
	h.refs++
	fn := h.fn
	h.mu.Unlock()

	defer h.done(resp.Finished)
	fn(resp)
	return true
}

func (h *Handle) done(finished bool) {
	h.mu.Lock()
	h.refs--
	if finished {
		h.delivered = true
	}
	discard := h.finalizeLocked()
	h.mu.Unlock()

	if discard != nil {
		discard()
	}
}

// Release retires the handle for reason. ReasonDelivered means the caller
// delivered a finished response through it. The first call returns true and
// fixes the reason; later calls are no-ops returning false.
func (h *Handle) Release(reason Reason) bool {
	h.mu.Lock()
	if h.retired {
		h.mu.Unlock()
		return false
	}
	h.retired = true
	h.reason = reason
	if reason == ReasonDelivered {
		h.delivered = true
	}
	discard := h.finalizeLocked()
	h.mu.Unlock()

	if discard != nil {
		discard()
	}
	return true
}

// Reason returns why the handle was released, or ReasonNone.
func (h *Handle) Reason() Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retired
}

// finalizeLocked drops the callback once the handle is retired and idle,
// returning the discard hook to run outside the lock, if any.
func (h *Handle) finalizeLocked() func() {
	if !h.retired || h.refs > 0 || h.finalized {
		return nil
	}
	h.finalized = true
	h.fn = nil
	discard := h.onDiscard
	h.onDiscard = nil
	if h.delivered || discard == nil {
		return nil
	}
	id, reason := h.id, h.reason
	return func() { discard(id, reason) }
}
