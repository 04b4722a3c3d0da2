package bridge

import (
	"sync"

	"github.com/wippyai/native-bridge/native"
)

// ResultFunc receives the completions of one request. errorJSON is empty on
// success. Both slices are only valid during the call.
type ResultFunc func(result, errorJSON []byte, finished bool)

// ResponseHandler receives completions of requests issued with SendRequest.
// payload is the error payload for error responses and the result otherwise.
// It is only valid during the call.
type ResponseHandler func(id ID, payload []byte, rt native.ResponseType, finished bool)

type handlerRef struct {
	fn      ResponseHandler
	refs    int
	retired bool
}

// handlerSlot holds the current response handler. A replaced handler is
// retired; it is dropped once the deliveries already running through it
// return.
type handlerSlot struct {
	mu  sync.Mutex
	ref *handlerRef
}

func (s *handlerSlot) store(fn ResponseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.ref
	if fn == nil {
		s.ref = nil
	} else {
		s.ref = &handlerRef{fn: fn}
	}
	if old != nil {
		old.retired = true
		if old.refs == 0 {
			old.fn = nil
		}
	}
}

func (s *handlerSlot) acquire() *handlerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.ref
	if ref != nil {
		ref.refs++
	}
	return ref
}

func (s *handlerSlot) release(ref *handlerRef) {
	if ref == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref.refs--
	if ref.refs == 0 && ref.retired {
		ref.fn = nil
	}
}

func (s *handlerSlot) deliver(id ID, payload []byte, rt native.ResponseType, finished bool) bool {
	ref := s.acquire()
	if ref == nil {
		return false
	}
	defer s.release(ref)
	ref.fn(id, payload, rt, finished)
	return true
}
