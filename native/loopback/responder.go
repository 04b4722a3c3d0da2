package loopback

import (
	"encoding/json"
	stderrors "errors"
	"sync"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

// Error codes reported in error payloads. Values match the native SDK.
const (
	CodeUnspecified     = 0
	CodeInvalidConfig   = 15
	CodeInvalidContext  = 17
	CodeCannotSerialize = 18
	CodeInvalidParams   = 23
	CodeUnknownFunction = 25
)

// Error is an application error carried in an error payload.
type Error struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *Error) Error() string {
	return e.Message
}

// Responder reports the completions of one request. Notify may be called
// any number of times before exactly one of Result, Fail or FailWith.
// Calls after the finishing one are ignored.
type Responder struct {
	done     native.CompletionFunc
	mu       sync.Mutex
	id       uint32
	finished bool
}

func newResponder(id uint32, done native.CompletionFunc) *Responder {
	return &Responder{id: id, done: done}
}

// RequestID returns the ID of the request being answered.
func (r *Responder) RequestID() uint32 {
	return r.id
}

// Notify sends an intermediate completion carrying v as JSON.
func (r *Responder) Notify(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.PhaseNative, errors.KindInvalidInput, err, "encode notification")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return errors.Closed(errors.PhaseNative, "request")
	}
	r.done(native.Completion{RequestID: r.id, Result: data, Type: native.ResponseAppNotify})
	return nil
}

// Result finishes the request with v as JSON.
func (r *Responder) Result(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.Fail(CodeCannotSerialize, "Can not serialize result: "+err.Error())
		return
	}
	r.finish(native.Completion{RequestID: r.id, Result: data, Type: native.ResponseSuccess, Finished: true})
}

// Fail finishes the request with an error payload.
func (r *Responder) Fail(code int, message string) {
	r.FailWith(&Error{Code: code, Message: message})
}

// FailWith finishes the request with err. An *Error keeps its code; any
// other error is reported as CodeUnspecified.
func (r *Responder) FailWith(err error) {
	var ce *Error
	if !stderrors.As(err, &ce) {
		ce = &Error{Code: CodeUnspecified, Message: err.Error()}
	}
	r.finish(native.Completion{RequestID: r.id, Error: errorPayload(ce), Type: native.ResponseError, Finished: true})
}

// Finished reports whether the request has been finished.
func (r *Responder) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *Responder) finish(c native.Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.done(c)
}

func errorPayload(e *Error) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		data, _ = json.Marshal(&Error{Code: CodeCannotSerialize, Message: e.Message})
	}
	return data
}
