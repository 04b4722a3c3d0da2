package native

import "strconv"

// ResponseType classifies a completion. Values match the native SDK.
type ResponseType uint32

const (
	ResponseSuccess    ResponseType = 0
	ResponseError      ResponseType = 1
	ResponseNop        ResponseType = 2
	ResponseAppRequest ResponseType = 3
	ResponseAppNotify  ResponseType = 4
	ResponseCustom     ResponseType = 100
)

func (t ResponseType) String() string {
	switch t {
	case ResponseSuccess:
		return "success"
	case ResponseError:
		return "error"
	case ResponseNop:
		return "nop"
	case ResponseAppRequest:
		return "app_request"
	case ResponseAppNotify:
		return "app_notify"
	}
	if t >= ResponseCustom {
		return "custom+" + strconv.FormatUint(uint64(t-ResponseCustom), 10)
	}
	return "type(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// ContextHandle identifies a native context. 0 is never a valid handle.
type ContextHandle uint32

// Completion is one response from the native service for a request.
// Result and Error are only valid for the duration of the CompletionFunc
// call that delivers them.
type Completion struct {
	Result    []byte
	Error     []byte
	RequestID uint32
	Type      ResponseType
	Finished  bool
}

// Kind returns the response type the host should see. A success carrying
// an error payload is reported as an error.
func (c Completion) Kind() ResponseType {
	if c.Type == ResponseSuccess && len(c.Error) > 0 {
		return ResponseError
	}
	return c.Type
}

// CompletionFunc receives completions. It may be called from any goroutine,
// any number of times per request; the last call has Finished set.
type CompletionFunc func(Completion)

// Service is an asynchronous native request service.
type Service interface {
	// CreateContext creates a native context from a JSON config.
	CreateContext(config []byte) (ContextHandle, error)

	// DestroyContext releases a context. Requests in flight on it still complete.
	DestroyContext(h ContextHandle)

	// SubmitRequest starts method on context h. It must not block on the
	// request's completion. params is only valid for the duration of the
	// call. done is called zero or more times with intermediate completions
	// and then exactly once with Finished set.
	SubmitRequest(h ContextHandle, method string, params []byte, requestID uint32, done CompletionFunc)

	// Close releases the service.
	Close() error
}
