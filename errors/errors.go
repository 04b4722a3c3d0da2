package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"  // request registration
	PhaseDispatch  Phase = "dispatch"  // native completion handling
	PhaseSchedule  Phase = "schedule"  // hand-off to the host context
	PhaseNative    Phase = "native"    // native service calls
	PhaseLifecycle Phase = "lifecycle" // attach, detach, shutdown
	PhaseLoad      Phase = "load"      // backend loading
	PhaseConfig    Phase = "config"    // configuration parsing
)

// Kind categorizes the error
type Kind string

const (
	KindClosed          Kind = "closed"
	KindCancelled       Kind = "cancelled"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindInvariant       Kind = "invariant"
	KindUnsupported     Kind = "unsupported"
	KindAllocation      Kind = "allocation"
	KindLoadFailed      Kind = "load_failed"
	KindNativeError     Kind = "native_error"
	KindAlreadyAttached Kind = "already_attached"
	KindNotAttached     Kind = "not_attached"
	KindReattach        Kind = "reattach"
	KindDropped         Kind = "dropped"
)

// previewLimit bounds how much of a native payload is rendered by Error.
const previewLimit = 64

// Error is the structured error type used throughout the bridge
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Method    string
	Detail    string
	Payload   []byte
	RequestID uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Method != "" || e.RequestID != 0 {
		b.WriteString(" (")
		if e.Method != "" {
			b.WriteString("method ")
			b.WriteString(strconv.Quote(e.Method))
		}
		if e.RequestID != 0 {
			if e.Method != "" {
				b.WriteString(", ")
			}
			b.WriteString("request ")
			b.WriteString(strconv.FormatUint(uint64(e.RequestID), 10))
		}
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if len(e.Payload) > 0 {
		preview := e.Payload
		if len(preview) > previewLimit {
			preview = preview[:previewLimit]
		}
		b.WriteString(": ")
		b.WriteString(strconv.Quote(string(preview)))
		if len(e.Payload) > previewLimit {
			b.WriteString("...")
		}
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Method sets the native method name
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Request sets the request identifier
func (b *Builder) Request(id uint32) *Builder {
	b.err.RequestID = id
	return b
}

// Payload sets the raw native payload; the bytes are copied
func (b *Builder) Payload(p []byte) *Builder {
	b.err.Payload = append([]byte(nil), p...)
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Closed creates an error for operations attempted after shutdown
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Cancelled creates an error for a request abandoned by its caller
func Cancelled(id uint32) *Error {
	return &Error{
		Phase:     PhaseRegister,
		Kind:      KindCancelled,
		RequestID: id,
		Detail:    "request cancelled",
	}
}

// Dropped creates an error for a request whose finished completion the
// host context refused
func Dropped(id uint32) *Error {
	return &Error{
		Phase:     PhaseSchedule,
		Kind:      KindDropped,
		RequestID: id,
		Detail:    "finished completion dropped by host context",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Invariant creates an error describing a broken internal invariant.
// Callers panic with it; it is never returned as an ordinary failure.
func Invariant(phase Phase, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvariant,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Load creates a backend loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailed,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// NativeError wraps an application error payload reported by the native service
func NativeError(method string, id uint32, payload []byte) *Error {
	return New(PhaseNative, KindNativeError).
		Method(method).
		Request(id).
		Payload(payload).
		Build()
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
