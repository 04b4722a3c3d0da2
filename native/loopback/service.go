package loopback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

// Version is reported by client.version.
const Version = "1.0.0"

// Context is the state of one native context.
type Context struct {
	Config json.RawMessage
	Handle native.ContextHandle
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service is an in-process native service. Every request runs on its own
// worker goroutine and reports through the CompletionFunc it was submitted
// with.
type Service struct {
	registry *Registry
	contexts *xsync.MapOf[native.ContextHandle, *Context]
	log      *zap.Logger
	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	next     atomic.Uint32
	closed   bool
}

var _ native.Service = (*Service)(nil)

// New creates a service with the built-in client module registered.
func New(opts ...Option) *Service {
	s := &Service{
		registry: NewRegistry(),
		contexts: xsync.NewMapOf[native.ContextHandle, *Context](),
		log:      Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.registry.RegisterModule(&Client{registry: s.registry}); err != nil {
		panic(err)
	}
	if err := s.registry.RegisterFunc("ping", (&Client{}).Ping); err != nil {
		panic(err)
	}
	return s
}

// Registry returns the method registry for adding modules.
func (s *Service) Registry() *Registry {
	return s.registry
}

// CreateContext creates a context. config must be empty or a JSON object.
func (s *Service) CreateContext(config []byte) (native.ContextHandle, error) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return 0, errors.Closed(errors.PhaseNative, "loopback service")
	}

	cfg := bytes.TrimSpace(config)
	if len(cfg) == 0 {
		cfg = []byte("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(cfg, &obj); err != nil {
		return 0, errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Payload(errorPayload(&Error{Code: CodeInvalidConfig, Message: "Invalid config: " + err.Error()})).
			Cause(err).
			Detail("invalid context config").
			Build()
	}

	h := native.ContextHandle(s.next.Add(1))
	s.contexts.Store(h, &Context{Handle: h, Config: bytes.Clone(cfg)})
	s.log.Debug("context created", zap.Uint32("context", uint32(h)))
	return h, nil
}

// DestroyContext forgets h. Requests already running on it still finish.
func (s *Service) DestroyContext(h native.ContextHandle) {
	if _, ok := s.contexts.LoadAndDelete(h); ok {
		s.log.Debug("context destroyed", zap.Uint32("context", uint32(h)))
	}
}

// Contexts returns the number of live contexts.
func (s *Service) Contexts() int {
	return s.contexts.Size()
}

// SubmitRequest runs method on a worker goroutine. Unknown contexts and
// methods finish with an error completion.
func (s *Service) SubmitRequest(h native.ContextHandle, method string, params []byte, requestID uint32, done native.CompletionFunc) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	r := newResponder(requestID, done)
	if s.closed {
		go r.Fail(CodeUnspecified, "Service is closed")
		return
	}

	ctx, ok := s.contexts.Load(h)
	if !ok {
		go r.Fail(CodeInvalidContext, "Invalid context handle: "+strconv.FormatUint(uint64(h), 10))
		return
	}
	m, ok := s.registry.lookup(method)
	if !ok {
		go r.Fail(CodeUnknownFunction, "Unknown function: "+method)
		return
	}

	params = bytes.Clone(params)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, method, m, params, r)
	}()
}

func (s *Service) run(ctx *Context, name string, m method, params []byte, r *Responder) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Warn("recovered handler panic",
				zap.String("method", name),
				zap.Uint32("request_id", r.RequestID()),
				zap.String("panic", fmt.Sprint(p)))
			r.Fail(CodeUnspecified, fmt.Sprintf("Handler panic: %v", p))
		}
	}()

	m(ctx, params, r)
	if !r.Finished() {
		r.Fail(CodeUnspecified, "Handler returned without a result: "+name)
	}
}

// Close waits for running requests and forgets every context. Requests
// submitted afterwards finish with an error.
func (s *Service) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.wg.Wait()
	s.contexts.Clear()
	return nil
}
