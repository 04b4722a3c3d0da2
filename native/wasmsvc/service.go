package wasmsvc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

// Guest ABI names.
const (
	HostModule     = "tc_host"
	HostOnResponse = "on_response"

	ExportMemory         = "memory"
	ExportAlloc          = "tc_alloc"
	ExportFree           = "tc_free"
	ExportCreateContext  = "tc_create_context"
	ExportDestroyContext = "tc_destroy_context"
	ExportRequest        = "tc_request"
	ExportPoll           = "tc_poll"
)

// FlagFinished marks the last on_response call for a request. The response
// type is carried in flags >> 8.
const FlagFinished = 1

// DefaultPollInterval is used when the guest exports tc_poll and Config
// leaves PollInterval at zero.
const DefaultPollInterval = time.Millisecond

// Config holds configuration for loading a guest.
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// PollInterval is how often tc_poll is called while requests are
	// pending. Negative disables the pump.
	PollInterval time.Duration

	// DisableWASI skips instantiating wasi_snapshot_preview1.
	DisableWASI bool
}

// Service hosts a native service compiled to WebAssembly.
//
// Guest exports:
//
//	memory
//	tc_alloc(size i32) i32
//	tc_free(ptr i32, size i32)                                        optional
//	tc_create_context(cfg_ptr i32, cfg_len i32) i32                   0 on failure
//	tc_destroy_context(ctx i32)
//	tc_request(ctx i32, m_ptr i32, m_len i32, p_ptr i32, p_len i32, id i32)
//	tc_poll() i32                                                     optional
//
// Guest imports:
//
//	tc_host.on_response(id i32, r_ptr i32, r_len i32, e_ptr i32, e_len i32, flags i32)
//
// Guest calls are serialized. on_response may be called during tc_request
// or, for guests that finish work later, during tc_poll.
type Service struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     api.Memory
	alloc   api.Function
	free    api.Function
	create  api.Function
	destroy api.Function
	request api.Function
	poll    api.Function
	pending *xsync.MapOf[uint32, native.CompletionFunc]
	log     *zap.Logger
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closeMu sync.RWMutex
	closed  atomic.Bool
}

var _ native.Service = (*Service)(nil)

// New compiles and instantiates wasm. cfg may be nil.
func New(ctx context.Context, wasm []byte, cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	s := &Service{
		runtime: r,
		pending: xsync.NewMapOf[uint32, native.CompletionFunc](),
		log:     Logger(),
		stop:    make(chan struct{}),
	}

	if err := s.instantiate(ctx, wasm, cfg); err != nil {
		r.Close(ctx)
		return nil, err
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if s.poll != nil && interval > 0 {
		s.wg.Add(1)
		go s.pump(interval)
	}
	return s, nil
}

func (s *Service) instantiate(ctx context.Context, wasm []byte, cfg *Config) error {
	if !cfg.DisableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, s.runtime); err != nil {
			return errors.Load("instantiate wasi", err)
		}
	}

	_, err := s.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(s.onResponse),
			[]api.ValueType{
				api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32,
				api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32,
			}, nil).
		Export(HostOnResponse).
		Instantiate(ctx)
	if err != nil {
		return errors.Load("instantiate host module", err)
	}

	compiled, err := s.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Load("compile module", err)
	}

	// _initialize runs for reactor-style WASI guests; a missing start
	// function is skipped.
	modCfg := wazero.NewModuleConfig().
		WithName("native").
		WithStartFunctions("_initialize")
	mod, err := s.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Load("instantiate module", err)
	}
	s.mod = mod

	s.mem = mod.Memory()
	if s.mem == nil {
		return errors.Load("guest does not export "+ExportMemory, nil)
	}

	required := map[string]*api.Function{
		ExportAlloc:          &s.alloc,
		ExportCreateContext:  &s.create,
		ExportDestroyContext: &s.destroy,
		ExportRequest:        &s.request,
	}
	for name, dst := range required {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return errors.NotFound(errors.PhaseLoad, "export", name)
		}
		*dst = fn
	}
	s.free = mod.ExportedFunction(ExportFree)
	s.poll = mod.ExportedFunction(ExportPoll)
	return nil
}

// CreateContext passes config to tc_create_context.
func (s *Service) CreateContext(config []byte) (native.ContextHandle, error) {
	if s.closed.Load() {
		return 0, errors.Closed(errors.PhaseNative, "wasm service")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	ptr, err := s.write(ctx, config)
	if err != nil {
		return 0, err
	}
	defer s.release(ctx, ptr, len(config))

	res, err := s.create.Call(ctx, uint64(ptr), uint64(len(config)))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseNative, errors.KindNativeError, err, ExportCreateContext)
	}
	h := native.ContextHandle(uint32(res[0]))
	if h == 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindNativeError).
			Method(ExportCreateContext).
			Detail("guest rejected context config").
			Build()
	}
	return h, nil
}

// DestroyContext calls tc_destroy_context.
func (s *Service) DestroyContext(h native.ContextHandle) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.destroy.Call(context.Background(), uint64(h)); err != nil {
		s.log.Warn("destroy context failed", zap.Uint32("context", uint32(h)), zap.Error(err))
	}
}

// SubmitRequest calls tc_request on a worker goroutine.
func (s *Service) SubmitRequest(h native.ContextHandle, method string, params []byte, requestID uint32, done native.CompletionFunc) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed.Load() {
		go done(failure(requestID, "Service is closed"))
		return
	}

	s.pending.Store(requestID, done)
	m := []byte(method)
	p := append([]byte(nil), params...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.call(h, m, p, requestID); err != nil {
			s.log.Warn("guest request failed",
				zap.Uint32("request_id", requestID),
				zap.String("method", method),
				zap.Error(err))
			if done, ok := s.pending.LoadAndDelete(requestID); ok {
				done(failure(requestID, err.Error()))
			}
		}
	}()
}

func (s *Service) call(h native.ContextHandle, method, params []byte, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.Closed(errors.PhaseNative, "wasm service")
	}

	ctx := context.Background()
	mptr, err := s.write(ctx, method)
	if err != nil {
		return err
	}
	defer s.release(ctx, mptr, len(method))

	pptr, err := s.write(ctx, params)
	if err != nil {
		return err
	}
	defer s.release(ctx, pptr, len(params))

	_, err = s.request.Call(ctx,
		uint64(h),
		uint64(mptr), uint64(len(method)),
		uint64(pptr), uint64(len(params)),
		uint64(id))
	if err != nil {
		return errors.Wrap(errors.PhaseNative, errors.KindNativeError, err, ExportRequest)
	}
	return nil
}

// onResponse is tc_host.on_response. It runs on the goroutine of the guest
// call that triggered it, with s.mu held.
func (s *Service) onResponse(_ context.Context, mod api.Module, stack []uint64) {
	id := api.DecodeU32(stack[0])
	rptr, rlen := api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	eptr, elen := api.DecodeU32(stack[3]), api.DecodeU32(stack[4])
	flags := api.DecodeU32(stack[5])
	finished := flags&FlagFinished != 0

	var done native.CompletionFunc
	var ok bool
	if finished {
		done, ok = s.pending.LoadAndDelete(id)
	} else {
		done, ok = s.pending.Load(id)
	}
	if !ok {
		s.log.Debug("response for unknown request", zap.Uint32("request_id", id))
		return
	}

	c := native.Completion{
		RequestID: id,
		Type:      native.ResponseType(flags >> 8),
		Finished:  finished,
	}
	mem := mod.Memory()
	inBounds := true
	if rlen > 0 {
		c.Result, inBounds = mem.Read(rptr, rlen)
	}
	if inBounds && elen > 0 {
		c.Error, inBounds = mem.Read(eptr, elen)
	}
	if !inBounds {
		c = failure(id, "response out of bounds")
		c.Finished = finished
	}
	done(c)
}

func (s *Service) pump(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.pending.Size() == 0 {
				continue
			}
			s.pollOnce()
		}
	}
}

func (s *Service) pollOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	if _, err := s.poll.Call(context.Background()); err != nil {
		s.log.Warn("guest poll failed", zap.Error(err))
	}
}

// Pending returns the number of requests without a finished response.
func (s *Service) Pending() int {
	return s.pending.Size()
}

// Close stops the poll pump, waits for running guest calls, finishes every
// outstanding request with an error and closes the runtime.
func (s *Service) Close() error {
	s.closeMu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.closeMu.Unlock()
		return nil
	}
	s.closeMu.Unlock()

	close(s.stop)
	s.wg.Wait()

	s.pending.Range(func(id uint32, _ native.CompletionFunc) bool {
		if done, ok := s.pending.LoadAndDelete(id); ok {
			done(failure(id, "Service is closed"))
		}
		return true
	})
	return s.runtime.Close(context.Background())
}

// write copies data into guest memory through tc_alloc.
func (s *Service) write(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	res, err := s.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseNative, errors.KindAllocation, err, ExportAlloc)
	}
	ptr := api.DecodeU32(res[0])
	if !s.mem.Write(ptr, data) {
		return 0, errors.New(errors.PhaseNative, errors.KindAllocation).
			Detail("guest allocation at %d of %d bytes out of bounds", ptr, len(data)).
			Build()
	}
	return ptr, nil
}

func (s *Service) release(ctx context.Context, ptr uint32, size int) {
	if s.free == nil || size == 0 {
		return
	}
	if _, err := s.free.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		s.log.Debug("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

func failure(id uint32, message string) native.Completion {
	payload, _ := json.Marshal(struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{Message: message})
	return native.Completion{
		RequestID: id,
		Error:     payload,
		Type:      native.ResponseError,
		Finished:  true,
	}
}
