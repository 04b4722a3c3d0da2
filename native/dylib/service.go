//go:build (darwin || linux || freebsd) && (amd64 || arm64)

package dylib

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
)

var (
	handlerOnce sync.Once
	handlerPtr  uintptr

	// empty backs zero-length strings; the library never sees a nil content pointer.
	empty = [1]byte{}
)

// responseHandler is the single C callback shared by every request. The
// tc_string_data_t argument arrives split into content and len.
func responseHandler(key, content, length, responseType, finished uintptr) {
	var payload []byte
	if n := uint32(length); n > 0 && content != 0 {
		payload = unsafe.Slice((*byte)(unsafe.Pointer(content)), n)
	}
	if !deliver(uint32(key), payload, uint32(responseType), byte(finished) != 0) {
		Logger().Debug("response for unknown request", zap.Uint32("key", uint32(key)))
	}
}

func callback() uintptr {
	handlerOnce.Do(func() {
		handlerPtr = purego.NewCallback(responseHandler)
	})
	return handlerPtr
}

// Service is a native.Service backed by a dynamically loaded library.
type Service struct {
	createContext  func(content *byte, length uint32) uintptr
	destroyContext func(context uint32)
	request        func(context uint32, fn *byte, fnLen uint32, params *byte, paramsLen uint32, key uint32, handler uintptr)
	destroyString  func(handle uintptr)
	readString     uintptr

	keys   *xsync.MapOf[uint32, struct{}]
	path   string
	lib    uintptr
	closed atomic.Bool
}

var _ native.Service = (*Service)(nil)

// Open finds and loads the library. path may be empty to search.
func Open(path string) (*Service, error) {
	resolved, err := Find(path)
	if err != nil {
		return nil, err
	}

	lib, err := purego.Dlopen(resolved, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load("dlopen "+resolved, err)
	}

	s := &Service{
		keys: xsync.NewMapOf[uint32, struct{}](),
		path: resolved,
		lib:  lib,
	}
	if err := s.bind(); err != nil {
		return nil, err
	}
	Logger().Info("native library loaded", zap.String("path", resolved))
	return s, nil
}

func (s *Service) bind() error {
	funcs := []struct {
		fptr any
		name string
	}{
		{&s.createContext, "tc_create_context"},
		{&s.destroyContext, "tc_destroy_context"},
		{&s.request, "tc_request"},
		{&s.destroyString, "tc_destroy_string"},
	}
	for _, f := range funcs {
		sym, err := purego.Dlsym(s.lib, f.name)
		if err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "symbol "+f.name)
		}
		purego.RegisterFunc(f.fptr, sym)
	}

	sym, err := purego.Dlsym(s.lib, "tc_read_string")
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "symbol tc_read_string")
	}
	s.readString = sym
	return nil
}

// Path returns the file the library was loaded from.
func (s *Service) Path() string {
	return s.path
}

// CreateContext calls tc_create_context and decodes its
// {"result": handle} / {"error": {...}} envelope.
func (s *Service) CreateContext(config []byte) (native.ContextHandle, error) {
	if s.closed.Load() {
		return 0, errors.Closed(errors.PhaseNative, "native library")
	}

	ptr, n := stringData(config)
	handle := s.createContext(ptr, n)
	if handle == 0 {
		return 0, errors.New(errors.PhaseNative, errors.KindNativeError).
			Method("tc_create_context").
			Detail("library returned no response").
			Build()
	}
	defer s.destroyString(handle)

	return decodeContext(s.read(handle))
}

// read copies the string behind handle. tc_read_string returns a two-word
// struct in the first two result registers.
func (s *Service) read(handle uintptr) []byte {
	content, length, _ := purego.SyscallN(s.readString, handle)
	if content == 0 || uint32(length) == 0 {
		return nil
	}
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(content)), uint32(length))...)
}

// DestroyContext calls tc_destroy_context.
func (s *Service) DestroyContext(h native.ContextHandle) {
	if s.closed.Load() {
		return
	}
	s.destroyContext(uint32(h))
}

// SubmitRequest routes the request through tc_request. The library copies
// method and params before returning.
func (s *Service) SubmitRequest(h native.ContextHandle, method string, params []byte, requestID uint32, done native.CompletionFunc) {
	if s.closed.Load() {
		go done(closedCompletion(requestID))
		return
	}

	key := registerRoute(route{done: done, requestID: requestID, finish: s.finish})
	s.keys.Store(key, struct{}{})

	m := []byte(method)
	mptr, mlen := stringData(m)
	pptr, plen := stringData(params)
	s.request(uint32(h), mptr, mlen, pptr, plen, key, callback())
}

func (s *Service) finish(key uint32) {
	s.keys.Delete(key)
}

// Pending returns the number of this service's unfinished requests.
func (s *Service) Pending() int {
	return s.keys.Size()
}

// Close fails every unfinished request. The library stays mapped since
// its worker threads may still hold the response handler.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.keys.Range(func(key uint32, _ struct{}) bool {
		if r, ok := lookupRoute(key, true); ok {
			r.done(closedCompletion(r.requestID))
		}
		s.keys.Delete(key)
		return true
	})
	return nil
}

func stringData(b []byte) (*byte, uint32) {
	if len(b) == 0 {
		return &empty[0], 0
	}
	return &b[0], uint32(len(b))
}

func closedCompletion(id uint32) native.Completion {
	payload, _ := json.Marshal(struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	}{Message: "Native library is closed"})
	return native.Completion{
		RequestID: id,
		Error:     payload,
		Type:      native.ResponseError,
		Finished:  true,
	}
}
