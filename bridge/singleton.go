package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/dispatch"
	"github.com/wippyai/native-bridge/native"
)

var (
	defaultMu     sync.Mutex
	defaultBridge *Bridge
	detached      bool
)

// Attach creates the process-wide bridge. It can be called once; after
// Detach the process cannot attach again.
func Attach(svc native.Service, sched dispatch.Scheduler, opts ...Option) (*Bridge, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if detached {
		return nil, ErrReattach
	}
	if defaultBridge != nil {
		return nil, ErrAlreadyAttached
	}

	defaultBridge = New(svc, sched, opts...)
	defaultBridge.log.Info("bridge attached")
	return defaultBridge, nil
}

// Detach shuts the process-wide bridge down, releasing every pending
// callback without invoking it.
func Detach() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBridge == nil {
		return ErrNotAttached
	}

	n := defaultBridge.Shutdown()
	defaultBridge.log.Info("bridge detached", zap.Int("released", n))
	defaultBridge = nil
	detached = true
	return nil
}

// Default returns the process-wide bridge, or nil when not attached.
func Default() *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultBridge
}
