package bridge

import (
	"bytes"
	"context"
	"sync"

	"github.com/jizhuozhi/go-future"

	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/request"
)

// Call issues method on context h and returns a future for its finished
// result. A non-empty error payload resolves the future with a native_error
// *errors.Error. A request released by Shutdown resolves with ErrClosed, one
// released by Cancel with ErrCancelled and one whose finished completion the
// host context refused with ErrDropped. Cancelled and dropped errors carry
// the request ID. Intermediate completions go to the WithNotify function.
func (b *Bridge) Call(h native.ContextHandle, method string, params []byte) *future.Future[[]byte] {
	_, f := b.call(h, method, params)
	return f
}

// CallContext issues method and waits for its result. If ctx ends first the
// request is cancelled and ctx.Err() is returned. It must not be called on
// the host execution context, which would then never run the delivery.
func (b *Bridge) CallContext(ctx context.Context, h native.ContextHandle, method string, params []byte) ([]byte, error) {
	id, f := b.call(h, method, params)

	type result struct {
		val []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := f.Get()
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		if id != 0 {
			b.Cancel(id)
		}
		return nil, ctx.Err()
	}
}

func (b *Bridge) call(h native.ContextHandle, method string, params []byte) (ID, *future.Future[[]byte]) {
	p := future.NewPromise[[]byte]()
	var once sync.Once
	resolve := func(val []byte, err error) {
		once.Do(func() { p.Set(val, err) })
	}

	hd := request.NewHandle(func(r request.Response) {
		if !r.Finished {
			if b.notify != nil {
				b.notify(r.RequestID, payloadOf(r), r.Type)
			}
			return
		}
		if r.Type == native.ResponseError || len(r.Error) > 0 {
			resolve(nil, errors.NativeError(method, uint32(r.RequestID), r.Error))
			return
		}
		resolve(bytes.Clone(r.Result), nil)
	}, func(id request.ID, reason request.Reason) {
		switch reason {
		case request.ReasonCancelled:
			resolve(nil, errors.Cancelled(uint32(id)))
		case request.ReasonDropped:
			resolve(nil, errors.Dropped(uint32(id)))
		default:
			resolve(nil, ErrClosed)
		}
	})

	id, err := b.issue(h, method, params, hd)
	if err != nil {
		resolve(nil, err)
	}
	return id, p.Future()
}
