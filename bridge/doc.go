// Package bridge lets a single-threaded host execution context drive an
// asynchronous native service.
//
// Requests are issued from any goroutine. Their completions arrive on native
// worker goroutines and are marshalled onto the host context, where every
// callback runs:
//
//	loop := dispatch.NewLoop(dispatch.LoopOptions{})
//	b := bridge.New(loopback.New(), loop)
//	ctx, _ := b.CreateContext(nil)
//
//	b.BeginRequest(ctx, "client.version", nil, func(result, errorJSON []byte, finished bool) {
//		fmt.Println(string(result))
//	})
//	loop.Run(context.Background())
//
// # Request styles
//
// BeginRequest binds a callback to one request. SendRequest routes all its
// completions to the handler installed with SetResponseHandler, which is
// looked up at delivery time. Call returns a future for the finished result;
// CallContext waits for it from a goroutine other than the host context.
//
// # Lifecycle
//
// Shutdown closes the bridge and releases every pending callback without
// invoking it. Completions that arrive afterwards are stale and ignored.
// Attach and Detach manage one process-wide bridge, which can be attached
// once and detached once.
package bridge
