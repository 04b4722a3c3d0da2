// Package nativebridge correlates asynchronous native requests with the Go
// callbacks waiting for them.
//
// A native service (a shared library, a WebAssembly guest or an in-process Go
// module) reports completions on its own threads. The bridge assigns each
// request an identifier, keeps its callback alive until the finished
// completion arrives, and delivers every completion on a single host
// execution context chosen by the embedder.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nativebridge/
//	├── bridge/          Lifecycle controller, callback, handler and future APIs
//	├── dispatch/        Completion dispatcher, schedulers and the host Loop
//	├── request/         Ref-counted callback handles and the request manager
//	├── correlation/     Request ID allocation and the pending-request table
//	├── interop/         Owned byte buffers for payloads crossing the boundary
//	├── native/          Service contract and completion types
//	│   ├── loopback/    In-process Go service with a method registry
//	│   ├── dylib/       Shared library backend loaded with purego
//	│   └── wasmsvc/     WebAssembly guest backend hosted on wazero
//	├── metrics/         Prometheus instrumentation
//	├── config/          TOML configuration for bridgectl
//	└── errors/          Structured error types
//
// # Quick Start
//
// Run a host loop and issue a request:
//
//	loop := dispatch.NewLoop(dispatch.LoopOptions{})
//	loop.Start()
//	defer loop.Close()
//
//	b := bridge.New(loopback.New(), loop)
//	defer b.Shutdown()
//
//	h, err := b.CreateContext([]byte(`{}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b.BeginRequest(h, "client.version", nil, func(result, errorJSON []byte, finished bool) {
//	    fmt.Printf("%s\n", result) // {"version":"1.0.0"}
//	})
//
// # Delivery Guarantees
//
//   - Callbacks only run on the scheduler's execution context
//   - Completions of one request are delivered in the order they arrive
//   - At most one finished completion is delivered per request
//   - A callback is released exactly once, invoked or not
//   - Completions for finished, cancelled or drained requests are dropped
package nativebridge
