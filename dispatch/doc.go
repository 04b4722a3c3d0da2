// Package dispatch marshals native completions onto the host execution
// context.
//
// A Dispatcher receives completions on native worker goroutines. For each
// one it copies the payloads, resolves the request through the request
// Manager and schedules exactly one Task on the host Scheduler. The task
// invokes the host callback, releases the payload copies and, for the
// finished completion, releases the callback handle.
//
// # Host execution context
//
// Loop is a single-consumer context. Tasks run in the order they were
// scheduled on the goroutine that calls Run:
//
//	loop := dispatch.NewLoop(dispatch.LoopOptions{QueueSize: 256})
//	d := dispatch.NewDispatcher(mgr, loop, nil, nil)
//	svc.SubmitRequest(ctxHandle, "client.ping", nil, uint32(id), func(c native.Completion) {
//		d.OnNativeCompletion(c)
//	})
//	loop.Run(ctx)
//
// Foreign event loops plug in through SchedulerFunc.
//
// # Outcomes
//
// OnNativeCompletion reports Delivered, Dropped (the host context refused
// the task) or Stale (no pending request). Neither failure is surfaced to
// the native side.
package dispatch
