// Package wasmsvc hosts a native service compiled to WebAssembly.
//
// The guest speaks a small C-style ABI: the host copies method names and
// params into guest memory via tc_alloc, calls tc_request, and the guest
// reports completions by calling the imported tc_host.on_response, either
// during tc_request or later from tc_poll. Bit 0 of the flags argument marks
// the finished completion; the response type sits in the bits above 8.
//
// All guest calls are serialized. Requests run on worker goroutines so
// SubmitRequest never blocks on the guest.
package wasmsvc
