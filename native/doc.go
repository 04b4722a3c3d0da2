// Package native defines the contract between the bridge and an
// asynchronous native request service.
//
// A Service accepts requests tagged with a caller-chosen 32-bit request ID
// and reports zero or more intermediate completions followed by exactly one
// finished completion, on whatever goroutine it likes. Payloads are UTF-8
// JSON byte strings that are only valid during the callback.
//
// Backends live in subpackages:
//
//	native/loopback  in-process Go service
//	native/dylib     native SDK shared library loaded at runtime
//	native/wasmsvc   native service compiled to WebAssembly
package native
