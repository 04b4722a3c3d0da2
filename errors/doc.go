// Package errors provides structured error types for the native bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the native method, request identifier, an optional
// native payload and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseNative, errors.KindNativeError).
//		Method("client.version").
//		Request(7).
//		Payload(errorJSON).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Closed(errors.PhaseRegister, "bridge")
//	err := errors.NotFound(errors.PhaseNative, "context", "42")
//
// Errors match with errors.Is when Phase and Kind agree, so package-level
// sentinels built from this type work as comparison targets.
package errors
