// Package interop holds the byte buffers that carry request parameters and
// completion payloads across the native boundary.
//
// Native payloads are only valid for the duration of the completion callback
// that delivers them, so the dispatcher copies them into a Buffer on the
// native goroutine before handing the work to the host context:
//
//	result := interop.FromBytes(raw)
//	defer result.Release()
//
// Buffers are length-explicit. Embedded zero bytes round-trip unchanged.
//
// Every buffer is counted from creation until Release. Live reports the
// current count, which tests use to check that each completion releases
// exactly the buffers it allocated.
package interop
