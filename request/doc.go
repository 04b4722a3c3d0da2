// Package request manages the lifetime of host callbacks for in-flight
// native requests.
//
// A Handle owns one callback. Begin registers it and returns the ID to send
// with the native request. Every completion resolves through Complete; the
// finished one also removes the record, so ownership of the handle passes to
// exactly one caller, which releases it after the last invocation:
//
//	h, ok := mgr.Complete(id, finished)
//	if ok {
//		h.Invoke(resp)
//		if finished {
//			h.Release(request.ReasonDelivered)
//		}
//	}
//
// Cancel and Drain release handles without invoking them, with
// ReasonCancelled and ReasonDrained. A delivery the host context refuses
// releases its handle with ReasonDropped. A released handle ignores any
// invocation still queued for it.
package request
