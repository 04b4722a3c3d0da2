// Package correlation maps request IDs to the host callbacks awaiting their
// completions.
//
// The Table issues IDs from a monotonic 32-bit counter starting at 1. ID 0
// is never issued, and an ID is never reissued while its record is live:
//
//	table := correlation.NewTable()
//	rec, ok := table.Insert(handle) // rec.ID == 1 on a fresh table
//
// Completions look records up with Take. An intermediate completion leaves
// the record linked; a finished one unlinks it in the same locked step, so
// exactly one caller ever owns a finished record:
//
//	rec, ok := table.Take(id, finished)
//
// Drain unlinks everything at shutdown and closes the table to new inserts.
//
// # Observers
//
// Subscribe receives registered, notified, finished, cancelled and drained
// events. Observers run after the change is visible and outside the table
// lock.
package correlation
