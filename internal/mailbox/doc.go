// Package mailbox provides the bounded request/reply channel every actor in
// the store is driven by. A sender never blocks on enqueue: a full mailbox is
// reported as ErrBusy so callers can apply their own retry or reject policy.
package mailbox
