// Package router turns client requests into shard commands.
//
// Single-key requests are sent to the shard the ring assigns the key to.
// List fans out to every distinct shard in turn and fails fast: the first
// busy or failed shard aborts the request and anything gathered so far is
// discarded. The listing is not a global snapshot; each shard is read when
// its turn comes.
//
// Backpressure is never absorbed here. A full shard mailbox surfaces as a
// Busy response and the caller decides whether to retry.
package router
