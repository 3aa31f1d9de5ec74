// Package shard implements the storage owner actor and the handle used to
// reach it.
//
// An Owner is the only code that touches its store. It drains a bounded
// mailbox one command at a time, so every command is fully applied before the
// next is dequeued and no lock is taken on the data. A Handle is the
// addressable, copyable front for that mailbox; the ring and the router deal
// exclusively in handles.
package shard
