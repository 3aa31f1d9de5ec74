package shard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chainguard-dev/clog"

	"kvshard/internal/mailbox"
	"kvshard/internal/metrics"
	"kvshard/internal/storage"
)

// State is the lifecycle state of an Owner.
type State int32

const (
	// StateRunning means the owner is draining its mailbox.
	StateRunning State = iota
	// StateStopped is terminal: the mailbox is closed and the loop has exited.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Mailbox is the queue type shared by an Owner and its Handles.
type Mailbox = mailbox.Mailbox[Command, Response]

// Owner exclusively owns one partition's store and applies commands from its
// mailbox in arrival order.
type Owner struct {
	name  string
	store storage.Store
	mb    *Mailbox
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// NewOwner creates an owner for store with a mailbox of the given capacity.
// The owner does nothing until Run is called.
func NewOwner(name string, store storage.Store, capacity int) *Owner {
	return &Owner{
		name:  name,
		store: store,
		mb:    mailbox.New[Command, Response](capacity),
		done:  make(chan struct{}),
	}
}

// Spawn creates an owner, starts its loop and returns a handle to it.
func Spawn(ctx context.Context, name string, store storage.Store, capacity int) (Handle, *Owner) {
	o := NewOwner(name, store, capacity)
	go o.Run(ctx)
	return o.Handle(), o
}

// Name returns the shard name.
func (o *Owner) Name() string { return o.name }

// Handle returns a new handle to this owner's mailbox.
func (o *Owner) Handle() Handle {
	return NewHandle(o.name, o.mb)
}

// State reports whether the owner is still running.
func (o *Owner) State() State {
	return State(o.state.Load())
}

// Pending returns the number of commands waiting in the mailbox.
func (o *Owner) Pending() int {
	return o.mb.Len()
}

// Done is closed once the loop has exited.
func (o *Owner) Done() <-chan struct{} {
	return o.done
}

// Run drains the mailbox until it is closed by Stop or ctx is done. After a
// Stop every envelope already queued is still applied; after ctx ends queued
// envelopes are dropped and their senders see a receive failure.
func (o *Owner) Run(ctx context.Context) {
	log := clog.FromContext(ctx).With("shard", o.name)
	log.Debugf("shard owner started (capacity=%d)", o.mb.Cap())
	defer func() {
		o.state.Store(int32(StateStopped))
		o.once.Do(func() { close(o.done) })
		log.Debugf("shard owner stopped")
	}()

	for {
		if ctx.Err() != nil {
			o.drain(log)
			return
		}
		select {
		case env, ok := <-o.mb.Receive():
			if !ok {
				return
			}
			env.Reply.Send(o.apply(env.Msg))
		case <-ctx.Done():
			o.drain(log)
			return
		}
	}
}

func (o *Owner) drain(log *clog.Logger) {
	if n := o.mb.Drain(); n > 0 {
		log.Warnf("dropped %d queued commands on shutdown", n)
	}
}

// Stop closes the mailbox. The loop exits once the queue is empty.
func (o *Owner) Stop() {
	o.mb.Close()
}

func (o *Owner) apply(cmd Command) Response {
	metrics.ShardCommands.WithLabelValues(o.name, cmd.Op.String()).Inc()

	switch cmd.Op {
	case OpGet:
		v, ok := o.store.Get(cmd.Key)
		return Value(v, ok)
	case OpSet:
		o.store.Set(cmd.Key, cmd.Value)
		metrics.ShardKeys.WithLabelValues(o.name).Set(float64(o.store.Stats().Keys))
		return OK()
	case OpDelete:
		o.store.Delete(cmd.Key)
		metrics.ShardKeys.WithLabelValues(o.name).Set(float64(o.store.Stats().Keys))
		return OK()
	case OpList:
		return Keys(o.store.List())
	default:
		return Err("unknown command " + cmd.Op.String())
	}
}
