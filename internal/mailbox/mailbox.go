package mailbox

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrBusy is returned when the mailbox is at capacity.
	ErrBusy = errors.New("mailbox full")
	// ErrSendFailed is returned when the mailbox has been closed.
	ErrSendFailed = errors.New("failed to send request")
	// ErrRecvFailed is returned when the owner dropped the reply slot
	// without answering, or the caller stopped waiting for it.
	ErrRecvFailed = errors.New("failed to receive response")
)

// Reply is a single-use reply slot. Only the first Send or Drop has any
// effect, and neither ever blocks, so an owner answering a caller that has
// gone away simply discards the value.
type Reply[R any] struct {
	once sync.Once
	ch   chan R
}

func newReply[R any]() *Reply[R] {
	return &Reply[R]{ch: make(chan R, 1)}
}

// Send delivers v to the waiting caller.
func (r *Reply[R]) Send(v R) {
	r.once.Do(func() {
		r.ch <- v
		close(r.ch)
	})
}

// Drop closes the slot without an answer.
func (r *Reply[R]) Drop() {
	r.once.Do(func() {
		close(r.ch)
	})
}

// Envelope is a message paired with the slot its answer goes to.
type Envelope[M, R any] struct {
	Msg   M
	Reply *Reply[R]
}

// Mailbox is a bounded FIFO queue of envelopes feeding one consumer loop.
type Mailbox[M, R any] struct {
	mu     sync.RWMutex
	closed bool
	ch     chan Envelope[M, R]
}

// New creates a mailbox holding at most capacity pending envelopes.
// Capacities below one are raised to one.
func New[M, R any](capacity int) *Mailbox[M, R] {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox[M, R]{
		ch: make(chan Envelope[M, R], capacity),
	}
}

// Send enqueues msg without blocking and waits for its single reply.
//
// It returns ErrBusy if the mailbox is full, ErrSendFailed if it is closed and
// ErrRecvFailed if the reply slot is dropped. If ctx ends first the returned
// error matches both ErrRecvFailed and the context error, and the eventual
// reply is discarded.
func (mb *Mailbox[M, R]) Send(ctx context.Context, msg M) (R, error) {
	var zero R

	reply := newReply[R]()
	if err := mb.offer(Envelope[M, R]{Msg: msg, Reply: reply}); err != nil {
		return zero, err
	}

	select {
	case v, ok := <-reply.ch:
		if !ok {
			return zero, ErrRecvFailed
		}
		return v, nil
	case <-ctx.Done():
		return zero, errors.Mark(errors.Wrap(ctx.Err(), "awaiting reply"), ErrRecvFailed)
	}
}

func (mb *Mailbox[M, R]) offer(env Envelope[M, R]) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if mb.closed {
		return ErrSendFailed
	}
	select {
	case mb.ch <- env:
		return nil
	default:
		return ErrBusy
	}
}

// Receive returns the consumer side. The channel is closed by Close once all
// previously accepted envelopes have been queued.
func (mb *Mailbox[M, R]) Receive() <-chan Envelope[M, R] {
	return mb.ch
}

// Close stops intake. Envelopes already queued stay readable from Receive.
// Close is idempotent.
func (mb *Mailbox[M, R]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.ch)
}

// Closed reports whether Close has been called.
func (mb *Mailbox[M, R]) Closed() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.closed
}

// Drain closes the mailbox and drops the reply slot of every envelope still
// queued, so their senders fail with ErrRecvFailed instead of waiting forever.
// It returns the number of envelopes dropped.
func (mb *Mailbox[M, R]) Drain() int {
	mb.Close()
	n := 0
	for env := range mb.ch {
		env.Reply.Drop()
		n++
	}
	return n
}

// Len returns the number of queued envelopes.
func (mb *Mailbox[M, R]) Len() int {
	return len(mb.ch)
}

// Cap returns the mailbox capacity.
func (mb *Mailbox[M, R]) Cap() int {
	return cap(mb.ch)
}
