package shard

import (
	"context"

	"github.com/cockroachdb/errors"

	"kvshard/internal/mailbox"
	"kvshard/internal/metrics"
)

// Handle is the addressable front for a shard owner. Handles are values and
// may be copied freely; every copy reaches the same mailbox.
type Handle struct {
	name string
	mb   *Mailbox
}

// NewHandle wraps a mailbox under the given shard name.
func NewHandle(name string, mb *Mailbox) Handle {
	return Handle{name: name, mb: mb}
}

// Name returns the shard name. It is the ring placement key and the identity
// used to deduplicate shards.
func (h Handle) Name() string { return h.name }

// String implements fmt.Stringer.
func (h Handle) String() string { return h.name }

// Send delivers cmd to the owner and waits for its reply. A full mailbox
// yields a Busy response immediately; communication failures yield an Err
// response. Send never retries.
func (h Handle) Send(ctx context.Context, cmd Command) Response {
	if h.mb == nil {
		return Err(mailbox.ErrSendFailed.Error())
	}
	resp, err := h.mb.Send(ctx, cmd)
	switch {
	case err == nil:
		return resp
	case errors.Is(err, mailbox.ErrBusy):
		metrics.ShardBusy.WithLabelValues(h.name).Inc()
		return Busy()
	default:
		return Err(err.Error())
	}
}
