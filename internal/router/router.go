package router

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"kvshard/internal/mailbox"
	"kvshard/internal/metrics"
	"kvshard/internal/ring"
	"kvshard/internal/shard"
)

// DefaultCapacity is the router mailbox size used when none is configured.
const DefaultCapacity = 1024

const tracerName = "kvshard/router"

// Router dispatches client requests to shards.
type Router struct {
	cluster ring.Cluster[shard.Handle]
	timeout time.Duration
	mb      *mailbox.Mailbox[Request, Response]
	tracer  trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout bounds every request. Zero means no deadline beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithCapacity sets the size of the router's own mailbox.
func WithCapacity(n int) Option {
	return func(r *Router) { r.mb = mailbox.New[Request, Response](n) }
}

// WithTracerProvider traces requests with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Router) { r.tracer = tp.Tracer(tracerName) }
}

// New creates a router over cluster.
func New(cluster ring.Cluster[shard.Handle], opts ...Option) *Router {
	r := &Router{
		cluster: cluster,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mb == nil {
		r.mb = mailbox.New[Request, Response](DefaultCapacity)
	}
	return r
}

// Submit hands req to the router loop started by Run and waits for the
// answer. A full router mailbox yields Busy with an empty Shard.
func (r *Router) Submit(ctx context.Context, req Request) Response {
	resp, err := r.mb.Send(ctx, req)
	switch {
	case err == nil:
		return resp
	case errors.Is(err, mailbox.ErrBusy):
		metrics.RouterRequests.WithLabelValues(req.Op.String(), KindBusy.String()).Inc()
		return Busy("")
	default:
		return Err(err.Error())
	}
}

// Run serves submitted requests, one goroutine per request, until Close is
// called or ctx is done. It returns once every started request has answered.
func (r *Router) Run(ctx context.Context) error {
	log := clog.FromContext(ctx)
	log.Infof("router started (capacity=%d)", r.mb.Cap())

	var eg errgroup.Group
	for ctx.Err() == nil {
		select {
		case env, ok := <-r.mb.Receive():
			if !ok {
				log.Infof("router mailbox closed")
				return eg.Wait()
			}
			eg.Go(func() error {
				env.Reply.Send(r.Do(ctx, env.Msg))
				return nil
			})
		case <-ctx.Done():
		}
	}

	if n := r.mb.Drain(); n > 0 {
		log.Warnf("router dropped %d queued requests on shutdown", n)
	}
	return eg.Wait()
}

// Close stops accepting submissions. Requests already queued are still served.
func (r *Router) Close() {
	r.mb.Close()
}

// Do executes req directly and returns its response.
func (r *Router) Do(ctx context.Context, req Request) Response {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := r.tracer.Start(ctx, "router."+req.Op.String(), trace.WithAttributes(
		attribute.String("kvshard.op", req.Op.String()),
		attribute.String("kvshard.key", req.Key),
	))
	defer span.End()

	start := time.Now()
	resp := r.dispatch(ctx, req)

	metrics.RouterLatency.WithLabelValues(req.Op.String()).Observe(time.Since(start).Seconds())
	metrics.RouterRequests.WithLabelValues(req.Op.String(), resp.Kind.String()).Inc()
	span.SetAttributes(attribute.String("kvshard.outcome", resp.Kind.String()))
	if resp.Kind == KindErr {
		span.SetStatus(codes.Error, resp.Err)
	}
	return resp
}

func (r *Router) dispatch(ctx context.Context, req Request) Response {
	switch req.Op {
	case OpGet:
		return r.single(ctx, shard.Get(req.Key))
	case OpSet:
		return r.single(ctx, shard.Set(req.Key, req.Value))
	case OpDelete:
		return r.single(ctx, shard.Delete(req.Key))
	case OpList:
		return r.list(ctx)
	default:
		return Err(ErrUnknownOp)
	}
}

// single routes a one-key command to the shard owning the key.
func (r *Router) single(ctx context.Context, cmd shard.Command) Response {
	h, ok := r.cluster.Get(cmd.Key)
	if !ok {
		return Err(ErrShardNotFound)
	}

	resp := h.Send(ctx, cmd)
	switch resp.Kind {
	case shard.KindBusy:
		return Busy(h.Name())
	case shard.KindErr:
		clog.FromContext(ctx).With("shard", h.Name()).Warnf("%s %q failed: %s", cmd.Op, cmd.Key, resp.Err)
		return Err(resp.Err)
	}

	switch {
	case cmd.Op == shard.OpGet && resp.Kind == shard.KindValue:
		if !resp.Found {
			return None()
		}
		return Value(resp.Value)
	case (cmd.Op == shard.OpSet || cmd.Op == shard.OpDelete) && resp.Kind == shard.KindOK:
		return OK()
	default:
		return Err(ErrUnexpected)
	}
}

// list gathers keys from every shard, one at a time, and gives up on the
// first shard that does not answer with a key list.
func (r *Router) list(ctx context.Context) Response {
	var keys []string
	for _, h := range r.cluster.Nodes() {
		resp := h.Send(ctx, shard.List())
		switch resp.Kind {
		case shard.KindList:
			keys = append(keys, resp.Keys...)
		case shard.KindBusy:
			return Busy(h.Name())
		case shard.KindErr:
			clog.FromContext(ctx).With("shard", h.Name()).Warnf("list failed: %s", resp.Err)
			return Err(resp.Err)
		default:
			return Err(ErrUnexpected)
		}
	}
	if len(keys) == 0 {
		return None()
	}
	return Keys(keys)
}
