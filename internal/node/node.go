package node

import (
	"context"
	"net"
	"sort"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"kvshard/internal/config"
	"kvshard/internal/metrics"
	"kvshard/internal/ring"
	"kvshard/internal/router"
	"kvshard/internal/rpc"
	"kvshard/internal/server"
	"kvshard/internal/shard"
	"kvshard/internal/storage"
)

// ErrStopped is returned for operations on a node that has been stopped.
var ErrStopped = errors.New("node stopped")

// Node wires storage owners, the ring, the router and the front ends of a
// single process.
type Node struct {
	cfg    *config.Config
	ring   *ring.Ring[shard.Handle]
	router *router.Router
	line   *server.Server

	mu      sync.Mutex
	owners  map[string]*shard.Owner
	runCtx  context.Context
	started bool
	stopped bool

	grpcServer  *grpc.Server
	health      *health.Server
	lineLis     net.Listener
	grpcLis     net.Listener
	metricsLis  net.Listener
	stopMetrics context.CancelFunc

	eg         *errgroup.Group
	routerDone chan struct{}
	ownerWG    sync.WaitGroup
	stopOnce   sync.Once
	stopDone   chan struct{}
}

// New builds a node from cfg. Nothing runs until Start.
func New(cfg *config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	names, err := cfg.BuildShardNames()
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:        cfg,
		ring:       ring.NewRing[shard.Handle](cfg.Replicas),
		owners:     make(map[string]*shard.Owner, len(names)),
		eg:         new(errgroup.Group),
		routerDone: make(chan struct{}),
		stopDone:   make(chan struct{}),
	}

	handles := make([]shard.Handle, 0, len(names))
	for _, name := range names {
		o := shard.NewOwner(name, storage.NewMemoryStore(), cfg.MailboxCapacity)
		n.owners[name] = o
		handles = append(handles, o.Handle())
	}
	n.ring.SetNodes(handles)
	metrics.RingEntries.Set(float64(n.ring.Len()))

	n.router = router.New(n.ring,
		router.WithCapacity(cfg.RouterCapacity),
		router.WithTimeout(cfg.RequestTimeout),
	)
	n.line = server.New(n.router)
	return n, nil
}

// Router returns the node's router.
func (n *Node) Router() *router.Router { return n.router }

// Start binds the configured listeners and starts every component in the
// background. The node stops when ctx is done, when Stop is called or when a
// front end fails.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrStopped
	}
	if n.started {
		return errors.New("node already started")
	}

	if err := n.listen(); err != nil {
		n.closeListeners()
		return err
	}

	n.started = true
	n.runCtx = context.WithoutCancel(ctx)
	log := clog.FromContext(ctx)

	for _, o := range n.owners {
		n.runOwner(o)
	}

	n.eg.Go(func() error {
		defer close(n.routerDone)
		return n.router.Run(n.runCtx)
	})
	n.eg.Go(func() error {
		if err := n.line.Serve(n.runCtx, n.lineLis); err != nil && !errors.Is(err, net.ErrClosed) {
			n.fail(err)
			return errors.Wrap(err, "serving line protocol")
		}
		return nil
	})

	if n.grpcLis != nil {
		n.grpcServer = grpc.NewServer()
		rpc.Register(n.grpcServer, rpc.NewServer(n.router))

		n.health = health.NewServer()
		healthpb.RegisterHealthServer(n.grpcServer, n.health)
		n.health.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

		// Enable gRPC reflection for grpcurl
		reflection.Register(n.grpcServer)

		lis := n.grpcLis
		log.Infof("serving grpc on %s", lis.Addr())
		n.eg.Go(func() error {
			if err := n.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				n.fail(err)
				return errors.Wrap(err, "serving grpc")
			}
			return nil
		})
	}

	if n.metricsLis != nil {
		mctx, cancel := context.WithCancel(n.runCtx)
		n.stopMetrics = cancel
		lis := n.metricsLis
		log.Infof("serving metrics on %s", lis.Addr())
		n.eg.Go(func() error {
			if err := metrics.Serve(mctx, lis); err != nil {
				n.fail(err)
				return err
			}
			return nil
		})
	}

	context.AfterFunc(ctx, n.Stop)
	log.Infof("node started with %d shards (replicas=%d, ring entries=%d)",
		len(n.owners), n.ring.Replicas(), n.ring.Len())
	return nil
}

func (n *Node) listen() error {
	var err error
	if n.lineLis, err = net.Listen("tcp", n.cfg.ListenAddr); err != nil {
		return errors.Wrapf(err, "failed to listen on %s", n.cfg.ListenAddr)
	}
	if n.cfg.GRPCAddr != "" {
		if n.grpcLis, err = net.Listen("tcp", n.cfg.GRPCAddr); err != nil {
			return errors.Wrapf(err, "failed to listen on %s", n.cfg.GRPCAddr)
		}
	}
	if n.cfg.MetricsAddr != "" {
		if n.metricsLis, err = net.Listen("tcp", n.cfg.MetricsAddr); err != nil {
			return errors.Wrapf(err, "failed to listen on %s", n.cfg.MetricsAddr)
		}
	}
	return nil
}

func (n *Node) closeListeners() {
	for _, lis := range []net.Listener{n.lineLis, n.grpcLis, n.metricsLis} {
		if lis != nil {
			lis.Close()
		}
	}
	n.lineLis, n.grpcLis, n.metricsLis = nil, nil, nil
}

// runOwner starts o's loop. Owners outlive cancellation of the start
// context; Stop closes their mailboxes so queued commands are still applied.
func (n *Node) runOwner(o *shard.Owner) {
	n.ownerWG.Add(1)
	go func() {
		defer n.ownerWG.Done()
		o.Run(n.runCtx)
	}()
}

func (n *Node) fail(err error) {
	clog.FromContext(n.runCtx).Errorf("node component failed: %v", err)
	go n.Stop()
}

// Stop shuts down the front ends, then the router, then every owner, and
// waits for all of them. It is safe to call more than once.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.started {
		n.stopped = true
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	n.stopOnce.Do(func() {
		defer close(n.stopDone)
		log := clog.FromContext(n.runCtx)
		log.Infof("stopping node")

		if n.grpcServer != nil {
			n.health.Shutdown()
			n.grpcServer.GracefulStop()
		}
		n.line.Close()
		if n.stopMetrics != nil {
			n.stopMetrics()
		}

		n.router.Close()
		<-n.routerDone

		n.mu.Lock()
		n.stopped = true
		for _, o := range n.owners {
			o.Stop()
		}
		n.mu.Unlock()
		n.ownerWG.Wait()
		log.Infof("node stopped")
	})
	<-n.stopDone
}

// Wait blocks until the node has stopped and returns the first component
// error, if any.
func (n *Node) Wait() error {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return nil
	}
	err := n.eg.Wait()
	<-n.stopDone
	return err
}

// AddShard creates an empty shard and places it on the ring. Keys whose
// owner moves to the new shard are not migrated.
func (n *Node) AddShard(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("shard name cannot be empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrStopped
	}
	if _, ok := n.owners[name]; ok {
		return errors.Newf("shard %q already exists", name)
	}

	o := shard.NewOwner(name, storage.NewMemoryStore(), n.cfg.MailboxCapacity)
	n.owners[name] = o
	if n.started {
		n.runOwner(o)
	}
	n.ring.AddNode(o.Handle())
	metrics.RingEntries.Set(float64(n.ring.Len()))

	clog.FromContext(ctx).With("shard", name).Infof("added shard (ring entries=%d)", n.ring.Len())
	return nil
}

// RemoveShard takes name off the ring, stops its owner and drops its metric
// series. Keys it held become unreachable.
func (n *Node) RemoveShard(ctx context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrStopped
	}
	o, ok := n.owners[name]
	if !ok {
		return errors.Newf("shard %q not found", name)
	}

	n.ring.RemoveNode(o.Handle())
	delete(n.owners, name)
	o.Stop()
	if n.started {
		// Queued commands still update the shard series until the loop exits.
		<-o.Done()
	}
	metrics.ForgetShard(name)
	metrics.RingEntries.Set(float64(n.ring.Len()))

	clog.FromContext(ctx).With("shard", name).Infof("removed shard (ring entries=%d)", n.ring.Len())
	return nil
}

// Shards returns the names of the shards on the ring, sorted.
func (n *Node) Shards() []string {
	nodes := n.ring.Nodes()
	names := make([]string, 0, len(nodes))
	for _, h := range nodes {
		names = append(names, h.Name())
	}
	sort.Strings(names)
	return names
}

// LineAddr returns the line-protocol listen address, or nil before Start.
func (n *Node) LineAddr() net.Addr { return addrOf(n, func() net.Listener { return n.lineLis }) }

// GRPCAddr returns the gRPC listen address, or nil when disabled.
func (n *Node) GRPCAddr() net.Addr { return addrOf(n, func() net.Listener { return n.grpcLis }) }

// MetricsAddr returns the metrics listen address, or nil when disabled.
func (n *Node) MetricsAddr() net.Addr { return addrOf(n, func() net.Listener { return n.metricsLis }) }

func addrOf(n *Node, get func() net.Listener) net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if lis := get(); lis != nil {
		return lis.Addr()
	}
	return nil
}
