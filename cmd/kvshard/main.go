package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"

	"kvshard/internal/config"
	"kvshard/internal/node"
	"kvshard/internal/tracing"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		clog.FromContext(ctx).Fatalf("Failed to process configuration: %v", err)
	}

	// Flags override the environment.
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.IntVar(&cfg.Shards, "shards", cfg.Shards, "number of shards")
	flag.StringVar(&cfg.ShardNames, "shard-names", cfg.ShardNames, "comma-separated shard names (overrides -shards)")
	flag.IntVar(&cfg.Replicas, "replicas", cfg.Replicas, "ring entries per shard")
	flag.IntVar(&cfg.MailboxCapacity, "mailbox", cfg.MailboxCapacity, "shard mailbox capacity")
	flag.IntVar(&cfg.RouterCapacity, "router-capacity", cfg.RouterCapacity, "router mailbox capacity")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout (0 = none)")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "line protocol listen address")
	flag.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC listen address (empty = disabled)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "metrics listen address (empty = disabled)")
	flag.StringVar(&cfg.TracesEndpoint, "traces", cfg.TracesEndpoint, "OTLP/HTTP traces endpoint URL (empty = no export)")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	ctx = clog.WithLogger(ctx, clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	log := clog.FromContext(ctx)

	shutdownTracing, err := tracing.Setup(ctx, cfg.TracesEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer shutdownTracing()

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}
	if err := n.Start(ctx); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}
	log.With("listen", n.LineAddr().String()).Info("kvshard ready")

	if err := n.Wait(); err != nil {
		log.Errorf("Node failed: %v", err)
		shutdownTracing()
		os.Exit(1)
	}
}
