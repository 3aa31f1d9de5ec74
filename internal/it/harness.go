package it

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"kvshard/internal/config"
	"kvshard/internal/node"
	"kvshard/internal/rpc"
)

// Harness runs a node in-process on loopback ports.
type Harness struct {
	Node *node.Node

	mu     sync.Mutex
	rpc    *rpc.Client
	conns  []net.Conn
	health healthpb.HealthClient
	hconn  *grpc.ClientConn
}

// NewConfig returns a config with every front end on an ephemeral loopback
// port.
func NewConfig(shards int) *config.Config {
	return &config.Config{
		Shards:          shards,
		Replicas:        3,
		MailboxCapacity: 32,
		RouterCapacity:  1024,
		ListenAddr:      "127.0.0.1:0",
		GRPCAddr:        "127.0.0.1:0",
		MetricsAddr:     "127.0.0.1:0",
	}
}

// Start builds and starts a node from cfg.
func Start(ctx context.Context, cfg *config.Config) (*Harness, error) {
	n, err := node.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to start node")
	}
	return &Harness{Node: n}, nil
}

// RPC returns a gRPC client for the node, dialing it on first use.
func (h *Harness) RPC() (*rpc.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rpc != nil {
		return h.rpc, nil
	}
	c, err := rpc.Dial(h.Node.GRPCAddr().String())
	if err != nil {
		return nil, err
	}
	h.rpc = c
	return c, nil
}

// Health returns a gRPC health client for the node.
func (h *Harness) Health() (healthpb.HealthClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.health != nil {
		return h.health, nil
	}
	conn, err := grpc.NewClient(h.Node.GRPCAddr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial health")
	}
	h.hconn = conn
	h.health = healthpb.NewHealthClient(conn)
	return h.health, nil
}

// LineClient is a line-protocol connection.
type LineClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// Line opens a new line-protocol connection to the node.
func (h *Harness) Line() (*LineClient, error) {
	conn, err := net.DialTimeout("tcp", h.Node.LineAddr().String(), 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial line server")
	}
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()
	return &LineClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Do sends one command line and returns the reply line.
func (c *LineClient) Do(line string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return "", errors.Wrapf(err, "writing %q", line)
	}
	reply, err := c.r.ReadString('\n')
	if err != nil {
		return "", errors.Wrapf(err, "reading reply to %q", line)
	}
	return strings.TrimSuffix(reply, "\n"), nil
}

// Metrics fetches the node's Prometheus exposition.
func (h *Harness) Metrics(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://%s/metrics", h.Node.MetricsAddr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching metrics")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading metrics")
	}
	return string(body), nil
}

// Stop closes every client and stops the node.
func (h *Harness) Stop() {
	h.mu.Lock()
	for _, c := range h.conns {
		c.Close()
	}
	h.conns = nil
	if h.rpc != nil {
		h.rpc.Close()
		h.rpc = nil
	}
	if h.hconn != nil {
		h.hconn.Close()
		h.hconn, h.health = nil, nil
	}
	h.mu.Unlock()

	h.Node.Stop()
}
