// Package metrics holds the Prometheus instruments exported by the store and
// the HTTP endpoint that serves them.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RouterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshard_router_requests_total",
			Help: "The number of client requests handled by the router, by outcome.",
		},
		[]string{"op", "outcome"},
	)
	RouterLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvshard_router_request_seconds",
			Help:    "The duration taken to answer a client request.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
	ShardCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshard_shard_commands_total",
			Help: "The number of commands applied by a shard owner.",
		},
		[]string{"shard", "op"},
	)
	ShardBusy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvshard_shard_busy_total",
			Help: "The number of commands rejected because the shard mailbox was full.",
		},
		[]string{"shard"},
	)
	ShardKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvshard_shard_keys",
			Help: "The number of keys held by a shard owner.",
		},
		[]string{"shard"},
	)
	RingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvshard_ring_entries",
			Help: "The number of virtual node entries on the hash ring.",
		},
	)
)

// ForgetShard deletes every per-shard series for name.
func ForgetShard(name string) {
	ShardCommands.DeletePartialMatch(prometheus.Labels{"shard": name})
	ShardBusy.DeleteLabelValues(name)
	ShardKeys.DeleteLabelValues(name)
}

// Serve exposes /metrics on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.FromContext(ctx).Warnf("metrics server shutdown: %v", err)
		}
	}()

	clog.FromContext(ctx).Infof("serving metrics on %s", lis.Addr())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serving metrics")
	}
	return nil
}
