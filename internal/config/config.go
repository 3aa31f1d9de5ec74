package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config holds the node configuration.
type Config struct {
	Shards          int           `env:"KVSHARD_SHARDS, default=3"`
	ShardNames      string        `env:"KVSHARD_SHARD_NAMES"`
	Replicas        int           `env:"KVSHARD_REPLICAS, default=3"`
	MailboxCapacity int           `env:"KVSHARD_MAILBOX_CAPACITY, default=32"`
	RouterCapacity  int           `env:"KVSHARD_ROUTER_CAPACITY, default=1024"`
	RequestTimeout  time.Duration `env:"KVSHARD_REQUEST_TIMEOUT, default=0s"`
	ListenAddr      string        `env:"KVSHARD_LISTEN_ADDR, default=:7379"`
	GRPCAddr        string        `env:"KVSHARD_GRPC_ADDR"`
	MetricsAddr     string        `env:"KVSHARD_METRICS_ADDR"`
	TracesEndpoint  string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to process env")
	}
	return &cfg, nil
}

// Validate checks that counts and capacities are positive and that shard
// names are unique.
func (c *Config) Validate() error {
	if c.Replicas < 1 {
		return errors.Newf("replicas must be positive, got %d", c.Replicas)
	}
	if c.MailboxCapacity < 1 {
		return errors.Newf("mailbox capacity must be positive, got %d", c.MailboxCapacity)
	}
	if c.RouterCapacity < 1 {
		return errors.Newf("router capacity must be positive, got %d", c.RouterCapacity)
	}
	if c.RequestTimeout < 0 {
		return errors.Newf("request timeout cannot be negative, got %s", c.RequestTimeout)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address cannot be empty")
	}

	names, err := c.BuildShardNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Newf("shards must be positive, got %d", c.Shards)
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return errors.Newf("duplicate shard name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ParseShardNames parses a comma-separated list of shard names in the format:
// "alpha,beta,gamma"
func ParseShardNames(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}

	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if strings.ContainsAny(name, " \t") {
			return nil, errors.Newf("invalid shard name %q (no whitespace allowed)", name)
		}
		names = append(names, name)
	}
	return names, nil
}

// BuildShardNames returns the explicit shard names if any were configured,
// otherwise Shards generated names shard_0 through shard_{Shards-1}.
func (c *Config) BuildShardNames() ([]string, error) {
	names, err := ParseShardNames(c.ShardNames)
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		return names, nil
	}

	for i := 0; i < c.Shards; i++ {
		names = append(names, fmt.Sprintf("shard_%d", i))
	}
	return names, nil
}
