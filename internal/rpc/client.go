package rpc

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"kvshard/internal/router"
)

// Client talks to a kvshard.v1.Router service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for addr. Without options the connection uses
// insecure transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	return &Client{conn: conn}, nil
}

// Do sends req and returns the router's response.
func (c *Client) Do(ctx context.Context, req router.Request) (router.Response, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, doMethod, EncodeRequest(req), out); err != nil {
		return router.Response{}, errors.Wrapf(err, "%s %q", req.Op, req.Key)
	}
	return DecodeResponse(out)
}

// Get fetches key.
func (c *Client) Get(ctx context.Context, key string) (router.Response, error) {
	return c.Do(ctx, router.Get(key))
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key, value string) (router.Response, error) {
	return c.Do(ctx, router.Set(key, value))
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) (router.Response, error) {
	return c.Do(ctx, router.Delete(key))
}

// List returns every key.
func (c *Client) List(ctx context.Context) (router.Response, error) {
	return c.Do(ctx, router.List())
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
