package rpc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"kvshard/internal/ring"
	"kvshard/internal/router"
	"kvshard/internal/shard"
	"kvshard/internal/storage"
)

func newRouter(t *testing.T) *router.Router {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := ring.NewRing[shard.Handle](3)
	for i := 0; i < 3; i++ {
		h, _ := shard.Spawn(ctx, fmt.Sprintf("shard_%d", i), storage.NewMemoryStore(), 16)
		r.AddNode(h)
	}
	rt := router.New(r)
	go rt.Run(ctx)
	return rt
}

// startService serves sub over an in-memory listener and returns a client.
func startService(t *testing.T, sub Submitter) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, NewServer(sub))
	reflection.Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := startService(t, newRouter(t))

	resp, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, router.None(), resp)

	resp, err = c.Set(ctx, "key1", "value1")
	require.NoError(t, err)
	assert.Equal(t, router.OK(), resp)

	resp, err = c.Set(ctx, "key2", "value 2")
	require.NoError(t, err)
	assert.Equal(t, router.OK(), resp)

	resp, err = c.Get(ctx, "key2")
	require.NoError(t, err)
	assert.Equal(t, router.Value("value 2"), resp)

	resp, err = c.List(ctx)
	require.NoError(t, err)
	require.Equal(t, router.KindList, resp.Kind)
	sort.Strings(resp.Keys)
	assert.Equal(t, []string{"key1", "key2"}, resp.Keys)

	resp, err = c.Delete(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, router.OK(), resp)

	resp, err = c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, router.None(), resp)
}

func TestService_EmptyValue(t *testing.T) {
	ctx := context.Background()
	c := startService(t, newRouter(t))

	_, err := c.Set(ctx, "k", "")
	require.NoError(t, err)

	resp, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, router.Value(""), resp)
}

type stubSubmitter struct {
	resp router.Response
}

func (s stubSubmitter) Submit(context.Context, router.Request) router.Response { return s.resp }

func TestService_BusyAndErr(t *testing.T) {
	ctx := context.Background()

	resp, err := startService(t, stubSubmitter{router.Busy("shard_1")}).Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, router.Busy("shard_1"), resp)

	resp, err = startService(t, stubSubmitter{router.Busy("")}).List(ctx)
	require.NoError(t, err)
	assert.Equal(t, router.Busy(""), resp)

	resp, err = startService(t, stubSubmitter{router.Err("failed to send request")}).Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, router.Err("failed to send request"), resp)
}

func TestService_InvalidArgument(t *testing.T) {
	ctx := context.Background()
	c := startService(t, newRouter(t))

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"unknown op", map[string]any{"op": "increment", "key": "k"}},
		{"missing op", map[string]any{"key": "k"}},
		{"get without key", map[string]any{"op": "get"}},
		{"set without key", map[string]any{"op": "set", "value": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			err = c.conn.Invoke(ctx, doMethod, in, new(structpb.Struct))
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestService_RoundTripNoListKeys(t *testing.T) {
	c := startService(t, newRouter(t))

	resp, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, router.None(), resp)
}

func TestFile_Registered(t *testing.T) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	require.NoError(t, err)

	svc, ok := d.(protoreflect.ServiceDescriptor)
	require.True(t, ok, "%s is a %T", ServiceName, d)
	assert.Equal(t, fileName, svc.ParentFile().Path())

	do := svc.Methods().ByName("Do")
	require.NotNil(t, do)
	assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), do.Input().FullName())
	assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), do.Output().FullName())
}

func TestService_Reflection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := startService(t, newRouter(t))

	stream, err := reflectionpb.NewServerReflectionClient(c.conn).ServerReflectionInfo(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: ServiceName,
		},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	var names []string
	for _, raw := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
		fdp := new(descriptorpb.FileDescriptorProto)
		require.NoError(t, proto.Unmarshal(raw, fdp))
		names = append(names, fdp.GetName())
		if fdp.GetName() == fileName {
			require.Len(t, fdp.GetService(), 1)
			assert.Equal(t, "Router", fdp.GetService()[0].GetName())
		}
	}
	assert.Contains(t, names, fileName)
}
