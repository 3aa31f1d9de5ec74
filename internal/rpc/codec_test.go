package rpc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"kvshard/internal/router"
)

func TestEncodeRequest_Fields(t *testing.T) {
	tests := []struct {
		name string
		req  router.Request
		want map[string]any
	}{
		{"get", router.Get("k"), map[string]any{"op": "get", "key": "k"}},
		{"set", router.Set("k", ""), map[string]any{"op": "set", "key": "k", "value": ""}},
		{"delete", router.Delete("k"), map[string]any{"op": "delete", "key": "k"}},
		{"list", router.List(), map[string]any{"op": "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeRequest(tt.req).AsMap()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("EncodeRequest() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeResponse_UnknownKind(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"kind": "maybe"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeResponse(s); err == nil {
		t.Error("DecodeResponse() accepted an unknown kind")
	}
}

func TestEncodeResponse_List(t *testing.T) {
	got := EncodeResponse(router.Keys([]string{"a", "b"})).AsMap()
	want := map[string]any{"kind": "list", "keys": []any{"a", "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EncodeResponse() mismatch (-want +got):\n%s", diff)
	}

	resp, err := DecodeResponse(EncodeResponse(router.Keys([]string{"a", "b"})))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(router.Keys([]string{"a", "b"}), resp); diff != "" {
		t.Errorf("DecodeResponse() mismatch (-want +got):\n%s", diff)
	}
}
