package rpc

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"kvshard/internal/router"
)

var ops = []router.Op{router.OpGet, router.OpSet, router.OpDelete, router.OpList}

var kinds = []router.Kind{
	router.KindValue, router.KindList, router.KindNone,
	router.KindOK, router.KindBusy, router.KindErr,
}

// EncodeRequest converts a router request to its wire form.
func EncodeRequest(req router.Request) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"op": structpb.NewStringValue(req.Op.String()),
	}
	if req.Key != "" {
		fields["key"] = structpb.NewStringValue(req.Key)
	}
	if req.Op == router.OpSet {
		fields["value"] = structpb.NewStringValue(req.Value)
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeRequest converts the wire form back to a router request.
func DecodeRequest(s *structpb.Struct) (router.Request, error) {
	name := stringField(s, "op")
	for _, op := range ops {
		if op.String() != name {
			continue
		}
		req := router.Request{
			Op:    op,
			Key:   stringField(s, "key"),
			Value: stringField(s, "value"),
		}
		if op != router.OpList && req.Key == "" {
			return router.Request{}, errors.Newf("%s requires a key", op)
		}
		return req, nil
	}
	return router.Request{}, errors.Newf("unknown op %q", name)
}

// EncodeResponse converts a router response to its wire form.
func EncodeResponse(resp router.Response) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"kind": structpb.NewStringValue(resp.Kind.String()),
	}
	switch resp.Kind {
	case router.KindValue:
		fields["value"] = structpb.NewStringValue(resp.Value)
	case router.KindList:
		vals := make([]*structpb.Value, 0, len(resp.Keys))
		for _, k := range resp.Keys {
			vals = append(vals, structpb.NewStringValue(k))
		}
		fields["keys"] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	case router.KindBusy:
		if resp.Shard != "" {
			fields["shard"] = structpb.NewStringValue(resp.Shard)
		}
	case router.KindErr:
		fields["error"] = structpb.NewStringValue(resp.Err)
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeResponse converts the wire form back to a router response.
func DecodeResponse(s *structpb.Struct) (router.Response, error) {
	name := stringField(s, "kind")
	for _, kind := range kinds {
		if kind.String() != name {
			continue
		}
		resp := router.Response{
			Kind:  kind,
			Value: stringField(s, "value"),
			Err:   stringField(s, "error"),
			Shard: stringField(s, "shard"),
		}
		if kind == router.KindList {
			for _, v := range s.GetFields()["keys"].GetListValue().GetValues() {
				resp.Keys = append(resp.Keys, v.GetStringValue())
			}
		}
		return resp, nil
	}
	return router.Response{}, errors.Newf("unknown response kind %q", name)
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}
