// Package rpc exposes the router over gRPC as the kvshard.v1.Router service.
//
// The service has a single unary method, Do, whose request and response are
// google.protobuf.Struct messages:
//
//	request:  {op: "get"|"set"|"delete"|"list", key, value}
//	response: {kind: "value"|"list"|"none"|"ok"|"busy"|"err", value, keys, error, shard}
//
// Using well-known types keeps the wire schema in this package without a
// code generation step. The file descriptor for the service is built at init
// and registered globally, so server reflection can describe it.
package rpc
