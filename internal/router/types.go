package router

import "fmt"

// Error messages surfaced in Err responses.
const (
	ErrShardNotFound = "storage/shard not found"
	ErrUnexpected    = "unexpected response"
	ErrUnknownOp     = "unknown request"
)

// Op identifies a client request.
type Op int

const (
	OpGet Op = iota
	OpSet
	OpDelete
	OpList
)

// String returns the lower-case op name.
func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpList:
		return "list"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Request is a client-level request.
type Request struct {
	Op    Op
	Key   string
	Value string
}

// Get builds a Get request.
func Get(key string) Request { return Request{Op: OpGet, Key: key} }

// Set builds a Set request.
func Set(key, value string) Request { return Request{Op: OpSet, Key: key, Value: value} }

// Delete builds a Delete request.
func Delete(key string) Request { return Request{Op: OpDelete, Key: key} }

// List builds a List request.
func List() Request { return Request{Op: OpList} }

// Kind is the variant of a Response.
type Kind int

const (
	KindValue Kind = iota
	KindList
	KindNone
	KindOK
	KindBusy
	KindErr
)

// String returns the lower-case kind name, used as a metric label.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindList:
		return "list"
	case KindNone:
		return "none"
	case KindOK:
		return "ok"
	case KindBusy:
		return "busy"
	case KindErr:
		return "err"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Response is the client-visible outcome of a Request.
type Response struct {
	Kind  Kind
	Value string
	Keys  []string
	Err   string
	// Shard names the shard whose mailbox was full for a Busy response.
	// It is empty when the router itself was at capacity.
	Shard string
}

// Value builds a found-value response.
func Value(v string) Response { return Response{Kind: KindValue, Value: v} }

// Keys builds a list response.
func Keys(keys []string) Response { return Response{Kind: KindList, Keys: keys} }

// None builds a not-found response.
func None() Response { return Response{Kind: KindNone} }

// OK builds a success response.
func OK() Response { return Response{Kind: KindOK} }

// Busy builds a backpressure response.
func Busy(shard string) Response { return Response{Kind: KindBusy, Shard: shard} }

// Err builds an error response.
func Err(msg string) Response { return Response{Kind: KindErr, Err: msg} }
