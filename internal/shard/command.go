package shard

import "fmt"

// Op identifies a shard command.
type Op int

const (
	OpGet Op = iota
	OpSet
	OpDelete
	OpList
)

// String returns the lower-case name of the op, used as a metric label.
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

// Command is a single request to a shard owner.
type Command struct {
	Op    Op
	Key   string
	Value string
}

// Get builds a Get command.
func Get(key string) Command { return Command{Op: OpGet, Key: key} }

// Set builds a Set command.
func Set(key, value string) Command { return Command{Op: OpSet, Key: key, Value: value} }

// Delete builds a Delete command.
func Delete(key string) Command { return Command{Op: OpDelete, Key: key} }

// List builds a List command.
func List() Command { return Command{Op: OpList} }

// Kind is the variant of a Response.
type Kind int

const (
	// KindValue answers Get; Found reports presence.
	KindValue Kind = iota
	// KindList answers List with Keys.
	KindList
	// KindOK answers Set and Delete.
	KindOK
	// KindBusy means the mailbox was full and the command was not accepted.
	KindBusy
	// KindErr carries a communication failure in Err.
	KindErr
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindList:
		return "list"
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

// Response is the single reply to a Command.
type Response struct {
	Kind  Kind
	Value string
	Found bool
	Keys  []string
	Err   string
}

// Value builds a Get reply.
func Value(v string, found bool) Response { return Response{Kind: KindValue, Value: v, Found: found} }

// Keys builds a List reply.
func Keys(keys []string) Response { return Response{Kind: KindList, Keys: keys} }

// OK builds a Set/Delete reply.
func OK() Response { return Response{Kind: KindOK} }

// Busy builds a backpressure reply.
func Busy() Response { return Response{Kind: KindBusy} }

// Err builds an error reply.
func Err(msg string) Response { return Response{Kind: KindErr, Err: msg} }
