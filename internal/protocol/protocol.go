// Package protocol maps the line-oriented client protocol onto router
// requests and responses.
//
//	GET <key>
//	SET <key> <value...>
//	DELETE <key>        (alias DEL)
//	LIST
//
// Verbs are case-insensitive. A SET value is the rest of the line after the
// key and may contain spaces.
package protocol

import (
	"strings"

	"github.com/cockroachdb/errors"

	"kvshard/internal/router"
)

// ErrSyntax is returned for lines that are not a valid command.
var ErrSyntax = errors.New("syntax error")

// Replies for responses without a payload.
const (
	ReplyOK   = "OK"
	ReplyNone = "NULL"
	ReplyBusy = "BUSY"
)

// ParseLine parses one command line.
func ParseLine(line string) (router.Request, error) {
	line = strings.TrimRight(line, "\r\n")
	verb, rest, _ := cut(strings.TrimLeft(line, " \t"))
	if verb == "" {
		return router.Request{}, errors.Wrap(ErrSyntax, "empty command")
	}

	switch strings.ToUpper(verb) {
	case "GET":
		key, err := singleArg(verb, rest)
		if err != nil {
			return router.Request{}, err
		}
		return router.Get(key), nil
	case "SET":
		key, value, ok := cut(strings.TrimLeft(rest, " \t"))
		if !ok || key == "" {
			return router.Request{}, errors.Wrapf(ErrSyntax, "usage: SET <key> <value>")
		}
		return router.Set(key, value), nil
	case "DELETE", "DEL":
		key, err := singleArg(verb, rest)
		if err != nil {
			return router.Request{}, err
		}
		return router.Delete(key), nil
	case "LIST":
		if strings.TrimSpace(rest) != "" {
			return router.Request{}, errors.Wrap(ErrSyntax, "usage: LIST")
		}
		return router.List(), nil
	default:
		return router.Request{}, errors.Wrapf(ErrSyntax, "unknown command %q", verb)
	}
}

// cut splits s around its first space or tab.
func cut(s string) (before, after string, found bool) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

func singleArg(verb, rest string) (string, error) {
	fields := strings.Fields(rest)
	if len(fields) != 1 {
		return "", errors.Wrapf(ErrSyntax, "usage: %s <key>", strings.ToUpper(verb))
	}
	return fields[0], nil
}

// Render formats a response as a single reply line without the trailing
// newline.
func Render(resp router.Response) string {
	switch resp.Kind {
	case router.KindValue:
		return resp.Value
	case router.KindList:
		return strings.Join(resp.Keys, " ")
	case router.KindNone:
		return ReplyNone
	case router.KindOK:
		return ReplyOK
	case router.KindBusy:
		return ReplyBusy
	case router.KindErr:
		return RenderError(resp.Err)
	default:
		return RenderError("unknown response")
	}
}

// RenderError formats an error reply.
func RenderError(msg string) string {
	return "ERR " + msg
}
