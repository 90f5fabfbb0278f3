// Package protocol implements the line-oriented request/response frames
// spoken between kvs-client and kvs-server. A request is one CRLF-terminated
// line with space-separated fields; the response is one line starting with
// '+' (success, possibly empty payload) or '-' (failure, carrying the error
// kind name). Keys therefore cannot contain whitespace and values cannot
// contain CRLF; callers sanitize.
package protocol

import (
	"strings"

	"github.com/nicolagi/kvs/internal/kverr"
)

type Op uint8

const (
	OpGet Op = iota
	OpSet
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpSet:
		return "SET"
	case OpRemove:
		return "REMOVE"
	}
	return "?"
}

type Request struct {
	Op    Op
	Key   string
	Value string
}

// String renders the request in wire form, CRLF included.
func (r Request) String() string {
	if r.Op == OpSet {
		return r.Op.String() + " " + r.Key + " " + r.Value + "\r\n"
	}
	return r.Op.String() + " " + r.Key + "\r\n"
}

// ParseRequest parses one request line. The line splits on ASCII space into
// at most 3 fields; fewer fields than the verb requires, an empty key, or an
// unknown verb fail with InvalidArgument.
func ParseRequest(line string) (Request, error) {
	fields := strings.SplitN(strings.TrimSuffix(line, "\r\n"), " ", 3)
	switch fields[0] {
	case "GET":
		if len(fields) < 2 || fields[1] == "" {
			return Request{}, kverr.Newf(kverr.InvalidArgument, "GET wants a key")
		}
		return Request{Op: OpGet, Key: fields[1]}, nil
	case "SET":
		if len(fields) < 3 || fields[1] == "" {
			return Request{}, kverr.Newf(kverr.InvalidArgument, "SET wants a key and a value")
		}
		return Request{Op: OpSet, Key: fields[1], Value: fields[2]}, nil
	case "REMOVE":
		if len(fields) < 2 || fields[1] == "" {
			return Request{}, kverr.Newf(kverr.InvalidArgument, "REMOVE wants a key")
		}
		return Request{Op: OpRemove, Key: fields[1]}, nil
	}
	return Request{}, kverr.Newf(kverr.InvalidArgument, "unknown verb %q", fields[0])
}

// Response is one reply line. Error selects the '-' form, in which case Text
// holds an error kind name; otherwise Text is the (possibly empty) value.
type Response struct {
	Error bool
	Text  string
}

// OK builds a success response carrying a value (empty for void operations).
func OK(value string) Response {
	return Response{Text: value}
}

// Fail builds a failure response carrying the kind of err.
func Fail(err error) Response {
	return Response{Error: true, Text: kverr.KindOf(err).String()}
}

// String renders the response in wire form, CRLF included.
func (r Response) String() string {
	if r.Error {
		return "-" + r.Text + "\r\n"
	}
	return "+" + r.Text + "\r\n"
}

// ParseResponse parses one response line. A line not starting with '+' or
// '-' fails with WrongFormat.
func ParseResponse(line string) (Response, error) {
	s := strings.TrimSuffix(line, "\r\n")
	if s == "" {
		return Response{}, kverr.Newf(kverr.WrongFormat, "empty response line")
	}
	switch s[0] {
	case '+':
		return Response{Text: s[1:]}, nil
	case '-':
		return Response{Error: true, Text: s[1:]}, nil
	}
	return Response{}, kverr.Newf(kverr.WrongFormat, "response line %q", s)
}
