// Package kverr classifies failures of the store, the server and the client
// into the kinds that cross the wire. The wire encoding of an error is its
// kind name only; any detail or cause stays on the side that produced it.
package kverr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	// IO covers filesystem and socket errors during normal operation.
	IO Kind = iota
	// InvalidArgument means a request line failed to parse or lacked fields.
	InvalidArgument
	// KeyNotFound means a remove or get addressed a key absent from the index.
	KeyNotFound
	// Serde means a log record failed to encode or decode.
	Serde
	// UnknownCommand means the peer sent something we cannot interpret.
	UnknownCommand
	// WrongFormat means the client received an ill-formed response line.
	WrongFormat
	// Index means the in-memory index points at a record that is not a Set
	// for that key, or past the end of the log. Indicates corruption.
	Index
	// Engine is a failure from an alternate storage backend.
	Engine
	// Encoding is a bytes-to-UTF-8 failure from an alternate backend.
	Encoding
	// Parse means a wire token could not be mapped back to a kind.
	Parse
)

var kindNames = [...]string{
	IO:              "IO",
	InvalidArgument: "InvalidArgument",
	KeyNotFound:     "KeyNotFound",
	Serde:           "Serde",
	UnknownCommand:  "UnknownCommand",
	WrongFormat:     "WrongFormat",
	Index:           "Index",
	Engine:          "Engine",
	Encoding:        "Encoding",
	Parse:           "Parse",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a wire token back to its kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, &Error{Kind: Parse, Detail: s}
}

// Error carries a kind across layers. Detail and Cause are for logs and
// operators; they are truncated to the kind name for transport.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Cause != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Detail, e.Cause)
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	case e.Cause != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns a bare error of the given kind.
func New(k Kind) error {
	return &Error{Kind: k}
}

// Newf returns an error of the given kind with a formatted detail.
func Newf(k Kind, format string, a ...interface{}) error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, a...)}
}

// Wrap classifies err under the given kind. Returns nil if err is nil.
func Wrap(err error, k Kind) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Cause: err}
}

// Wrapf classifies err under the given kind with a formatted detail.
func Wrapf(err error, k Kind, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Detail: fmt.Sprintf(format, a...), Cause: err}
}

// KindOf returns the classified kind of err. Unclassified errors are IO:
// by the time an error reaches a response writer, anything not explicitly
// classified came from a file or a socket.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return IO
}

// IsKind reports whether err is classified under k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
