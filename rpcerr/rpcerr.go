/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package rpcerr provides the error-kind taxonomy used across the runtime:
// a small numeric Kind (modeled on the teacher's errors.CodeError), a chained
// Error type supporting errors.Is/errors.As, and constructors per kind.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind classifies the source and recovery path of an error, per the table
// in the specification's error handling design.
type Kind uint16

const (
	// UnknownKind is returned for errors with no specific classification.
	UnknownKind Kind = 0

	// IOError covers socket/poll failures. Local recovery: reconnect with
	// backoff.
	IOError Kind = iota
	// ProtocolError covers bad headers or unexpected message types. No
	// local recovery; the connection is shut down.
	ProtocolError
	// AuthError covers handshake failures. No local recovery beyond
	// retrying the connection.
	AuthError
	// RequestNotSupported is returned by a node status code for an
	// unrecognized request type.
	RequestNotSupported
	// VersionNotSupported is returned by a node status code for an
	// unsupported protocol version.
	VersionNotSupported
	// NodeError wraps a node-side status code indicating request failure.
	NodeError
	// Timeout marks a request aborted by its own deadline.
	Timeout
	// NoMoreRequests is returned synchronously when the active-request
	// pool is exhausted.
	NoMoreRequests
	// Abort marks a request cancelled by explicit user action.
	Abort
)

var kindNames = map[Kind]string{
	UnknownKind:         "unknown",
	IOError:             "io_error",
	ProtocolError:       "protocol_error",
	AuthError:           "auth_error",
	RequestNotSupported: "request_not_supported",
	VersionNotSupported: "version_not_supported",
	NodeError:           "node_error",
	Timeout:             "timeout",
	NoMoreRequests:      "no_more_requests",
	Abort:               "abort",
}

// String returns the lower_snake_case name of the kind, used in log
// fields and metric labels.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Error is the concrete error type carried through the runtime. It chains
// to an optional parent via Unwrap, so errors.Is/errors.As work against
// both the Kind and any wrapped sentinel.
type Error struct {
	kind   Kind
	msg    string
	parent error
}

// New creates an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap creates an Error of the given kind, chaining to parent.
func Wrap(kind Kind, msg string, parent error) *Error {
	return &Error{kind: kind, msg: msg, parent: parent}
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	if e == nil {
		return UnknownKind
	}
	return e.kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.parent != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.parent)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the parent error for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Is reports whether target is an *Error with the same Kind, enabling
// errors.Is(err, rpcerr.New(rpcerr.Timeout, "")) style checks against a
// sentinel built purely to carry a Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.kind == e.kind
	}
	return false
}

// IsKind is a convenience check that does not require constructing a
// sentinel Error.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}
