// Package notify defines the tagged union of events a Connection or
// request handler delivers to application callbacks. Notifier is sealed:
// the only implementations are the concrete types declared in this
// package, so a switch over Notifier can be exhaustive.
package notify

import (
	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/rpcerr"
)

// Notifier is implemented by every event this package delivers. The
// unexported marker method prevents types outside this package from
// satisfying the interface.
type Notifier interface {
	// Kind returns a short, stable, label-safe name for the notification's
	// concrete type, used as a metrics label and in log fields.
	Kind() string

	isNotification()
}

// Func is the callback signature handlers and connections use to deliver
// a Notifier to application code.
type Func func(Notifier)

// Connected reports that a Connection finished its handshake and is now
// eligible to carry requests.
type Connected struct {
	Addr addrport.AddrPort
}

func (Connected) Kind() string { return "connected" }
func (Connected) isNotification() {}

// ErrorWhileConnecting reports that a dial or handshake attempt failed.
// The Connection will retry per its backoff.Timer; this notification is
// informational only.
type ErrorWhileConnecting struct {
	Addr addrport.AddrPort
	Err  error
}

func (ErrorWhileConnecting) Kind() string { return "error_while_connecting" }
func (ErrorWhileConnecting) isNotification() {}

// NodeDisconnected reports that a previously Connected Connection dropped,
// affecting every RequestOnConn routed through it.
type NodeDisconnected struct {
	RequestID frame.RequestID
	Addr      addrport.AddrPort
	Err       error
}

func (NodeDisconnected) Kind() string { return "node_disconnected" }
func (NodeDisconnected) isNotification() {}

// NodeError reports that a node answered a request with an error status
// (a handler error of kind rpcerr.NodeError). A lost connection is
// reported as NodeDisconnected instead.
type NodeError struct {
	RequestID frame.RequestID
	Addr      addrport.AddrPort
	Err       error
}

func (NodeError) Kind() string { return "node_error" }
func (NodeError) isNotification() {}

// Unsupported reports that the remote rejected a request type it does not
// implement.
type Unsupported struct {
	RequestID   frame.RequestID
	Addr        addrport.AddrPort
	ErrorKind   rpcerr.Kind
}

func (Unsupported) Kind() string { return "unsupported" }
func (Unsupported) isNotification() {}

// Succeeded reports that a request's handler reached its normal terminal
// state across every connection it was started on.
type Succeeded struct {
	RequestID frame.RequestID
}

func (Succeeded) Kind() string { return "succeeded" }
func (Succeeded) isNotification() {}

// Error reports that a request's handler terminated abnormally.
type Error struct {
	RequestID frame.RequestID
	Err       error
}

func (Error) Kind() string { return "error" }
func (Error) isNotification() {}

// RequestData carries an application-level payload received for a
// request, prior to any handler-specific decoding.
type RequestData struct {
	RequestID frame.RequestID
	Addr      addrport.AddrPort
	Bytes     []byte
}

func (RequestData) Kind() string { return "request_data" }
func (RequestData) isNotification() {}

// Extension wraps a handler-defined notification so request-specific
// code can ride the same Func callback without this package knowing its
// shape.
type Extension struct {
	RequestID frame.RequestID
	Value     any
}

func (Extension) Kind() string { return "extension" }
func (Extension) isNotification() {}
