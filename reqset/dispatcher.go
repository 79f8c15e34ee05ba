// Package reqset implements the active-request registry: Request,
// RequestOnConn (one handler goroutine per connection a request runs
// on), RequestOnConnSet (the list-or-map union covering single/multi/
// all-node fan-out), and RequestSet, the bounded pool tying them
// together and routing inbound frames from a connection.ConnectionSet.
package reqset

import (
	"context"
	"fmt"
	"sync"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/atomicx"
	"github.com/sabouaram/nodelink/connection"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/notify"
	"github.com/sabouaram/nodelink/rpcerr"
)

// HandlerFunc is application code driving one RequestOnConn. It must
// return when ctx is done. A non-nil return value is surfaced to the
// owning Request's FinishedNotifier, classified by its rpcerr.Kind.
type HandlerFunc func(ctx context.Context, disp *EventDispatcher) error

// ResumedError is returned by EventDispatcher.Receive and
// EventDispatcherAllNodes.WaitForReconnect when the call was woken by
// RequestController.ResumeSuspendedHandlers rather than by inbound data
// or a reconnect. Code carries the caller-chosen resume value through to
// the handler.
type ResumedError struct {
	Code int32
}

func (e *ResumedError) Error() string {
	return fmt.Sprintf("reqset: handler resumed with code %d", e.Code)
}

// EventDispatcher funnels inbound frame bodies to a handler and outbound
// bodies to the underlying Connection, modeling the spec's
// stackful-coroutine request handler as a goroutine blocking on channel
// operations instead of a true coroutine yield.
type EventDispatcher struct {
	id    frame.RequestID
	addr  addrport.AddrPort
	conn  *connection.Connection
	inbox chan []byte
	// resume delivers a caller-chosen code from
	// RequestController.ResumeSuspendedHandlers to whichever of Receive or
	// WaitForReconnect the handler is currently parked in.
	resume chan int32
	// roc is the RequestOnConn this dispatcher was created for; it is the
	// handle UseNode and RoundRobin use to rebind the handler to a
	// different Connection.
	roc *RequestOnConn

	// rs, req and handler are set only for multi-node/all-nodes requests,
	// where StartOnNewConnection needs them to spawn a sibling
	// RequestOnConn. They are nil for single-node and round-robin
	// dispatchers.
	rs      *RequestSet
	req     *Request
	handler HandlerFunc

	working atomicx.Value[any]

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newEventDispatcher(id frame.RequestID, addr addrport.AddrPort, conn *connection.Connection) *EventDispatcher {
	return &EventDispatcher{
		id:     id,
		addr:   addr,
		conn:   conn,
		inbox:  make(chan []byte, 64),
		resume: make(chan int32, 1),
	}
}

// attach records the owning RequestSet/Request/start handler, enabling
// StartOnNewConnection. Only multi-node and all-nodes starts call this.
func (d *EventDispatcher) attach(rs *RequestSet, req *Request, handler HandlerFunc) {
	d.rs = rs
	d.req = req
	d.handler = handler
}

// Addr returns the remote address this dispatcher's handler runs
// against.
func (d *EventDispatcher) Addr() addrport.AddrPort { return d.addr }

// RequestID returns the request this dispatcher belongs to.
func (d *EventDispatcher) RequestID() frame.RequestID { return d.id }

// WorkingData returns the value last stored with SetWorkingData, or nil.
// RequestController.AccessRequestWorkingData reads this per RequestOnConn
// of a request.
func (d *EventDispatcher) WorkingData() any { return d.working.Load() }

// SetWorkingData stashes an arbitrary handler-owned value that a
// controller can later read via AccessRequestWorkingData, without the
// handler needing to share a channel or mutex with the calling code.
func (d *EventDispatcher) SetWorkingData(v any) { d.working.Store(v) }

// Send frames body with the request's leading RequestID and writes it to
// the connection.
func (d *EventDispatcher) Send(body []byte) error {
	framed := make([]byte, frame.RequestIDSize+len(body))
	frame.PutLeadingRequestID(framed, d.id)
	copy(framed[frame.RequestIDSize:], body)
	return d.conn.Send(frame.Request, framed)
}

// Receive blocks until a frame body arrives for this request, a
// controller resumes the suspended call, or ctx is done. The returned
// slice excludes the leading RequestID, already stripped by the router.
func (d *EventDispatcher) Receive(ctx context.Context) ([]byte, error) {
	select {
	case body, ok := <-d.inbox:
		if !ok {
			return nil, rpcerr.New(rpcerr.Abort, "reqset: request aborted")
		}
		return body, nil
	case code := <-d.resume:
		return nil, &ResumedError{Code: code}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendReceive sends body and waits for the next inbound frame.
func (d *EventDispatcher) SendReceive(ctx context.Context, body []byte) ([]byte, error) {
	if err := d.Send(body); err != nil {
		return nil, err
	}
	return d.Receive(ctx)
}

// UseNode rebinds this dispatcher's RequestOnConn to a different
// Connection, giving a multi-node handler a fresh EventDispatcher scoped
// to conn. The previous dispatcher (and its inbox) is discarded; callers
// must switch to the returned value for all further calls.
func (d *EventDispatcher) UseNode(conn *connection.Connection) *EventDispatcher {
	d.roc.useNode(conn)
	return d.roc.disp
}

// RoundRobin returns an iterator over set's Connected members, letting a
// round-robin handler retry its operation against a different candidate
// instead of failing after its initial pick.
func (d *EventDispatcher) RoundRobin(set *connection.ConnectionSet) *RoundRobinIterator {
	return &RoundRobinIterator{roc: d.roc, set: set}
}

// StartOnNewConnection spawns another RequestOnConn for this dispatcher's
// request, running handler (or, if nil, the handler this request was
// started with) against conn in a fresh goroutine. It is the multi-node
// primitive for fanning an already-running request out onto an
// additional node; it is a no-op for single-node and round-robin
// dispatchers, which were never attached to a RequestSet/Request.
func (d *EventDispatcher) StartOnNewConnection(ctx context.Context, conn *connection.Connection, handler HandlerFunc) {
	if d.rs == nil || d.req == nil {
		return
	}
	if handler == nil {
		handler = d.handler
	}
	d.rs.joinMultiNode(ctx, d.req, conn, handler)
}

func (d *EventDispatcher) deliver(body []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.inbox <- body:
		return true
	default:
		return false
	}
}

// wake delivers code to a handler parked in Receive or WaitForReconnect.
// The send is non-blocking: a resume that arrives while a previous one is
// still unconsumed is coalesced, matching the cooperative-resume model
// where only one outstanding resume is meaningful at a time.
func (d *EventDispatcher) wake(code int32) {
	select {
	case d.resume <- code:
	default:
	}
}

func (d *EventDispatcher) close() {
	d.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = true
		close(d.inbox)
	})
}

// EventDispatcherAllNodes extends EventDispatcher with WaitForReconnect,
// the suspension point all-nodes handlers use to ride out a connection
// drop instead of exiting. Obtain one via EventDispatcher.AllNodes.
type EventDispatcherAllNodes struct {
	*EventDispatcher
}

// AllNodes returns an EventDispatcherAllNodes view of d, adding
// WaitForReconnect. Meaningful for all-nodes handlers, but available on
// any dispatcher since every EventDispatcher is bound to a Connection.
func (d *EventDispatcher) AllNodes() *EventDispatcherAllNodes {
	return &EventDispatcherAllNodes{EventDispatcher: d}
}

const (
	// ReconnectAlready is returned by WaitForReconnect when the
	// connection was already Connected; no suspension occurred.
	ReconnectAlready int32 = 0
	// Reconnected is returned by WaitForReconnect when the task woke up
	// because the connection transitioned to Connected.
	Reconnected int32 = 1
)

// WaitForReconnect suspends the caller until the dispatcher's Connection
// becomes Connected, returning Reconnected and a nil error, or until
// RequestController.ResumeSuspendedHandlers wakes it with a caller-chosen
// code, in which case it returns that code and a *ResumedError so the
// caller can distinguish an explicit resume from an actual reconnect.
func (d *EventDispatcherAllNodes) WaitForReconnect(ctx context.Context) (int32, error) {
	reconnected := make(chan struct{}, 1)
	status := d.conn.RegisterForConnectedNotification(uint64(d.id), func(notify.Notifier) {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})
	if status == 0 {
		return ReconnectAlready, nil
	}
	defer d.conn.UnregisterForConnectedNotification(uint64(d.id))

	select {
	case <-reconnected:
		return Reconnected, nil
	case code := <-d.resume:
		return code, &ResumedError{Code: code}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
