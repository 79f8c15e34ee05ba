package reqset

import (
	"context"
	"sync"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/connection"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/rpcerr"
)

// rocCtxKey tags a handler's context with the RequestOnConn running it, so
// RequestSet.AbortRequest can detect and reject a call made from inside
// one of the request's own handler goroutines.
type rocCtxKey struct{}

// RequestOnConn runs one HandlerFunc instance against one Connection, on
// behalf of a single Request. A Request started with StartMultiNode or
// StartAllNodes owns several RequestOnConn instances, one per connection.
type RequestOnConn struct {
	id     frame.RequestID
	addr   addrport.AddrPort
	conn   *connection.Connection
	disp   *EventDispatcher
	cancel context.CancelCauseFunc

	doneOnce sync.Once
	done     chan struct{}
}

func newRequestOnConn(id frame.RequestID, conn *connection.Connection) *RequestOnConn {
	r := &RequestOnConn{
		id:   id,
		addr: conn.Addr(),
		conn: conn,
		done: make(chan struct{}),
	}
	r.disp = newEventDispatcher(id, conn.Addr(), conn)
	r.disp.roc = r
	return r
}

// reset clears a pooled RequestOnConn for reuse with a new request/conn
// pair.
func (r *RequestOnConn) reset(id frame.RequestID, conn *connection.Connection) {
	r.id = id
	r.addr = conn.Addr()
	r.conn = conn
	r.disp = newEventDispatcher(id, conn.Addr(), conn)
	r.disp.roc = r
	r.cancel = nil
	r.doneOnce = sync.Once{}
	r.done = make(chan struct{})
}

// useNode rebinds r to a different Connection, discarding its current
// EventDispatcher (and inbox) in favour of a fresh one scoped to conn.
// It carries over any RequestSet/Request/handler attachment so
// EventDispatcher.StartOnNewConnection keeps working after the rebind.
func (r *RequestOnConn) useNode(conn *connection.Connection) {
	prev := r.disp
	r.addr = conn.Addr()
	r.conn = conn
	r.disp = newEventDispatcher(r.id, conn.Addr(), conn)
	r.disp.roc = r
	r.disp.attach(prev.rs, prev.req, prev.handler)
}

// Addr returns the connection's remote address.
func (r *RequestOnConn) Addr() addrport.AddrPort { return r.addr }

// WorkingData returns the opaque value the handler last stored via its
// EventDispatcher.SetWorkingData, or nil.
func (r *RequestOnConn) WorkingData() any { return r.disp.WorkingData() }

// Resume wakes the handler if it is currently parked in
// EventDispatcher.Receive or EventDispatcherAllNodes.WaitForReconnect,
// delivering code to it.
func (r *RequestOnConn) Resume(code int32) { r.disp.wake(code) }

// run drives handler to completion in the caller's goroutine, reporting
// the outcome through onFinished exactly once.
func (r *RequestOnConn) run(ctx context.Context, handler HandlerFunc, onFinished func(addrport.AddrPort, error)) {
	runCtx, cancel := context.WithCancelCause(ctx)
	runCtx = context.WithValue(runCtx, rocCtxKey{}, r)
	r.cancel = cancel
	defer cancel(nil)

	err := handler(runCtx, r.disp)
	r.disp.close()

	r.doneOnce.Do(func() { close(r.done) })
	if onFinished != nil {
		onFinished(r.addr, err)
	}
}

// Abort cancels the handler's context with reason, causing any blocking
// Receive/SendReceive call to return promptly.
func (r *RequestOnConn) Abort(reason error) {
	if r.cancel != nil {
		if reason == nil {
			reason = rpcerr.New(rpcerr.Abort, "reqset: aborted")
		}
		r.cancel(reason)
	}
}

// Deliver routes an inbound frame body to the handler's Receive call. It
// returns false if the handler's inbox is full or already closed.
func (r *RequestOnConn) Deliver(body []byte) bool {
	return r.disp.deliver(body)
}

// Wait returns a channel that is closed once the handler has returned.
func (r *RequestOnConn) Wait() <-chan struct{} { return r.done }
