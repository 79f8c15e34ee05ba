package reqset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/atomicx"
	"github.com/sabouaram/nodelink/connection"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/logx"
	"github.com/sabouaram/nodelink/notify"
	"github.com/sabouaram/nodelink/rpcerr"
	"github.com/sabouaram/nodelink/stats"
)

// MaxRequests bounds how many requests a RequestSet tracks concurrently.
const MaxRequests = 5000

// Request is one logical operation, possibly fanned out across several
// connections via its RequestOnConnSet.
type Request struct {
	ID               frame.RequestID
	Type             frame.Type
	Context          []byte
	FinishedNotifier notify.Func
	StartTime        time.Time

	rocs    *RequestOnConnSet
	remain  atomic.Int32
	blob    atomicx.Value[any]
	timeout *time.Timer
	baseCtx context.Context
	handler HandlerFunc

	// lastFailure records the most recent member error and the address it
	// came from, for a multi-node or all-nodes request's final
	// notification once remain reaches 0.
	lastFailure atomicx.Value[*memberOutcome]
}

// ContextBlob returns the last value stored with SetContextBlob, or nil.
func (r *Request) ContextBlob() any { return r.blob.Load() }

// SetContextBlob stashes an arbitrary handler-owned value alongside the
// request, used by helpers like suspend.SharedWorking to keep state
// reachable from outside the handler goroutine.
func (r *Request) SetContextBlob(v any) { r.blob.Store(v) }

// RequestOnConnSet returns the set of per-connection handler instances
// backing this request.
func (r *Request) RequestOnConnSet() *RequestOnConnSet { return r.rocs }

// RequestSet is the bounded, shared registry of in-flight Requests. It
// implements connection.FrameRouter so it can be wired directly as the
// router for a connection.ConnectionSet.
type RequestSet struct {
	requests *atomicx.MapTyped[frame.RequestID, *Request]
	count    atomic.Int32
	nextID   atomic.Uint64

	logger  *logx.Logger
	metrics *stats.Registry

	pool sync.Pool
}

// Config configures a RequestSet at construction time.
type Config struct {
	Logger  *logx.Logger
	Metrics *stats.Registry
}

// NewRequestSet constructs an empty RequestSet.
func NewRequestSet(cfg Config) *RequestSet {
	logger := cfg.Logger
	if logger == nil {
		logger = logx.Noop()
	}
	rs := &RequestSet{
		requests: atomicx.NewMapTyped[frame.RequestID, *Request](),
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	rs.pool.New = func() any { return &RequestOnConn{} }
	return rs
}

// nextRequestID returns the next monotonic, non-zero RequestID for this
// instance. IDs are never reused while a request with that ID is active.
func (rs *RequestSet) nextRequestID() frame.RequestID {
	for {
		v := rs.nextID.Add(1)
		if v != 0 {
			return frame.RequestID(v)
		}
	}
}

func (rs *RequestSet) acquireROC(id frame.RequestID, conn *connection.Connection) *RequestOnConn {
	r := rs.pool.Get().(*RequestOnConn)
	r.reset(id, conn)
	return r
}

func (rs *RequestSet) releaseROC(r *RequestOnConn) {
	rs.pool.Put(r)
}

func (rs *RequestSet) reserveSlot() error {
	if rs.count.Add(1) > MaxRequests {
		rs.count.Add(-1)
		return rpcerr.New(rpcerr.NoMoreRequests, "reqset: request pool exhausted")
	}
	return nil
}

func (rs *RequestSet) releaseSlot() { rs.count.Add(-1) }

func (rs *RequestSet) register(req *Request) {
	rs.requests.Store(req.ID, req)
	if rs.metrics != nil {
		rs.metrics.RequestStarted()
	}
}

func (rs *RequestSet) unregister(req *Request) {
	rs.requests.LoadAndDelete(req.ID)
	rs.releaseSlot()
	if rs.metrics != nil {
		rs.metrics.RequestFinished()
		rs.metrics.ObserveRequestLatency(time.Since(req.StartTime))
	}
	if req.timeout != nil {
		req.timeout.Stop()
	}
}

// GetRequest returns the Request for id, if still active.
func (rs *RequestSet) GetRequest(id frame.RequestID) (*Request, bool) {
	return rs.requests.Load(id)
}

// RequestController gives code outside a request's own handler goroutines
// a narrow, safe window onto it: reading its context blob, resuming
// handlers parked in Receive/WaitForReconnect, and visiting each
// RequestOnConn's working data. Obtain one with GetRequestController.
type RequestController struct {
	req *Request
}

// GetRequestController returns a RequestController for id, or false if no
// request with that id is currently active.
func (rs *RequestSet) GetRequestController(id frame.RequestID) (*RequestController, bool) {
	req, ok := rs.requests.Load(id)
	if !ok {
		return nil, false
	}
	return &RequestController{req: req}, true
}

// ContextBlob returns the byte context the request was started with.
func (c *RequestController) ContextBlob() []byte { return c.req.Context }

// ResumeSuspendedHandlers wakes every RequestOnConn of the controlled
// request that is currently parked in EventDispatcher.Receive or
// EventDispatcherAllNodes.WaitForReconnect, delivering code to each. A
// RequestOnConn that is not currently suspended simply ignores it.
func (c *RequestController) ResumeSuspendedHandlers(code int32) {
	for _, r := range c.req.rocs.All() {
		r.Resume(code)
	}
}

// AccessRequestWorkingData invokes visit once per RequestOnConn of the
// controlled request, passing the address it runs against and the value
// last stored through its EventDispatcher.SetWorkingData.
func (c *RequestController) AccessRequestWorkingData(visit func(addr addrport.AddrPort, data any)) {
	for _, r := range c.req.rocs.All() {
		visit(r.Addr(), r.WorkingData())
	}
}

// AbortRequest cancels every RequestOnConn belonging to id. Calling it
// from inside one of the request's own handler goroutines (ctx being, or
// descending from, the context a HandlerFunc of this request was invoked
// with) is forbidden: it is detected and reported as an rpcerr.Abort
// error rather than silently deadlocking or aborting the caller itself.
func (rs *RequestSet) AbortRequest(ctx context.Context, id frame.RequestID, reason error) error {
	req, ok := rs.requests.Load(id)
	if !ok {
		return nil
	}

	if self, ok := ctx.Value(rocCtxKey{}).(*RequestOnConn); ok {
		for _, r := range req.rocs.All() {
			if r == self {
				return rpcerr.New(rpcerr.Abort, "reqset: AbortRequest called from the request's own handler goroutine")
			}
		}
	}

	for _, r := range req.rocs.All() {
		r.Abort(reason)
	}
	return nil
}

// SetRequestTimeout arranges for AbortRequest(id, Timeout) to fire after
// d unless the request finishes first.
func (rs *RequestSet) SetRequestTimeout(id frame.RequestID, d time.Duration) {
	req, ok := rs.requests.Load(id)
	if !ok {
		return
	}
	req.timeout = time.AfterFunc(d, func() {
		_ = rs.AbortRequest(context.Background(), id, rpcerr.New(rpcerr.Timeout, "reqset: request timed out"))
	})
}

// memberOutcome pairs the error a failing RequestOnConn finished with and
// the address it was bound to, so the final notification can be
// classified by rpcerr.Kind and carry the right Addr.
type memberOutcome struct {
	addr addrport.AddrPort
	err  error
}

func (rs *RequestSet) emitFinished(req *Request, addr addrport.AddrPort, err error) {
	n := classifyOutcome(req.ID, addr, err)
	if rs.metrics != nil {
		rs.metrics.ObserveNotification(n)
	}
	if req.FinishedNotifier != nil {
		req.FinishedNotifier(n)
	}
}

// classifyOutcome maps a handler's terminal error to the most specific
// notify.Notifier the error's rpcerr.Kind supports, per the error table
// in the specification's error handling design.
func classifyOutcome(id frame.RequestID, addr addrport.AddrPort, err error) notify.Notifier {
	switch {
	case err == nil:
		return notify.Succeeded{RequestID: id}
	case rpcerr.IsKind(err, rpcerr.RequestNotSupported):
		return notify.Unsupported{RequestID: id, Addr: addr, ErrorKind: rpcerr.RequestNotSupported}
	case rpcerr.IsKind(err, rpcerr.VersionNotSupported):
		return notify.Unsupported{RequestID: id, Addr: addr, ErrorKind: rpcerr.VersionNotSupported}
	case rpcerr.IsKind(err, rpcerr.NodeError):
		return notify.NodeError{RequestID: id, Addr: addr, Err: err}
	default:
		return notify.Error{RequestID: id, Err: err}
	}
}

// StartSingleNode starts one Request bound to exactly one Connection.
func (rs *RequestSet) StartSingleNode(ctx context.Context, conn *connection.Connection, reqType frame.Type, reqCtx []byte, handler HandlerFunc, finished notify.Func) (frame.RequestID, error) {
	if err := rs.reserveSlot(); err != nil {
		return 0, err
	}

	id := rs.nextRequestID()
	roc := rs.acquireROC(id, conn)
	req := &Request{
		ID:               id,
		Type:             reqType,
		Context:          reqCtx,
		FinishedNotifier: finished,
		StartTime:        time.Now(),
		rocs:             newSingleSet(roc),
	}
	req.remain.Store(1)
	rs.register(req)

	go rs.runOne(ctx, req, roc, handler)
	return id, nil
}

// StartRoundRobin starts a Request on a single Connection chosen randomly
// among the Connected members of set.
func (rs *RequestSet) StartRoundRobin(ctx context.Context, set *connection.ConnectionSet, reqType frame.Type, reqCtx []byte, handler HandlerFunc, finished notify.Func) (frame.RequestID, error) {
	conn := set.PickRoundRobin()
	if conn == nil {
		return 0, rpcerr.New(rpcerr.IOError, "reqset: no connected node available")
	}
	return rs.StartSingleNode(ctx, conn, reqType, reqCtx, handler, finished)
}

// StartMultiNode starts one RequestOnConn per Connection in conns, all
// belonging to a single Request.
func (rs *RequestSet) StartMultiNode(ctx context.Context, conns []*connection.Connection, reqType frame.Type, reqCtx []byte, handler HandlerFunc, finished notify.Func) (frame.RequestID, error) {
	if err := rs.reserveSlot(); err != nil {
		return 0, err
	}

	id := rs.nextRequestID()
	rocs := make([]*RequestOnConn, 0, len(conns))
	for _, c := range conns {
		rocs = append(rocs, rs.acquireROC(id, c))
	}

	req := &Request{
		ID:               id,
		Type:             reqType,
		Context:          reqCtx,
		FinishedNotifier: finished,
		StartTime:        time.Now(),
		rocs:             newListSet(rocs),
	}
	req.remain.Store(int32(len(rocs)))
	rs.register(req)

	for _, roc := range rocs {
		roc.disp.attach(rs, req, handler)
		go rs.runMember(ctx, req, roc, handler)
	}
	return id, nil
}

// joinMultiNode spawns an additional RequestOnConn for a running
// multi-node request, via EventDispatcher.StartOnNewConnection.
func (rs *RequestSet) joinMultiNode(ctx context.Context, req *Request, c *connection.Connection, handler HandlerFunc) {
	roc := rs.acquireROC(req.ID, c)
	roc.disp.attach(rs, req, handler)
	req.rocs.Add(roc)
	req.remain.Add(1)
	go rs.runMember(ctx, req, roc, handler)
}

// StartAllNodes starts one RequestOnConn against every currently
// Connected member of set, and arranges for nodes that connect later to
// join the same request automatically via RouteConnectionEstablished.
func (rs *RequestSet) StartAllNodes(ctx context.Context, set *connection.ConnectionSet, reqType frame.Type, reqCtx []byte, handler HandlerFunc, finished notify.Func) (frame.RequestID, error) {
	if err := rs.reserveSlot(); err != nil {
		return 0, err
	}

	id := rs.nextRequestID()
	rocSet := newMapSet()
	req := &Request{
		ID:               id,
		Type:             reqType,
		Context:          reqCtx,
		FinishedNotifier: finished,
		StartTime:        time.Now(),
		rocs:             rocSet,
		baseCtx:          ctx,
		handler:          handler,
	}

	var connected []*connection.Connection
	set.Ascend(func(c *connection.Connection) bool {
		if c.Status() == connection.StatusConnected {
			connected = append(connected, c)
		}
		return true
	})

	// remain is seeded to the snapshot size before any member goroutine can
	// run, so a fast-finishing member never observes remain==0 while
	// siblings are still being attached.
	req.remain.Store(int32(len(connected)))
	rs.register(req)

	for _, c := range connected {
		roc := rs.acquireROC(id, c)
		roc.disp.attach(rs, req, handler)
		req.rocs.Add(roc)
		go rs.runMember(ctx, req, roc, handler)
	}

	return id, nil
}

func (rs *RequestSet) joinAllNodes(ctx context.Context, req *Request, c *connection.Connection, handler HandlerFunc) {
	roc := rs.acquireROC(req.ID, c)
	roc.disp.attach(rs, req, handler)
	req.rocs.Add(roc)
	req.remain.Add(1)
	go rs.runMember(ctx, req, roc, handler)
}

// RouteConnectionEstablished implements connection.FrameRouter. Every
// all-nodes Request still active when a new node connects gains a
// RequestOnConn for it.
func (rs *RequestSet) RouteConnectionEstablished(addr addrport.AddrPort, c *connection.Connection) {
	// Only all-nodes requests (modeMap) are eligible to grow; other modes
	// are fixed at start time.
	rs.requests.Range(func(_ frame.RequestID, req *Request) bool {
		if req.rocs.mode == modeMap {
			if _, exists := req.rocs.Get(addr); !exists {
				rs.joinAllNodes(req.baseCtx, req, c, req.handler)
			}
		}
		return true
	})
}

// RouteFrame implements connection.FrameRouter, delivering an inbound
// frame body to the RequestOnConn handling id on addr.
func (rs *RequestSet) RouteFrame(addr addrport.AddrPort, id frame.RequestID, body []byte) {
	req, ok := rs.requests.Load(id)
	if !ok {
		return
	}
	if req.rocs.mode == modeMap {
		if r, exists := req.rocs.Get(addr); exists {
			r.Deliver(body)
		}
		return
	}
	for _, r := range req.rocs.All() {
		if r.Addr().CmpID() == addr.CmpID() {
			r.Deliver(body)
			return
		}
	}
}

// RouteConnectionLost implements connection.FrameRouter. Every
// RequestOnConn running against addr is notified with NodeDisconnected
// before being aborted with an IOError, matching the error table: a lost
// connection reaches in-flight requests as NodeDisconnected, not a bare
// NodeError.
func (rs *RequestSet) RouteConnectionLost(addr addrport.AddrPort, err error) {
	reason := rpcerr.Wrap(rpcerr.IOError, "reqset: connection lost", err)
	rs.requests.Range(func(_ frame.RequestID, req *Request) bool {
		for _, r := range req.rocs.All() {
			if r.Addr().CmpID() != addr.CmpID() {
				continue
			}
			if req.FinishedNotifier != nil {
				req.FinishedNotifier(notify.NodeDisconnected{RequestID: req.ID, Addr: addr, Err: err})
			}
			r.Abort(reason)
		}
		return true
	})
}

func (rs *RequestSet) runOne(ctx context.Context, req *Request, roc *RequestOnConn, handler HandlerFunc) {
	var finalAddr addrport.AddrPort
	var finalErr error
	roc.run(ctx, handler, func(addr addrport.AddrPort, err error) { finalAddr, finalErr = addr, err })
	rs.releaseROC(roc)
	rs.unregister(req)
	rs.emitFinished(req, finalAddr, finalErr)
}

func (rs *RequestSet) runMember(ctx context.Context, req *Request, roc *RequestOnConn, handler HandlerFunc) {
	roc.run(ctx, handler, func(addr addrport.AddrPort, err error) {
		if err != nil {
			req.lastFailure.Store(&memberOutcome{addr: addr, err: err})
		}
	})
	rs.releaseROC(roc)

	if req.remain.Add(-1) == 0 {
		rs.unregister(req)
		outcome := req.lastFailure.Load()
		if outcome == nil {
			rs.emitFinished(req, addrport.AddrPort{}, nil)
		} else {
			rs.emitFinished(req, outcome.addr, outcome.err)
		}
	}
}
