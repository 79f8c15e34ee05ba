// Package connection implements the per-remote-node state machine
// (Disconnected/Connecting/Connected/Shutdown), with automatic
// reconnection driven by backoff.Timer, and ConnectionSet, the ordered
// registry of Connections keyed by addrport.AddrPort.CmpID.
package connection

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/backoff"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/logx"
	"github.com/sabouaram/nodelink/notify"
	"github.com/sabouaram/nodelink/rpcerr"
	"github.com/sabouaram/nodelink/stats"
)

// Status is the lifecycle state of a Connection.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Dialer abstracts *net.Dialer so Connection can be tested without a real
// socket.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Handshaker runs any post-dial authentication exchange before a
// Connection is considered Connected. The zero value (nil Handshaker) is
// a no-op: the connection becomes Connected immediately after dialing.
type Handshaker interface {
	Handshake(ctx context.Context, conn net.Conn) error
}

// FrameRouter receives inbound Request frames and connection-loss
// notifications, routing them to the owning RequestSet. Implemented by
// reqset.RequestSet.
type FrameRouter interface {
	RouteFrame(addr addrport.AddrPort, id frame.RequestID, body []byte)
	RouteConnectionLost(addr addrport.AddrPort, err error)
	RouteConnectionEstablished(addr addrport.AddrPort, conn *Connection)
}

type outboundMessage struct {
	msgType frame.Type
	body    []byte
	done    chan error
}

// Connection owns a single TCP socket to one remote AddrPort, reconnecting
// automatically on failure until ShutdownAndHalt is called. Socket state
// is owned by the run goroutine; other methods reach it over channels or
// atomics. The connected-notification registrations are the exception:
// they live in a map guarded by subMu, which callers lock directly.
type Connection struct {
	addr    addrport.AddrPort
	dialer  Dialer
	hshake  Handshaker
	router  FrameRouter
	notify  notify.Func
	logger  *logx.Logger
	metrics *stats.Registry
	backoff *backoff.Timer

	status int32 // atomic Status

	sendCh chan outboundMessage
	cancel context.CancelFunc
	done   chan struct{}

	subMu sync.Mutex
	subs  map[uint64]notify.Func
}

// Option configures a Connection at construction time.
type Option func(*Connection)

func WithHandshaker(h Handshaker) Option { return func(c *Connection) { c.hshake = h } }
func WithLogger(l *logx.Logger) Option   { return func(c *Connection) { c.logger = l } }
func WithMetrics(m *stats.Registry) Option {
	return func(c *Connection) { c.metrics = m }
}
func WithBackoffTable(tbl backoff.Table) Option {
	return func(c *Connection) { c.backoff.Table = tbl }
}

// New constructs a Connection for addr. Start must be called before any
// I/O occurs.
func New(addr addrport.AddrPort, dialer Dialer, router FrameRouter, onNotify notify.Func, opts ...Option) *Connection {
	c := &Connection{
		addr:    addr,
		dialer:  dialer,
		router:  router,
		notify:  onNotify,
		logger:  logx.Noop(),
		backoff: backoff.NewTimer(),
		status:  int32(StatusDisconnected),
		sendCh:  make(chan outboundMessage, 256),
		done:    make(chan struct{}),
		subs:    make(map[uint64]notify.Func),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Addr returns the remote address this Connection dials.
func (c *Connection) Addr() addrport.AddrPort { return c.addr }

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	return Status(loadStatus(&c.status))
}

// Start begins the connect-retry-reconnect loop in a background goroutine
// and returns immediately. ctx bounds the Connection's entire lifetime:
// cancelling it is equivalent to calling ShutdownAndHalt.
func (c *Connection) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
}

// ShutdownAndHalt marks the Connection Shutdown, stops all reconnection
// attempts, and blocks until the run loop has exited. A Connection that
// was Connected passes on to Disconnected once its pumps have stopped; one
// halted while dialing or waiting to retry stays Shutdown.
func (c *Connection) ShutdownAndHalt() {
	storeStatus(&c.status, StatusShutdown)
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

// Send enqueues a framed message for transmission. It returns an error
// immediately if the Connection is not Connected; callers that need to
// wait for a connected state should use RegisterForConnectedNotification.
func (c *Connection) Send(msgType frame.Type, body []byte) error {
	if c.Status() != StatusConnected {
		return rpcerr.New(rpcerr.IOError, "connection: not connected")
	}
	out := outboundMessage{msgType: msgType, body: body, done: make(chan error, 1)}
	select {
	case c.sendCh <- out:
	default:
		return rpcerr.New(rpcerr.IOError, "connection: send queue full")
	}
	return <-out.done
}

// RegisterForConnectedNotification arranges for fn to be invoked, with a
// notify.Connected, the next time this Connection transitions to
// Connected, then removes the registration so fn fires at most once per
// call. key lets a caller register idempotently under a key it owns
// (typically a RequestOnConn's RequestID): registering the same key twice
// registers once. Returns 0 if the Connection is already Connected (fn
// runs synchronously and no registration is made), 1 if a new
// registration was created, or 2 if key was already registered.
func (c *Connection) RegisterForConnectedNotification(key uint64, fn notify.Func) int {
	if c.Status() == StatusConnected {
		if fn != nil {
			fn(notify.Connected{Addr: c.addr})
		}
		return 0
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if _, exists := c.subs[key]; exists {
		return 2
	}
	c.subs[key] = fn
	return 1
}

// UnregisterForConnectedNotification removes a subscription previously
// returned by RegisterForConnectedNotification. It is idempotent: calling
// it for a key that is not (or no longer) registered is a no-op.
func (c *Connection) UnregisterForConnectedNotification(key uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, key)
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	defer c.drainPendingSends()

	for {
		if ctx.Err() != nil || c.Status() == StatusShutdown {
			return
		}

		storeStatus(&c.status, StatusConnecting)
		conn, err := c.connectOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.emit(notify.ErrorWhileConnecting{Addr: c.addr, Err: err})
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		c.backoff.Reset()
		storeStatus(&c.status, StatusConnected)
		if c.metrics != nil {
			c.metrics.SetConnectionStatus(c.addr.String(), true)
		}
		c.emit(notify.Connected{Addr: c.addr})
		c.notifySubscribers()
		if c.router != nil {
			c.router.RouteConnectionEstablished(c.addr, c)
		}

		err = c.serve(ctx, conn)
		storeStatus(&c.status, StatusDisconnected)
		if c.metrics != nil {
			c.metrics.SetConnectionStatus(c.addr.String(), false)
		}
		if c.router != nil {
			c.router.RouteConnectionLost(c.addr, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Connection) connectOnce(ctx context.Context) (net.Conn, error) {
	span := c.logger.StartSpan("connect", map[string]any{"addr": c.addr.String()})
	raw, err := c.dialer.DialContext(ctx, "tcp", c.addr.String())
	if err != nil {
		span.Done(err)
		return nil, rpcerr.Wrap(rpcerr.IOError, "connection: dial failed", err)
	}

	watched := &cancelWatchedConn{Conn: raw, stop: context.AfterFunc(ctx, func() { raw.Close() })}
	conn := newObservedConn(watched, c.logger, c.addr.String())

	if c.hshake != nil {
		if err := c.hshake.Handshake(ctx, conn); err != nil {
			conn.Close()
			span.Done(err)
			return nil, rpcerr.Wrap(rpcerr.AuthError, "connection: handshake failed", err)
		}
	}

	span.Done(nil)
	return conn, nil
}

// serve runs the read and write pumps until either fails, then closes the
// socket and returns the terminal error.
func (c *Connection) serve(ctx context.Context, conn net.Conn) error {
	errCh := make(chan error, 2)
	pumpCtx, cancelPumps := context.WithCancel(ctx)
	defer cancelPumps()

	go c.readPump(pumpCtx, conn, errCh)
	go c.writePump(pumpCtx, conn, errCh)

	err := <-errCh
	conn.Close()
	return err
}

func (c *Connection) readPump(ctx context.Context, conn net.Conn, errCh chan<- error) {
	for {
		hdr, body, err := frame.ReadMessage(conn)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}

		if hdr.Type == frame.Request && c.router != nil {
			id, idErr := frame.LeadingRequestID(body)
			if idErr == nil {
				c.router.RouteFrame(c.addr, id, body[frame.RequestIDSize:])
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Connection) writePump(ctx context.Context, conn net.Conn, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-c.sendCh:
			err := frame.WriteMessage(conn, out.msgType, out.body)
			out.done <- err
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}
}

func (c *Connection) waitBackoff(ctx context.Context) bool {
	delay := c.backoff.NextAndAdvance()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// drainPendingSends answers every message still queued after the run loop
// exits, so a Send call racing with ShutdownAndHalt never blocks forever.
func (c *Connection) drainPendingSends() {
	for {
		select {
		case out := <-c.sendCh:
			out.done <- rpcerr.New(rpcerr.IOError, "connection: shut down")
		default:
			return
		}
	}
}

func (c *Connection) emit(n notify.Notifier) {
	if c.metrics != nil {
		c.metrics.ObserveNotification(n)
	}
	if c.notify != nil {
		c.notify(n)
	}
}

// notifySubscribers fires every pending registration exactly once and
// removes it. A connection drop mid-notification simply leaves whatever
// is still in c.subs registered for the next reconnect, since the
// removal below only ever touches entries already snapshotted here.
func (c *Connection) notifySubscribers() {
	c.subMu.Lock()
	fns := make([]notify.Func, 0, len(c.subs))
	for key, fn := range c.subs {
		fns = append(fns, fn)
		delete(c.subs, key)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn(notify.Connected{Addr: c.addr})
		}
	}
}
