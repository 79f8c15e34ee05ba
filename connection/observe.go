package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabouaram/nodelink/logx"
)

func loadStatus(addr *int32) Status     { return Status(atomic.LoadInt32(addr)) }
func storeStatus(addr *int32, s Status) { atomic.StoreInt32(addr, int32(s)) }

// cancelWatchedConn closes the underlying connection when its governing
// context is done, giving prompt cleanup on ShutdownAndHalt instead of
// waiting for the next blocking read to notice. Adapted from the
// teacher's CancelWatchFunc primitive.
type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// observedConn logs every I/O event on a net.Conn at debug level, adapted
// from the teacher's ObserveConnFunc.
type observedConn struct {
	net.Conn
	closeOnce sync.Once
	logger    *logx.Logger
	remote    string
}

func newObservedConn(conn net.Conn, logger *logx.Logger, remote string) net.Conn {
	return &observedConn{Conn: conn, logger: logger, remote: remote}
}

func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeOnce.Do(func() {
		span := c.logger.StartSpan("close", map[string]any{"remote": c.remote})
		err = c.Conn.Close()
		span.Done(err)
	})
	return
}

func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := time.Now()
	n, err := c.Conn.Read(buf)
	c.logger.WithFields(map[string]any{
		"remote": c.remote,
		"bytes":  n,
		"micros": time.Since(t0).Microseconds(),
	}).Debug("read", nil)
	return n, err
}

func (c *observedConn) Write(buf []byte) (int, error) {
	t0 := time.Now()
	n, err := c.Conn.Write(buf)
	c.logger.WithFields(map[string]any{
		"remote": c.remote,
		"bytes":  n,
		"micros": time.Since(t0).Microseconds(),
	}).Debug("write", nil)
	return n, err
}
