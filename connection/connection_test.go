package connection_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/backoff"
	"github.com/sabouaram/nodelink/connection"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/notify"
)

// pipeDialer hands out one end of an in-memory net.Pipe per dial,
// optionally failing the first N attempts.
type pipeDialer struct {
	mu       sync.Mutex
	fails    int
	serverCh chan net.Conn
}

func newPipeDialer(fails int) *pipeDialer {
	return &pipeDialer{fails: fails, serverCh: make(chan net.Conn, 8)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	if d.fails > 0 {
		d.fails--
		d.mu.Unlock()
		return nil, assert.AnError
	}
	d.mu.Unlock()

	client, server := net.Pipe()
	d.serverCh <- server
	return client, nil
}

type recordingRouter struct {
	mu        sync.Mutex
	connected []addrport.AddrPort
	lost      []addrport.AddrPort
	frames    []frame.RequestID
}

func (r *recordingRouter) RouteFrame(addr addrport.AddrPort, id frame.RequestID, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, id)
}

func (r *recordingRouter) RouteConnectionLost(addr addrport.AddrPort, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, addr)
}

func (r *recordingRouter) RouteConnectionEstablished(addr addrport.AddrPort, c *connection.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, addr)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func TestConnectionConnectsAndNotifies(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7000)
	require.NoError(t, err)

	dialer := newPipeDialer(0)
	router := &recordingRouter{}

	var mu sync.Mutex
	var notifications []notify.Notifier

	c := connection.New(addr, dialer, router, func(n notify.Notifier) {
		mu.Lock()
		defer mu.Unlock()
		notifications = append(notifications, n)
	})

	c.Start(context.Background())
	defer c.ShutdownAndHalt()

	waitFor(t, time.Second, func() bool { return c.Status() == connection.StatusConnected })

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, notifications)
	_, ok := notifications[0].(notify.Connected)
	assert.True(t, ok)
}

func TestConnectionSendRoundTrip(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7001)
	require.NoError(t, err)

	dialer := newPipeDialer(0)
	router := &recordingRouter{}

	c := connection.New(addr, dialer, router, nil)
	c.Start(context.Background())
	defer c.ShutdownAndHalt()

	waitFor(t, time.Second, func() bool { return c.Status() == connection.StatusConnected })

	server := <-dialer.serverCh

	body := make([]byte, frame.RequestIDSize+2)
	frame.PutLeadingRequestID(body, frame.RequestID(99))
	body[frame.RequestIDSize] = 0xAB
	body[frame.RequestIDSize+1] = 0xCD

	readErrCh := make(chan error, 1)
	go func() {
		_, gotBody, rerr := frame.ReadMessage(server)
		if rerr == nil {
			assert.Equal(t, body, gotBody)
		}
		readErrCh <- rerr
	}()

	require.NoError(t, c.Send(frame.Request, body))
	require.NoError(t, <-readErrCh)
}

func TestConnectionReconnectsAfterDialFailure(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7002)
	require.NoError(t, err)

	dialer := newPipeDialer(2)
	router := &recordingRouter{}

	c := connection.New(addr, dialer, router, nil, connection.WithBackoffTable(backoff.Table{time.Millisecond}))
	c.Start(context.Background())
	defer c.ShutdownAndHalt()

	waitFor(t, 2*time.Second, func() bool { return c.Status() == connection.StatusConnected })
}

func TestConnectionShutdownAndHalt(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7003)
	require.NoError(t, err)

	dialer := newPipeDialer(0)
	router := &recordingRouter{}

	c := connection.New(addr, dialer, router, nil)
	c.Start(context.Background())

	waitFor(t, time.Second, func() bool { return c.Status() == connection.StatusConnected })

	c.ShutdownAndHalt()
	assert.Equal(t, connection.StatusDisconnected, c.Status())
}

func TestRegisterForConnectedNotificationContract(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7005)
	require.NoError(t, err)

	dialer := newPipeDialer(0)
	router := &recordingRouter{}

	c := connection.New(addr, dialer, router, nil)
	c.Start(context.Background())
	defer c.ShutdownAndHalt()

	var fired int32
	status := c.RegisterForConnectedNotification(1, func(notify.Notifier) {
		atomic.AddInt32(&fired, 1)
	})
	assert.Equal(t, 1, status, "first registration under a fresh key is newly added")

	status = c.RegisterForConnectedNotification(1, func(notify.Notifier) {})
	assert.Equal(t, 2, status, "registering the same key twice registers once")

	waitFor(t, time.Second, func() bool { return c.Status() == connection.StatusConnected })
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&fired) == 1 })

	// A fresh Connection that has not started yet accepts a registration
	// under a new key as newly added, and still connects normally.
	c.ShutdownAndHalt()

	dialer2 := newPipeDialer(0)
	c2 := connection.New(addr, dialer2, router, nil)
	status = c2.RegisterForConnectedNotification(2, func(notify.Notifier) {})
	c2.Start(context.Background())
	defer c2.ShutdownAndHalt()
	waitFor(t, time.Second, func() bool { return c2.Status() == connection.StatusConnected })
	assert.Equal(t, 1, status)
}

func TestRegisterForConnectedNotificationAlreadyConnected(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7006)
	require.NoError(t, err)

	dialer := newPipeDialer(0)
	router := &recordingRouter{}

	c := connection.New(addr, dialer, router, nil)
	c.Start(context.Background())
	defer c.ShutdownAndHalt()
	waitFor(t, time.Second, func() bool { return c.Status() == connection.StatusConnected })

	var fired int32
	status := c.RegisterForConnectedNotification(1, func(notify.Notifier) {
		atomic.AddInt32(&fired, 1)
	})
	assert.Equal(t, 0, status, "already-Connected registration fires synchronously and is not stored")
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestConnectionNotConnectedSendFails(t *testing.T) {
	addr, err := addrport.New("127.0.0.1", 7004)
	require.NoError(t, err)

	c := connection.New(addr, newPipeDialer(0), &recordingRouter{}, nil)
	err = c.Send(frame.Request, []byte{1, 2, 3})
	assert.Error(t, err)
}
