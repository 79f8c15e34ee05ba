package notify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sabouaram/nodelink/addrport"
	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/notify"
	"github.com/sabouaram/nodelink/rpcerr"
)

func TestKindLabelsAreStable(t *testing.T) {
	addr, err := addrport.New("10.0.0.1", 7000)
	assert.NoError(t, err)

	cases := []struct {
		n    notify.Notifier
		kind string
	}{
		{notify.Connected{Addr: addr}, "connected"},
		{notify.ErrorWhileConnecting{Addr: addr, Err: errors.New("dial failed")}, "error_while_connecting"},
		{notify.NodeDisconnected{RequestID: frame.RequestID(1), Addr: addr}, "node_disconnected"},
		{notify.NodeError{RequestID: frame.RequestID(1), Addr: addr}, "node_error"},
		{notify.Unsupported{RequestID: frame.RequestID(1), Addr: addr, ErrorKind: rpcerr.RequestNotSupported}, "unsupported"},
		{notify.Succeeded{RequestID: frame.RequestID(1)}, "succeeded"},
		{notify.Error{RequestID: frame.RequestID(1), Err: errors.New("boom")}, "error"},
		{notify.RequestData{RequestID: frame.RequestID(1), Addr: addr, Bytes: []byte("x")}, "request_data"},
		{notify.Extension{RequestID: frame.RequestID(1), Value: 42}, "extension"},
	}

	for _, c := range cases {
		assert.Equal(t, c.kind, c.n.Kind())
	}
}

func TestFuncCallbackReceivesConcreteType(t *testing.T) {
	var received notify.Notifier
	var fn notify.Func = func(n notify.Notifier) { received = n }

	addr, _ := addrport.New("127.0.0.1", 1)
	fn(notify.Connected{Addr: addr})

	conn, ok := received.(notify.Connected)
	assert.True(t, ok)
	assert.Equal(t, addr, conn.Addr)
}
