package rpcerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sabouaram/nodelink/rpcerr"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "timeout", rpcerr.Timeout.String())
	assert.Equal(t, "unknown", rpcerr.Kind(999).String())
}

func TestIsKind(t *testing.T) {
	err := rpcerr.New(rpcerr.Timeout, "deadline exceeded")
	assert.True(t, rpcerr.IsKind(err, rpcerr.Timeout))
	assert.False(t, rpcerr.IsKind(err, rpcerr.Abort))
}

func TestWrapUnwrap(t *testing.T) {
	root := errors.New("connection reset")
	err := rpcerr.Wrap(rpcerr.IOError, "send failed", root)

	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestErrorsIsAcrossSentinel(t *testing.T) {
	sentinel := rpcerr.New(rpcerr.Abort, "")
	err := rpcerr.New(rpcerr.Abort, "user requested stop")
	assert.True(t, errors.Is(err, sentinel))
}
