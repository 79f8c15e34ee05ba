package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/frame"
	"github.com/sabouaram/nodelink/rpcerr"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := frame.NewHeader(frame.Request, 16)
	buf := h.Encode()

	decoded, err := frame.DecodeHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
	assert.NoError(t, decoded.Validate())
}

func TestHeaderParityIsZero(t *testing.T) {
	h := frame.NewHeader(frame.Authentication, 10)
	buf := h.Encode()

	var x byte
	for _, b := range buf {
		x ^= b
	}
	assert.Equal(t, byte(0), x)
}

func TestHeaderParityMutationDetected(t *testing.T) {
	h := frame.NewHeader(frame.Request, 8)
	buf := h.Encode()
	buf[0] ^= 0x01 // flip one bit of the type byte

	decoded, err := frame.DecodeHeader(buf[:])
	require.NoError(t, err)

	err = decoded.Validate()
	require.Error(t, err)
	assert.True(t, rpcerr.IsKind(err, rpcerr.ProtocolError))
}

func TestValidateRejectsShortRequestBody(t *testing.T) {
	h := frame.NewHeader(frame.Request, 4)
	err := h.Validate()
	require.Error(t, err)
	assert.True(t, rpcerr.IsKind(err, rpcerr.ProtocolError))
}

func TestValidateRejectsOversizedAuthBody(t *testing.T) {
	h := frame.NewHeader(frame.Authentication, frame.MaxAuthBodySize+1)
	err := h.Validate()
	require.Error(t, err)
	assert.True(t, rpcerr.IsKind(err, rpcerr.ProtocolError))
}

func TestValidateRejectsInvalidType(t *testing.T) {
	h := frame.NewHeader(frame.Invalid, 0)
	err := h.Validate()
	require.Error(t, err)
}

func TestLeadingRequestIDRoundTrip(t *testing.T) {
	body := make([]byte, 16)
	frame.PutLeadingRequestID(body, frame.RequestID(0x1234_5678_9ABC_DEF0))

	id, err := frame.LeadingRequestID(body)
	require.NoError(t, err)
	assert.Equal(t, frame.RequestID(0x1234_5678_9ABC_DEF0), id)
}
