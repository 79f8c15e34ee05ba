/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package frame implements the fixed binary header and body framing used on
// every connection: a 10-byte header (type, body length, XOR parity)
// followed by body_length body bytes. Request bodies carry the RequestID as
// their first 8 bytes.
package frame

import (
	"encoding/binary"

	"github.com/sabouaram/nodelink/rpcerr"
)

// Type is the message type carried by the header.
type Type byte

const (
	// Invalid is never sent on the wire; zero value guards against
	// reading an unset header.
	Invalid Type = 0
	// Request carries a RequestID-prefixed body for the multiplexed RPC
	// protocol.
	Request Type = 1
	// Authentication carries the handshake payload.
	Authentication Type = 2
)

// RequestID identifies one active Request. Zero means "inactive".
type RequestID uint64

const (
	// NoRequestID is the reserved zero value meaning "inactive".
	NoRequestID RequestID = 0
)

const (
	// HeaderSize is the fixed wire size of a Header.
	HeaderSize = 10
	// RequestIDSize is the size in bytes of the leading RequestID within
	// a Request body.
	RequestIDSize = 8
	// MaxAuthBodySize is the maximum allowed Authentication body size.
	MaxAuthBodySize = 999
)

// Header is the fixed packed layout preceding every message body.
type Header struct {
	Type       Type
	BodyLength uint64
	Parity     byte
}

// NewHeader builds a Header for the given type and body length, computing
// and filling in the parity byte.
func NewHeader(t Type, bodyLength uint64) Header {
	h := Header{Type: t, BodyLength: bodyLength}
	h.Parity = h.computeParity()
	return h
}

// computeParity returns the byte that makes XOR(all header bytes) == 0,
// i.e. the XOR of every other header byte.
func (h Header) computeParity() byte {
	buf := h.encodeRaw()
	var x byte
	for _, b := range buf[:HeaderSize-1] {
		x ^= b
	}
	return x
}

// encodeRaw serializes the header including whatever Parity is currently
// set (used by Encode, by Validate, and by computeParity, which ignores
// the last byte).
func (h Header) encodeRaw() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Type)
	binary.LittleEndian.PutUint64(buf[1:9], h.BodyLength)
	buf[9] = h.Parity
	return buf
}

// Encode serializes the header to a fixed-size byte array.
func (h Header) Encode() [HeaderSize]byte {
	return h.encodeRaw()
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header. It does not
// validate the parity or type; call Validate for that.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, rpcerr.New(rpcerr.ProtocolError, "frame: short header")
	}
	h := Header{
		Type:       Type(buf[0]),
		BodyLength: binary.LittleEndian.Uint64(buf[1:9]),
		Parity:     buf[9],
	}
	return h, nil
}

// Validate checks parity, type, and per-type body length bounds. It
// returns an rpcerr of kind ProtocolError on any violation.
func (h Header) Validate() error {
	buf := h.encodeRaw()
	var x byte
	for _, b := range buf {
		x ^= b
	}
	if x != 0 {
		return rpcerr.New(rpcerr.ProtocolError, "frame: header parity mismatch")
	}

	switch h.Type {
	case Request:
		if h.BodyLength < RequestIDSize {
			return rpcerr.New(rpcerr.ProtocolError, "frame: request body shorter than RequestID")
		}
	case Authentication:
		if h.BodyLength > MaxAuthBodySize {
			return rpcerr.New(rpcerr.ProtocolError, "frame: authentication body too large")
		}
	default:
		return rpcerr.New(rpcerr.ProtocolError, "frame: invalid header type")
	}
	return nil
}

// LeadingRequestID extracts the RequestID from the first 8 bytes of a
// Request body.
func LeadingRequestID(body []byte) (RequestID, error) {
	if len(body) < RequestIDSize {
		return NoRequestID, rpcerr.New(rpcerr.ProtocolError, "frame: body shorter than RequestID")
	}
	return RequestID(binary.LittleEndian.Uint64(body[:RequestIDSize])), nil
}

// PutLeadingRequestID writes id as the first 8 bytes of buf.
func PutLeadingRequestID(buf []byte, id RequestID) {
	binary.LittleEndian.PutUint64(buf[:RequestIDSize], uint64(id))
}
