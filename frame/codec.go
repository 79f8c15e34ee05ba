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

package frame

import (
	"io"
)

// ReadMessage reads one header+body pair from r. It returns a ProtocolError
// if the header fails Validate.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return Header{}, nil, err
	}

	h, err := DecodeHeader(hb[:])
	if err != nil {
		return Header{}, nil, err
	}
	if err = h.Validate(); err != nil {
		return Header{}, nil, err
	}

	body := make([]byte, h.BodyLength)
	if h.BodyLength > 0 {
		if _, err = io.ReadFull(r, body); err != nil {
			return Header{}, nil, err
		}
	}
	return h, body, nil
}

// WriteMessage writes a header of type t followed by body to w. The
// header's BodyLength is len(body) and its parity is computed from it.
func WriteMessage(w io.Writer, t Type, body []byte) error {
	h := NewHeader(t, uint64(len(body)))
	hb := h.Encode()

	if _, err := w.Write(hb[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}
