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

// Package addrport provides a canonical, trivially-copyable (IPv4, port)
// value with a strict total ordering key, used to key the connection
// registry and to identify nodes in notifications.
package addrport

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// AddrPort is an IPv4 address plus a port, stored in network byte order.
//
// The zero value is 0.0.0.0:0. AddrPort is comparable and safe to use as a
// map key.
type AddrPort struct {
	addr uint32 // network byte order
	port uint16
}

// New builds an AddrPort from a dotted-quad (or inet_aton-compatible)
// string and a port.
func New(address string, port uint16) (AddrPort, error) {
	var ap AddrPort
	if err := ap.SetAddress(address); err != nil {
		return AddrPort{}, err
	}
	ap.SetPort(port)
	return ap, nil
}

// SetAddress parses a dotted-quad (or inet_aton-compatible 1/2/3-part
// numeric form) address string. Strings longer than 19 bytes are rejected,
// matching the source's fixed-size scratch buffer.
func (a *AddrPort) SetAddress(s string) error {
	if len(s) > 19 {
		return fmt.Errorf("addrport: address %q exceeds 19 bytes", s)
	}
	v, err := parseInetAton(s)
	if err != nil {
		return err
	}
	a.addr = v
	return nil
}

// Address renders the address back into dotted-quad form.
func (a AddrPort) Address() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], a.addr)
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// GetAddress writes the dotted-quad representation into buf and returns the
// number of bytes written.
func (a AddrPort) GetAddress(buf []byte) int {
	s := a.Address()
	return copy(buf, s)
}

// Port returns the port in host byte order.
func (a AddrPort) Port() uint16 {
	return a.port
}

// SetPort sets the port (host byte order).
func (a *AddrPort) SetPort(p uint16) {
	a.port = p
}

// CmpID returns the 48-bit packed (address, port) ordering key:
// (address_u32 << 16) | port. It is a strict total order by address then
// port.
func (a AddrPort) CmpID() uint64 {
	return uint64(a.addr)<<16 | uint64(a.port)
}

// Less reports whether a sorts strictly before b under CmpID.
func (a AddrPort) Less(b AddrPort) bool {
	return a.CmpID() < b.CmpID()
}

// String implements fmt.Stringer for logging and debug output.
func (a AddrPort) String() string {
	return fmt.Sprintf("%s:%d", a.Address(), a.port)
}

// SockaddrInet4 converts to the platform's raw sockaddr_in representation.
func (a AddrPort) SockaddrInet4() syscall.SockaddrInet4 {
	var sa syscall.SockaddrInet4
	binary.BigEndian.PutUint32(sa.Addr[:], 0) // placeholder overwritten below
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], a.addr)
	sa.Addr = [4]byte{b[0], b[1], b[2], b[3]}
	sa.Port = int(a.port)
	return sa
}

// FromSockaddrInet4 builds an AddrPort from the platform's raw sockaddr_in.
func FromSockaddrInet4(sa syscall.SockaddrInet4) AddrPort {
	return AddrPort{
		addr: binary.BigEndian.Uint32(sa.Addr[:]),
		port: uint16(sa.Port),
	}
}

// parseInetAton accepts the dotted-quad form "a.b.c.d" and the
// inet_aton-compatible shorthand forms with 1, 2 or 3 numeric parts
// (e.g. "127.1" == 127.0.0.1, "0x7f000001" is not supported — only decimal
// parts, matching the subset the original client relied on).
func parseInetAton(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("addrport: empty address")
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return 0, fmt.Errorf("addrport: invalid address %q", s)
	}

	vals := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("addrport: invalid address %q: %w", s, err)
		}
		vals[i] = v
	}

	var result uint32
	switch len(vals) {
	case 1:
		if vals[0] > 0xFFFFFFFF {
			return 0, fmt.Errorf("addrport: invalid address %q", s)
		}
		result = uint32(vals[0])
	case 2:
		if vals[0] > 0xFF || vals[1] > 0xFFFFFF {
			return 0, fmt.Errorf("addrport: invalid address %q", s)
		}
		result = uint32(vals[0])<<24 | uint32(vals[1])
	case 3:
		if vals[0] > 0xFF || vals[1] > 0xFF || vals[2] > 0xFFFF {
			return 0, fmt.Errorf("addrport: invalid address %q", s)
		}
		result = uint32(vals[0])<<24 | uint32(vals[1])<<16 | uint32(vals[2])
	case 4:
		for _, v := range vals {
			if v > 0xFF {
				return 0, fmt.Errorf("addrport: invalid address %q", s)
			}
		}
		result = uint32(vals[0])<<24 | uint32(vals[1])<<16 | uint32(vals[2])<<8 | uint32(vals[3])
	}
	return result, nil
}
