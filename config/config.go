// Package config holds the in-memory, in-process configuration surface a
// consumer wires into a connection.ConnectionSet and reqset.RequestSet:
// the dial/backoff/clock seams plus the credential material a Handshaker
// implementation authenticates with. There is no file or environment
// loader here.
package config

import (
	"context"
	"net"
	"time"

	"github.com/sabouaram/nodelink/backoff"
	"github.com/sabouaram/nodelink/logx"
)

// Dialer abstracts *net.Dialer so a Config can be constructed with a fake
// for tests, mirroring connection.Dialer's seam.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config is the plain struct-of-options a consumer assembles once and
// passes to whatever constructs its Connections: a Dialer, the
// Credentials a Handshaker authenticates with, the reconnect backoff
// schedule, a testable clock, and a Logger. There is no Validate/Build
// step; every field is usable as-is from NewConfig's defaults.
type Config struct {
	Dialer      Dialer
	Credentials *Credentials
	RetryTable  backoff.Table
	TimeNow     func() time.Time
	Logger      *logx.Logger
}

// NewConfig returns a Config with a real net.Dialer, empty Credentials,
// the default backoff schedule, time.Now, and a no-op Logger. Every field
// can be overridden before use.
func NewConfig() *Config {
	return &Config{
		Dialer:      &net.Dialer{},
		Credentials: NewCredentials(nil),
		RetryTable:  backoff.DefaultTable(),
		TimeNow:     time.Now,
		Logger:      logx.Noop(),
	}
}
