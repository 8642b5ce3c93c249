package relay

import (
	"context"
	"log/slog"
	"net"

	"github.com/die-net/hoprelay/internal/metrics"
)

// DefaultPort is used when Config.Port is empty.
const DefaultPort = "80"

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config describes how to reach the upstream for a relay operation. It is
// never modified by the relay.
type Config struct {
	// Host is the upstream host. A Host header is written upstream only when
	// Host is non-empty, but the header's value is always the request's host.
	Host string
	// Port is the upstream port, DefaultPort if empty.
	Port string
	// Addr, if set, is dialed instead of Host:Port.
	Addr string

	// Dialer opens the transport connection. A zero net.Dialer is used if
	// nil.
	Dialer Dialer

	// Strict rejects request fields that could split or smuggle requests
	// (CR, LF and other control bytes, non-token methods and header names)
	// before anything is written.
	Strict bool

	Metrics *metrics.Relay
	Logger  *slog.Logger
}

// Address returns the host:port ConnectUpstream dials, or "" if none is
// configured.
func (c *Config) Address() string {
	if c.Addr != "" {
		return c.Addr
	}
	if c.Host == "" {
		return ""
	}
	port := c.Port
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, port)
}

// ConnectUpstream opens a TCP connection to the configured upstream.
func (c *Config) ConnectUpstream(ctx context.Context) (net.Conn, error) {
	addr := c.Address()
	if addr == "" {
		return nil, ErrNoUpstream
	}

	var d Dialer = &net.Dialer{}
	if c.Dialer != nil {
		d = c.Dialer
	}
	return d.DialContext(ctx, "tcp", addr)
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
