package proxy

import (
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/die-net/hoprelay/internal/dialer"
	"github.com/die-net/hoprelay/internal/metrics"
	"github.com/die-net/hoprelay/internal/relay"
)

type Config struct {
	// Origin, if set, is the host[:port] every relayed request goes to.
	// Otherwise the target comes from the request's host.
	Origin string

	// Strict enables relay.Config.Strict for every relayed request.
	Strict bool

	// NegotiationTimeout bounds reading a request head from the client.
	NegotiationTimeout time.Duration

	// IOTimeout, if non-zero, is the deadline for a whole relay exchange or
	// tunnel on the upstream connection.
	IOTimeout time.Duration

	// MaxHeaderBytes limits a client request head; see httpparse.Parser.
	MaxHeaderBytes int

	KeepAlive net.KeepAliveConfig

	Dialer  dialer.Dialer
	Metrics *metrics.Relay
	Logger  *slog.Logger
}

var errNoTarget = errors.New("proxy: request has no target host")

// route builds the relay configuration for req. A non-empty origin
// overrides c.Origin.
func (c *Config) route(req *relay.Request, origin string) (*relay.Config, error) {
	if origin == "" {
		origin = c.Origin
	}
	target := origin
	if target == "" {
		target = req.Host
	}

	host, port, err := splitTarget(target, relay.DefaultPort)
	if err != nil {
		return nil, err
	}

	return &relay.Config{
		Host:    host,
		Port:    port,
		Dialer:  c.Dialer,
		Strict:  c.Strict,
		Metrics: c.Metrics,
		Logger:  c.Logger,
	}, nil
}

// splitTarget splits host[:port], filling in defaultPort.
func splitTarget(target, defaultPort string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(target)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
		port = defaultPort
	}
	if host == "" || port == "" {
		return "", "", errNoTarget
	}
	return host, port, nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
