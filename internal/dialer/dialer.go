package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses upstream and constructs the matching Dialer.
//
// Supported schemes:
//   - direct://
//   - http://[user:pass@]host[:port]
//   - https://[user:pass@]host[:port]
//   - socks5://[user:pass@]host[:port]
//
// A missing port is filled in with the scheme's default.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid url: path should be empty")
	}

	if u.Scheme == "direct" {
		return NewDirectDialer(cfg), nil
	}

	port, ok := defaultPorts[u.Scheme]
	if !ok {
		if u.Scheme == "" {
			return nil, errors.New("invalid url: missing scheme")
		}
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("invalid url: missing host")
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	if u.Scheme == "socks5" {
		return NewSOCKS5ProxyDialer(cfg, u.Host, user, pass), nil
	}
	return NewHTTPProxyDialer(cfg, u, user, pass)
}

var defaultPorts = map[string]string{
	"http":   "80",
	"https":  "443",
	"socks5": "1080",
}

// negotiationContext bounds a proxy handshake on c by the configured
// NegotiationTimeout and by ctx: cancelling ctx closes c. The returned func
// must be called when the handshake is over; it reports false if ctx
// already fired.
func negotiationContext(ctx context.Context, cfg Config, c net.Conn) func() bool {
	if cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(timeNow().Add(cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	return func() bool {
		if cfg.NegotiationTimeout > 0 {
			_ = c.SetDeadline(zeroTime)
		}
		return stop()
	}
}
