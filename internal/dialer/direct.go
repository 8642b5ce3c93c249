package dialer

import (
	"context"
	"fmt"
	"net"
	"time"
)

var (
	timeNow  = time.Now
	zeroTime time.Time
)

type directDialer struct {
	cfg      Config
	resolver *Resolver
}

// NewDirectDialer returns a Dialer that connects straight to the
// destination.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg, resolver: NewResolver(nil)}
}

// DialContext resolves address's host, if it is a name, and connects to the
// resulting addresses in order until one succeeds.
func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DialTimeout)
		defer cancel()
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	targets := []string{address}
	if net.ParseIP(host) == nil {
		addrs, err := d.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		targets = targets[:0]
		for _, a := range addrs {
			targets = append(targets, net.JoinHostPort(a.String(), port))
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("dial %s %s: no addresses for %s", network, address, host)
	}

	nd := net.Dialer{KeepAliveConfig: d.cfg.KeepAlive}
	var lastErr error
	for _, t := range targets {
		conn, err := nd.DialContext(ctx, network, t)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("dial %s %s: %w", network, address, lastErr)
}
