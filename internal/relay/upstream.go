package relay

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// Upstream is a live connection to the upstream server, bound to the Config
// and Request it relays. It is owned by a single relay operation.
type Upstream struct {
	cfg  *Config
	req  *Request
	conn net.Conn
	log  *slog.Logger

	counted   bool
	closeOnce sync.Once
	closeErr  error
}

// Connect opens a connection to the upstream described by cfg and binds req
// to it.
//
// On failure the returned *Upstream is nil and nothing has been written; the
// error is a *ConnectError. Callers should treat it as the upstream being
// unreachable.
func Connect(ctx context.Context, cfg *Config, req *Request) (*Upstream, error) {
	conn, err := cfg.ConnectUpstream(ctx)
	if err != nil {
		cerr := newConnectError(cfg.Address(), err)
		cfg.Metrics.Connect(cerr.Kind.String())
		cfg.logger().Debug("relay connect failed", "addr", cerr.Addr, "kind", cerr.Kind.String(), "err", err)
		return nil, cerr
	}
	cfg.Metrics.Connect("ok")

	u := New(cfg, req, conn)
	u.counted = true
	return u, nil
}

// New binds cfg and req to an already established connection.
func New(cfg *Config, req *Request, conn net.Conn) *Upstream {
	log := cfg.logger()
	if ra := conn.RemoteAddr(); ra != nil {
		log = log.With("upstream", ra.String())
	}
	return &Upstream{cfg: cfg, req: req, conn: conn, log: log}
}

// Conn returns the underlying connection, e.g. for setting deadlines.
func (u *Upstream) Conn() net.Conn {
	return u.conn
}

// Request returns the request bound to u.
func (u *Upstream) Request() *Request {
	return u.req
}

// Close closes the upstream connection. It is safe to call more than once.
func (u *Upstream) Close() error {
	u.closeOnce.Do(func() {
		u.closeErr = u.conn.Close()
		if u.counted {
			u.cfg.Metrics.Closed()
		}
	})
	return u.closeErr
}
