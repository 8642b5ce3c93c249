package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect. Zero means no limit.
	DialTimeout time.Duration
	// NegotiationTimeout bounds TLS and proxy handshakes. Zero means no
	// limit.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig
}
