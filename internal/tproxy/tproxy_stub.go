//go:build !linux && !freebsd && !openbsd

package tproxy

import (
	"errors"
	"net"
	"runtime"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = false

func ListenTransparentTCP(_ string, _ net.KeepAliveConfig) (net.Listener, error) {
	return nil, errors.New("transparent proxy is not supported on " + runtime.GOOS)
}

func OriginalDst(_ net.Conn) (*net.TCPAddr, bool) {
	return nil, false
}
