//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/hoprelay/internal/proxy"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ListenTransparentTCP listens on addr and enables IP_TRANSPARENT so the
// socket can accept redirected connections. Note: you still need appropriate
// iptables/nft rules.
func ListenTransparentTCP(addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: -1, Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
			} else {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
			}
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &proxy.KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// OriginalDst returns the original destination for a TCP connection
// redirected to this listener.
func OriginalDst(c net.Conn) (*net.TCPAddr, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	local, _ := tc.LocalAddr().(*net.TCPAddr)
	rc, err := tc.SyscallConn()
	if err != nil {
		return nil, false
	}

	var addr *net.TCPAddr
	_ = rc.Control(func(fd uintptr) {
		if local != nil && local.IP.To4() == nil {
			info, err := unix.GetsockoptIPv6MTUInfo(int(fd), unix.SOL_IPV6, unix.IP6T_SO_ORIGINAL_DST)
			if err != nil {
				return
			}
			sa := info.Addr
			addr = &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: networkPort(sa.Port)}
			return
		}

		// The kernel returns a sockaddr_in; the Mreq layout is just large
		// enough to hold it: family(2) port(2) addr(4).
		mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			return
		}
		b := mreq.Multiaddr
		addr = &net.TCPAddr{
			IP:   net.IPv4(b[4], b[5], b[6], b[7]),
			Port: int(binary.BigEndian.Uint16(b[2:4])),
		}
	})

	return addr, addr != nil
}

// networkPort converts a sockaddr port, stored in network byte order, to an
// int.
func networkPort(p uint16) int {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], p)
	return int(binary.BigEndian.Uint16(b[:]))
}
