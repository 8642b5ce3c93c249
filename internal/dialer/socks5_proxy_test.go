package dialer

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/hoprelay/internal/socks5"
	"github.com/die-net/hoprelay/internal/testutil"
)

// serveSOCKS5 answers one CONNECT on c, tunnelling to the destination.
func serveSOCKS5(ctx context.Context, c net.Conn, auth socks5.Auth) {
	if err := socks5.ServerNegotiate(c, auth); err != nil {
		return
	}
	cmd, addr, err := socks5.ServerReadRequest(c)
	if err != nil || cmd != socks5.CmdConnect {
		return
	}

	var d net.Dialer
	dst, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		_ = socks5.WriteReply(c, socks5.RepHostUnreachable, nil)
		return
	}
	defer dst.Close()

	if err := socks5.WriteReply(c, socks5.RepSuccess, dst.LocalAddr()); err != nil {
		return
	}
	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}

func TestSOCKS5ProxyDialerDial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth socks5.Auth
	}{
		{name: "no_auth"},
		{name: "user_pass", auth: socks5.Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				serveSOCKS5(ctx, c, tt.auth)
			})

			d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), tt.auth.Username, tt.auth.Password)
			conn, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			_ = conn.Close()

			waitUp()
		})
	}
}

func TestSOCKS5ProxyDialerRefused(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if err := socks5.ServerNegotiate(c, socks5.Auth{}); err != nil {
			return
		}
		if _, _, err := socks5.ServerReadRequest(c); err != nil {
			return
		}
		_ = socks5.WriteReply(c, socks5.RepConnectionRefused, nil)
	})
	defer waitUp()

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")
	_, err := d.DialContext(ctx, "tcp", "127.0.0.1:1")
	var rerr *socks5.ReplyError
	if !errors.As(err, &rerr) || !rerr.Refused() {
		t.Fatalf("expected refused reply, got %v", err)
	}
}

func TestSOCKS5ProxyDialerContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, "127.0.0.1:1", "", "")
	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSOCKS5ProxyDialerNetwork(t *testing.T) {
	t.Parallel()

	d := NewSOCKS5ProxyDialer(Config{}, "127.0.0.1:1", "", "")
	if _, err := d.DialContext(context.Background(), "udp", "127.0.0.1:53"); err == nil {
		t.Fatal("expected unsupported network error")
	}
}
