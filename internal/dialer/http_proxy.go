package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// HTTPProxyDialer tunnels connections through an HTTP or HTTPS proxy with
// CONNECT.
type HTTPProxyDialer struct {
	cfg      Config
	proxyURL *url.URL
	auth     string
	direct   Dialer
}

// NewHTTPProxyDialer returns a CONNECT dialer for proxyURL. A non-empty
// username is sent as Basic Proxy-Authorization.
func NewHTTPProxyDialer(cfg Config, proxyURL *url.URL, username, password string) (*HTTPProxyDialer, error) {
	if proxyURL == nil || proxyURL.Hostname() == "" {
		return nil, errors.New("http proxy dialer: missing proxy host")
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, fmt.Errorf("http proxy dialer: unsupported scheme: %q", proxyURL.Scheme)
	}

	var auth string
	if username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}

	return &HTTPProxyDialer{
		cfg:      cfg,
		proxyURL: proxyURL,
		auth:     auth,
		direct:   NewDirectDialer(cfg),
	}, nil
}

// ProxyAddr returns the proxy host:port.
func (d *HTTPProxyDialer) ProxyAddr() string {
	return d.proxyURL.Host
}

// DialContext connects to the proxy, performs TLS for https proxies, and
// asks the proxy to CONNECT to address. The returned conn carries the
// tunnel.
func (d *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	c, err := d.direct.DialContext(ctx, network, d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	done := negotiationContext(ctx, d.cfg, c)
	c, err = d.connect(ctx, c, address)
	if !done() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (d *HTTPProxyDialer) connect(ctx context.Context, c net.Conn, address string) (net.Conn, error) {
	if d.proxyURL.Scheme == "https" {
		tc := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: d.proxyURL.Hostname()})
		if err := tc.HandshakeContext(ctx); err != nil {
			return c, fmt.Errorf("http proxy tls handshake: %w", err)
		}
		c = tc
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}
	if err := req.Write(c); err != nil {
		return c, fmt.Errorf("http proxy connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return c, fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return c, &ConnectStatusError{Status: resp.Status, StatusCode: resp.StatusCode}
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: c, r: br}, nil
	}
	return c, nil
}

// ConnectStatusError is a non-2xx reply to CONNECT.
type ConnectStatusError struct {
	Status     string
	StatusCode int
}

func (e *ConnectStatusError) Error() string {
	return "http proxy connect failed: " + e.Status
}

// bufferedConn returns bytes the proxy sent right after its CONNECT reply
// before reading from the connection again.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
