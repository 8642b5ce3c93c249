package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/die-net/hoprelay/internal/dialer"
	"github.com/die-net/hoprelay/internal/httpparse"
	"github.com/die-net/hoprelay/internal/relay"
)

// HTTPProxyServer serves an HTTP forward proxy on raw connections.
//
// It supports:
// - HTTP CONNECT tunneling (dial through the configured dialer + bidirectional copy)
// - non-CONNECT relaying (one fresh upstream connection per request via internal/relay)
type HTTPProxyServer struct {
	ctx    context.Context
	cfg    Config
	parser httpparse.Parser
	log    *slog.Logger

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

// NewHTTPProxyServer constructs an HTTP proxy server with the given config.
//
// Serve starts accepting connections on a listener; Close stops all
// listeners and connections.
func NewHTTPProxyServer(ctx context.Context, cfg Config) *HTTPProxyServer {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
	}
	return &HTTPProxyServer{
		ctx:       ctx,
		cfg:       cfg,
		parser:    httpparse.Parser{MaxHeaderBytes: cfg.MaxHeaderBytes},
		log:       cfg.logger(),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln and serves each on its own goroutine. It
// returns http.ErrServerClosed after Close.
func (s *HTTPProxyServer) Serve(ln net.Listener) error {
	if !s.trackListener(ln, true) {
		return http.ErrServerClosed
	}
	defer s.trackListener(ln, false)

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return http.ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.trackConn(c, true) {
			_ = c.Close()
			return http.ErrServerClosed
		}
		go func() {
			defer s.trackConn(c, false)
			s.serveConn(c, "")
		}()
	}
}

// ServeConn relays the HTTP requests read from c until the client or the
// upstream ends the connection, then closes c. A non-empty origin overrides
// Config.Origin for this connection.
func (s *HTTPProxyServer) ServeConn(c net.Conn, origin string) {
	if !s.trackConn(c, true) {
		_ = c.Close()
		return
	}
	defer s.trackConn(c, false)
	s.serveConn(c, origin)
}

func (s *HTTPProxyServer) serveConn(c net.Conn, origin string) {
	defer c.Close()

	log := s.log
	if ra := c.RemoteAddr(); ra != nil {
		log = log.With("client", ra.String())
	}

	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)
	for {
		if s.cfg.NegotiationTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
		}
		req, err := s.parser.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) {
				log.Debug("bad request", "err", err)
				writeError(bw, statusFor(err), err)
			}
			return
		}
		_ = c.SetReadDeadline(time.Time{})

		if req.Method == http.MethodConnect {
			if err := s.tunnel(c, br, bw, req); err != nil {
				log.Debug("tunnel ended", "target", req.Host, "err", err)
			}
			return
		}

		keep, err := s.relay(br, bw, req, origin)
		if err != nil {
			log.Debug("relay failed", "method", req.Method, "uri", req.URI, "err", err)
			return
		}
		if !keep {
			return
		}
	}
}

// Close stops all listeners and connections and waits for their handlers.
func (s *HTTPProxyServer) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// relay forwards one request upstream and copies the response to the
// client. It reports whether the client connection may carry another
// request. Failures before any response bytes reach the client are answered
// with an error status.
func (s *HTTPProxyServer) relay(br *bufio.Reader, bw *bufio.Writer, req *relay.Request, origin string) (bool, error) {
	rcfg, err := s.cfg.route(req, origin)
	if err != nil {
		writeError(bw, http.StatusBadRequest, err)
		return false, err
	}

	up, err := relay.Connect(s.ctx, rcfg, req)
	if err != nil {
		writeError(bw, statusFor(err), err)
		return false, err
	}
	defer up.Close()
	stop := context.AfterFunc(s.ctx, func() { _ = up.Close() })
	defer stop()

	if s.cfg.IOTimeout > 0 {
		_ = up.Conn().SetDeadline(time.Now().Add(s.cfg.IOTimeout))
	}

	if err := sendRequest(up, br); err != nil {
		writeError(bw, statusFor(err), err)
		return false, err
	}

	major, minor, _ := http.ParseHTTPVersion(req.Proto)
	http10 := major == 1 && minor == 0

	parse := relay.HTTPResponseParser(req.Method)
	var resp *http.Response
	for {
		resp, err = up.ReadResponseInfo(parse)
		if err != nil {
			writeError(bw, statusFor(err), err)
			return false, fmt.Errorf("read response: %w", err)
		}
		if !isInterim(resp.StatusCode) {
			break
		}
		// HTTP/1.0 clients don't understand 1xx.
		if http10 {
			continue
		}
		if err := writeInterim(bw, resp); err != nil {
			return false, fmt.Errorf("write interim response: %w", err)
		}
	}
	defer resp.Body.Close()

	keep := req.KeepAlive && !resp.Close &&
		(resp.ContentLength >= 0 || len(resp.TransferEncoding) > 0 || !bodyAllowed(req.Method, resp.StatusCode))

	// An HTTP/1.0 client can't decode chunked framing, so send the decoded
	// body and delimit it by closing the connection.
	if http10 && len(resp.TransferEncoding) > 0 {
		resp.TransferEncoding = nil
		keep = false
	}

	removeHopByHop(resp.Header)
	resp.Close = !keep
	if err := resp.Write(bw); err != nil {
		return false, fmt.Errorf("write response: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return false, fmt.Errorf("write response: %w", err)
	}
	return keep, nil
}

// isInterim reports whether status is an informational response that is
// followed by another response. 101 ends the exchange.
func isInterim(status int) bool {
	return status >= 100 && status < 200 && status != http.StatusSwitchingProtocols
}

// writeInterim forwards a 1xx response head. It never has a body.
func writeInterim(bw *bufio.Writer, resp *http.Response) error {
	removeHopByHop(resp.Header)
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %s\r\n", resp.Status); err != nil {
		return err
	}
	if err := resp.Header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// sendRequest runs the relay write pipeline: first line, headers, body,
// flush.
func sendRequest(up *relay.Upstream, body io.Reader) error {
	if err := up.SendFirstLine(); err != nil {
		return err
	}
	if err := up.SendHeaders(); err != nil {
		return err
	}
	if err := up.SendBody(body); err != nil {
		return err
	}
	return up.Flush()
}

// tunnel handles CONNECT by dialing the target and copying bytes both ways.
func (s *HTTPProxyServer) tunnel(c net.Conn, br *bufio.Reader, bw *bufio.Writer, req *relay.Request) error {
	host, port, err := splitTarget(req.Host, "443")
	if err != nil {
		writeError(bw, http.StatusBadRequest, err)
		return err
	}
	target := net.JoinHostPort(host, port)

	serverConn, err := s.cfg.Dialer.DialContext(s.ctx, "tcp", target)
	if err != nil {
		writeError(bw, statusFor(&relay.ConnectError{Addr: target, Err: err}), err)
		return err
	}

	if _, err := bw.WriteString("HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		_ = serverConn.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = serverConn.Close()
		return err
	}

	// Bytes the client pipelined behind the CONNECT head.
	if n := br.Buffered(); n > 0 {
		early, _ := br.Peek(n)
		if _, err := serverConn.Write(early); err != nil {
			_ = serverConn.Close()
			return err
		}
	}

	return CopyBidirectional(s.ctx, c, serverConn, s.cfg.IOTimeout)
}

// statusFor maps a failure to the status returned to the client.
func statusFor(err error) int {
	var cerr *relay.ConnectError
	switch {
	case errors.Is(err, httpparse.ErrChunkedUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, httpparse.ErrHeaderTooLarge):
		return http.StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, httpparse.ErrMalformed),
		errors.Is(err, relay.ErrInvalidField),
		errors.Is(err, relay.ErrBodyTruncated),
		errors.Is(err, errNoTarget):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		if cerr.Timeout() || isTimeout(cerr.Err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case isTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// writeError simulates http.Error() on a raw client connection.
func writeError(bw *bufio.Writer, code int, err error) {
	_, _ = fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n\r\n%s\r\n", code, http.StatusText(code), err.Error())
	_ = bw.Flush()
}

var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopByHop drops the upstream connection's hop-by-hop headers,
// including any named in Connection.
func removeHopByHop(h http.Header) {
	for _, v := range h["Connection"] {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func bodyAllowed(method string, status int) bool {
	if method == http.MethodHead {
		return false
	}
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func (s *HTTPProxyServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *HTTPProxyServer) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.listeners, ln)
		return true
	}
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *HTTPProxyServer) trackConn(c net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, c)
		s.wg.Done()
		return true
	}
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}
