package tproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/die-net/hoprelay/internal/proxy"
)

// Server relays HTTP requests from redirected connections to their original
// destinations.
type Server struct {
	proxy *proxy.HTTPProxyServer
	log   *slog.Logger

	// originalDst is swapped in tests.
	originalDst func(net.Conn) (*net.TCPAddr, bool)
}

// NewServer returns a Server relaying with cfg. cfg.Origin is ignored: the
// original destination of each connection is used instead.
func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cfg.Origin = ""
	return &Server{
		proxy:       proxy.NewHTTPProxyServer(ctx, cfg),
		log:         log,
		originalDst: OriginalDst,
	}
}

// Serve accepts redirected connections on ln. It returns
// http.ErrServerClosed once Close has been called.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return http.ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(c)
	}
}

// Close stops all in-flight relays.
func (s *Server) Close() error {
	return s.proxy.Close()
}

func (s *Server) handle(c net.Conn) {
	dst, ok := s.originalDst(c)
	if !ok {
		s.log.Debug("tproxy: original destination unavailable", "client", c.RemoteAddr().String())
		_ = c.Close()
		return
	}

	s.proxy.ServeConn(c, dst.String())
}
