package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/die-net/hoprelay/internal/httpparse"
	"github.com/die-net/hoprelay/internal/relay"
)

func TestRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		host     string
		origin   string
		wantHost string
		wantPort string
		wantErr  error
	}{
		{name: "request host with port", host: "example.com:8080", wantHost: "example.com", wantPort: "8080"},
		{name: "request host default port", host: "example.com", wantHost: "example.com", wantPort: "80"},
		{name: "ipv6 literal", host: "[::1]:8080", wantHost: "::1", wantPort: "8080"},
		{name: "ipv6 literal default port", host: "[::1]", wantHost: "::1", wantPort: "80"},
		{name: "configured origin", cfg: Config{Origin: "origin.internal:9000"}, host: "example.com", wantHost: "origin.internal", wantPort: "9000"},
		{name: "per-connection origin wins", cfg: Config{Origin: "origin.internal:9000"}, origin: "10.0.0.1:80", host: "example.com", wantHost: "10.0.0.1", wantPort: "80"},
		{name: "no host", wantErr: errNoTarget},
		{name: "empty port", host: "example.com:", wantErr: errNoTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := &relay.Request{Method: "GET", URI: "/", Proto: "HTTP/1.1", Host: tt.host}
			got, err := tt.cfg.route(req, tt.origin)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff([2]string{tt.wantHost, tt.wantPort}, [2]string{got.Host, got.Port}); diff != "" {
				t.Errorf("route mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRouteCarriesRelaySettings(t *testing.T) {
	t.Parallel()

	cfg := Config{Strict: true}
	got, err := cfg.route(&relay.Request{Host: "example.com"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Strict {
		t.Error("Strict not carried into relay config")
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"chunked", httpparse.ErrChunkedUnsupported, http.StatusNotImplemented},
		{"header too large", httpparse.ErrHeaderTooLarge, http.StatusRequestHeaderFieldsTooLarge},
		{"malformed", fmt.Errorf("%w: x", httpparse.ErrMalformed), http.StatusBadRequest},
		{"strict", fmt.Errorf("%w: method", relay.ErrInvalidField), http.StatusBadRequest},
		{"short body", relay.ErrBodyTruncated, http.StatusBadRequest},
		{"no target", errNoTarget, http.StatusBadRequest},
		{"connect timeout", &relay.ConnectError{Kind: relay.KindTimeout, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"connect refused", &relay.ConnectError{Kind: relay.KindRefused, Err: errors.New("refused")}, http.StatusBadGateway},
		{"connect dns", &relay.ConnectError{Kind: relay.KindDNS, Err: &net.DNSError{}}, http.StatusBadGateway},
		{"response timeout", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, http.StatusGatewayTimeout},
		{"write failure", &relay.WriteError{Phase: relay.PhaseHeaders, Err: errors.New("broken pipe")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("got %d want %d", got, tt.want)
			}
		})
	}
}

func TestRemoveHopByHop(t *testing.T) {
	t.Parallel()

	h := http.Header{
		"Connection":   {"close, X-Private"},
		"X-Private":    {"secret"},
		"Keep-Alive":   {"timeout=5"},
		"Content-Type": {"text/plain"},
	}
	removeHopByHop(h)

	want := http.Header{"Content-Type": {"text/plain"}}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
}
