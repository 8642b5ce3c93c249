package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrNoUpstream is returned by ConnectUpstream when neither Addr nor Host
	// is set.
	ErrNoUpstream = errors.New("relay: no upstream configured")

	// ErrBodyTruncated is returned by SendBody when the body source ends
	// before ContentLength bytes were delivered.
	ErrBodyTruncated = fmt.Errorf("relay: request body shorter than Content-Length: %w", io.ErrUnexpectedEOF)

	// ErrInvalidField is returned in strict mode for request fields that are
	// unsafe to write verbatim.
	ErrInvalidField = errors.New("relay: invalid request field")
)

// Kind classifies why an upstream connection could not be opened.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindRefused
	KindDNS
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRefused:
		return "refused"
	case KindDNS:
		return "dns"
	default:
		return "other"
	}
}

// ConnectError reports a failure to reach the upstream. Connect returns it
// together with a nil *Upstream.
type ConnectError struct {
	Addr string
	Kind Kind
	Err  error
}

func newConnectError(addr string, err error) *ConnectError {
	return &ConnectError{Addr: addr, Kind: classify(err), Err: err}
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("relay connect %s (%s): %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the connect attempt timed out.
func (e *ConnectError) Timeout() bool {
	return e.Kind == KindTimeout
}

func classify(err error) Kind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	return KindOther
}

// Request phases, used in WriteError and metric labels.
const (
	PhaseFirstLine = "first line"
	PhaseHeaders   = "headers"
	PhaseBody      = "body"
	PhaseFlush     = "flush"
)

// WriteError reports a transport failure while sending the request upstream.
// The relay operation cannot continue after one.
type WriteError struct {
	Phase string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("relay write %s: %v", e.Phase, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
