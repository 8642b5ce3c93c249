package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// SendFirstLine writes "METHOD SP URI SP VERSION CRLF" from the request's
// fields, byte for byte.
//
// Calling it twice writes the line twice.
func (u *Upstream) SendFirstLine() error {
	r := u.req
	if u.cfg.Strict {
		if err := validateFirstLine(r); err != nil {
			return err
		}
	}

	line := make([]byte, 0, len(r.Method)+len(r.URI)+len(r.Proto)+4)
	line = append(line, r.Method...)
	line = append(line, ' ')
	line = append(line, r.URI...)
	line = append(line, ' ')
	line = append(line, r.Proto...)
	line = append(line, "\r\n"...)

	if err := u.write(PhaseFirstLine, line); err != nil {
		return err
	}
	u.log.Debug("sent first line", "method", r.Method, "uri", r.URI, "proto", r.Proto)
	return nil
}

// SendHeaders writes the header block terminated by an empty line:
//
//   - "Host: <request host>" if the Config's Host is non-empty,
//   - "Content-Length: <n>" if the request's ContentLength is positive,
//   - each request header in order,
//   - CRLF.
//
// No Connection or Transfer-Encoding header is ever added.
func (u *Upstream) SendHeaders() error {
	r := u.req
	if u.cfg.Strict {
		if err := validateHeaders(r); err != nil {
			return err
		}
	}

	bp := getChunk()
	defer putChunk(bp)

	b := (*bp)[:0]
	if u.cfg.Host != "" {
		b = append(b, "Host: "...)
		b = append(b, r.Host...)
		b = append(b, "\r\n"...)
	}
	if r.ContentLength > 0 {
		b = append(b, "Content-Length: "...)
		b = strconv.AppendInt(b, r.ContentLength, 10)
		b = append(b, "\r\n"...)
	}
	for _, h := range r.Header {
		b = append(b, h.Name...)
		b = append(b, ": "...)
		b = append(b, h.Value...)
		b = append(b, "\r\n"...)
	}
	b = append(b, "\r\n"...)

	if err := u.write(PhaseHeaders, b); err != nil {
		return err
	}
	u.log.Debug("sent headers", "host", r.Host, "content_length", r.ContentLength, "count", len(r.Header))
	return nil
}

// SendBody copies exactly ContentLength bytes from src to the upstream, one
// Send per read. Short reads are fine. It never reads more than the bytes
// still owed, so src may be positioned on the client connection itself.
//
// If src runs out first (EOF, or a read of zero bytes) SendBody returns an
// error wrapping ErrBodyTruncated.
func (u *Upstream) SendBody(src io.Reader) error {
	total := u.req.ContentLength
	remaining := total
	if remaining <= 0 {
		return nil
	}

	bp := getChunk()
	defer putChunk(bp)
	buf := *bp

	for remaining > 0 {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, err := src.Read(chunk)
		if n > 0 {
			if werr := u.Send(chunk[:n]); werr != nil {
				return werr
			}
			remaining -= int64(n)
		}
		if remaining <= 0 {
			break
		}

		if err != nil && !errors.Is(err, io.EOF) {
			u.cfg.Metrics.Error(PhaseBody)
			return fmt.Errorf("relay read body: %w", err)
		}
		if err != nil || n == 0 {
			u.cfg.Metrics.Error(PhaseBody)
			return fmt.Errorf("%w (%d of %d bytes sent)", ErrBodyTruncated, total-remaining, total)
		}
	}

	u.log.Debug("sent body", "bytes", total)
	return nil
}

// Send writes p to the upstream unchanged.
func (u *Upstream) Send(p []byte) error {
	return u.write(PhaseBody, p)
}

// Flush pushes any bytes buffered by the connection. Plain TCP connections
// have no buffer, so this is usually a no-op.
func (u *Upstream) Flush() error {
	f, ok := u.conn.(interface{ Flush() error })
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		u.cfg.Metrics.Error(PhaseFlush)
		return &WriteError{Phase: PhaseFlush, Err: err}
	}
	return nil
}

func (u *Upstream) write(phase string, p []byte) error {
	n, err := u.conn.Write(p)
	u.cfg.Metrics.Written(phase, n)
	if err != nil {
		u.cfg.Metrics.Error(phase)
		return &WriteError{Phase: phase, Err: err}
	}
	return nil
}

func validateFirstLine(r *Request) error {
	if !httpguts.ValidHeaderFieldName(r.Method) {
		return invalidField("method", r.Method)
	}
	if !validRequestTarget(r.URI) {
		return invalidField("uri", r.URI)
	}
	if _, _, ok := http.ParseHTTPVersion(r.Proto); !ok {
		return invalidField("version", r.Proto)
	}
	return nil
}

func validateHeaders(r *Request) error {
	if r.Host != "" && !httpguts.ValidHostHeader(r.Host) {
		return invalidField("host", r.Host)
	}
	for _, h := range r.Header {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return invalidField("header name", h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return invalidField("header "+h.Name, h.Value)
		}
	}
	return nil
}

// validRequestTarget rejects empty targets and any byte that would end or
// split the request line.
func validRequestTarget(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

func invalidField(field, value string) error {
	return fmt.Errorf("%w: %s %q", ErrInvalidField, field, value)
}
