// Package httpparse reads client requests off a proxy connection into the
// ordered form the relay writes upstream.
package httpparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/die-net/hoprelay/internal/relay"
)

var (
	ErrMalformed          = errors.New("httpparse: malformed request")
	ErrHeaderTooLarge     = errors.New("httpparse: request header too large")
	ErrChunkedUnsupported = errors.New("httpparse: request transfer-encoding not supported")
)

// DefaultMaxHeaderBytes matches net/http.DefaultMaxHeaderBytes.
const DefaultMaxHeaderBytes = http.DefaultMaxHeaderBytes

// Parser reads requests. The zero value applies DefaultMaxHeaderBytes.
type Parser struct {
	// MaxHeaderBytes limits the request line plus headers, counting line
	// endings. It is enforced while reading. Negative means no limit.
	MaxHeaderBytes int
}

// ReadRequest reads one request head from br using a zero Parser.
func ReadRequest(br *bufio.Reader) (*relay.Request, error) {
	var p Parser
	return p.ReadRequest(br)
}

// ReadRequest reads a request line and headers from br. The body, if any,
// is left unread in br: exactly ContentLength bytes follow.
//
// Host and Content-Length are moved into their derived fields; hop-by-hop
// headers, and any named by Connection, are dropped. The remaining headers
// keep the client's order and spelling.
//
// io.EOF is returned unwrapped when br ends before a request starts.
func (p *Parser) ReadRequest(br *bufio.Reader) (*relay.Request, error) {
	budget := p.MaxHeaderBytes
	switch {
	case budget == 0:
		budget = DefaultMaxHeaderBytes
	case budget < 0:
		budget = -1
	}

	var line string
	for {
		var err error
		line, err = readLine(br, &budget)
		if err != nil {
			return nil, err
		}
		// Ignore empty lines before the request line (RFC 9112 section 2.2).
		if line != "" {
			break
		}
	}

	method, rest, ok1 := strings.Cut(line, " ")
	uri, proto, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || method == "" || uri == "" {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformed, line)
	}
	major, minor, ok := http.ParseHTTPVersion(proto)
	if !ok || major != 1 {
		return nil, fmt.Errorf("%w: version %q", ErrMalformed, proto)
	}

	req := &relay.Request{Method: method, URI: uri, Proto: proto}

	var (
		fields     []relay.HeaderField
		connTokens []string
		hostSeen   bool
		clSeen     bool
	)
	for {
		l, err := readLine(br, &budget)
		if err != nil {
			if errors.Is(err, ErrHeaderTooLarge) {
				return nil, err
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("httpparse: reading headers: %w", err)
		}
		if l == "" {
			break
		}
		if l[0] == ' ' || l[0] == '\t' {
			return nil, fmt.Errorf("%w: obsolete line folding", ErrMalformed)
		}

		name, value, ok := strings.Cut(l, ":")
		if !ok || name == "" || strings.TrimRight(name, " \t") != name {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformed, l)
		}
		value = strings.Trim(value, " \t")

		switch key := textproto.CanonicalMIMEHeaderKey(name); key {
		case "Host":
			if hostSeen {
				return nil, fmt.Errorf("%w: duplicate Host", ErrMalformed)
			}
			hostSeen = true
			req.Host = value
		case "Content-Length":
			n, err := parseContentLength(value)
			if err != nil {
				return nil, err
			}
			if clSeen && n != req.ContentLength {
				return nil, fmt.Errorf("%w: conflicting Content-Length", ErrMalformed)
			}
			clSeen = true
			req.ContentLength = n
		case "Transfer-Encoding":
			return nil, ErrChunkedUnsupported
		case "Connection", "Proxy-Connection":
			for _, tok := range strings.Split(value, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					connTokens = append(connTokens, textproto.CanonicalMIMEHeaderKey(tok))
				}
			}
		default:
			if !isHopByHop(key) {
				fields = append(fields, relay.HeaderField{Name: name, Value: value})
			}
		}
	}

	req.Header = dropListed(fields, connTokens)
	req.KeepAlive = keepAlive(minor, connTokens)

	if method == http.MethodConnect {
		req.Host = uri
	} else if u, err := url.ParseRequestURI(uri); err == nil && u.Host != "" {
		// An absolute-form target overrides the Host header.
		req.Host = u.Host
	}

	return req, nil
}

// readLine reads one line from br and strips its LF or CRLF ending. The
// bytes read, line ending included, are charged to *budget as they arrive,
// so a line without a terminator fails with ErrHeaderTooLarge after at most
// one more buffer fill. A budget of -1 is unlimited.
//
// io.EOF is returned only when br ends before the line starts.
func readLine(br *bufio.Reader, budget *int) (string, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if *budget >= 0 {
			if len(chunk) > *budget {
				return "", ErrHeaderTooLarge
			}
			*budget -= len(chunk)
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		break
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

func parseContentLength(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 || strings.HasPrefix(v, "+") {
		return 0, fmt.Errorf("%w: Content-Length %q", ErrMalformed, v)
	}
	return n, nil
}

// isHopByHop reports whether the canonical header name applies only to the
// client connection and must not be forwarded.
func isHopByHop(name string) bool {
	switch name {
	case
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Te",
		"Trailer",
		"Transfer-Encoding",
		"Upgrade":
		return true
	default:
		return false
	}
}

func dropListed(fields []relay.HeaderField, tokens []string) []relay.HeaderField {
	if len(tokens) == 0 {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		listed := false
		for _, tok := range tokens {
			if textproto.CanonicalMIMEHeaderKey(f.Name) == tok {
				listed = true
				break
			}
		}
		if !listed {
			out = append(out, f)
		}
	}
	return out
}

func keepAlive(minor int, tokens []string) bool {
	for _, tok := range tokens {
		switch tok {
		case "Close":
			return false
		case "Keep-Alive":
			return true
		}
	}
	return minor >= 1
}
