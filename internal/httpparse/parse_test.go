package httpparse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/die-net/hoprelay/internal/relay"
)

func parse(t *testing.T, raw string) (*relay.Request, *bufio.Reader, error) {
	t.Helper()
	br := bufio.NewReader(strings.NewReader(raw))
	req, err := ReadRequest(br)
	return req, br, err
}

func TestReadRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want relay.Request
	}{
		{
			name: "origin form",
			raw:  "GET /index.html HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n",
			want: relay.Request{
				Method: "GET", URI: "/index.html", Proto: "HTTP/1.1",
				Host:      "example.com",
				Header:    []relay.HeaderField{{Name: "Accept", Value: "*/*"}},
				KeepAlive: true,
			},
		},
		{
			name: "absolute form overrides host",
			raw:  "GET http://a.test:8080/x HTTP/1.1\r\nHost: b.test\r\n\r\n",
			want: relay.Request{
				Method: "GET", URI: "http://a.test:8080/x", Proto: "HTTP/1.1",
				Host: "a.test:8080", KeepAlive: true,
			},
		},
		{
			name: "content length and order",
			raw:  "POST /submit HTTP/1.1\r\nx-b: 2\r\nContent-Length: 5\r\nX-A:1\r\nhost: example.com\r\n\r\nhello",
			want: relay.Request{
				Method: "POST", URI: "/submit", Proto: "HTTP/1.1",
				Host:          "example.com",
				ContentLength: 5,
				Header:        []relay.HeaderField{{Name: "x-b", Value: "2"}, {Name: "X-A", Value: "1"}},
				KeepAlive:     true,
			},
		},
		{
			name: "hop by hop and connection listed headers dropped",
			raw: "GET / HTTP/1.1\r\nHost: h\r\nConnection: close, X-Secret\r\nKeep-Alive: 5\r\n" +
				"Proxy-Authorization: Basic eA==\r\nX-Secret: s\r\nX-Keep: k\r\nUpgrade: h2c\r\n\r\n",
			want: relay.Request{
				Method: "GET", URI: "/", Proto: "HTTP/1.1",
				Host:   "h",
				Header: []relay.HeaderField{{Name: "X-Keep", Value: "k"}},
			},
		},
		{
			name: "http/1.0 defaults to close",
			raw:  "GET / HTTP/1.0\r\n\r\n",
			want: relay.Request{Method: "GET", URI: "/", Proto: "HTTP/1.0"},
		},
		{
			name: "http/1.0 proxy keep-alive",
			raw:  "GET / HTTP/1.0\r\nProxy-Connection: keep-alive\r\n\r\n",
			want: relay.Request{Method: "GET", URI: "/", Proto: "HTTP/1.0", KeepAlive: true},
		},
		{
			name: "connect uses authority",
			raw:  "CONNECT a.test:443 HTTP/1.1\r\nHost: ignored\r\n\r\n",
			want: relay.Request{Method: "CONNECT", URI: "a.test:443", Proto: "HTTP/1.1", Host: "a.test:443", KeepAlive: true},
		},
		{
			name: "leading blank line and value whitespace",
			raw:  "\r\nGET / HTTP/1.1\r\nX-Pad: \t v \t\r\n\r\n",
			want: relay.Request{
				Method: "GET", URI: "/", Proto: "HTTP/1.1",
				Header:    []relay.HeaderField{{Name: "X-Pad", Value: "v"}},
				KeepAlive: true,
			},
		},
		{
			name: "repeated equal content length",
			raw:  "PUT / HTTP/1.1\r\nContent-Length: 3\r\nContent-Length: 3\r\n\r\nabc",
			want: relay.Request{Method: "PUT", URI: "/", Proto: "HTTP/1.1", ContentLength: 3, KeepAlive: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _, err := parse(t, tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(&tt.want, got); diff != "" {
				t.Fatalf("request (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadRequestLeavesBody(t *testing.T) {
	t.Parallel()

	req, br, err := parse(t, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloGET / HTTP/1.1\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, req.ContentLength)
	if _, err := io.ReadFull(br, body); err != nil {
		t.Fatal(err)
	}
	if string(body) != "hello" {
		t.Fatalf("body=%q", body)
	}

	next, err := ReadRequest(br)
	if err != nil {
		t.Fatal(err)
	}
	if next.Method != "GET" {
		t.Fatalf("pipelined request method=%q", next.Method)
	}
}

func TestReadRequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"two part request line", "GET /\r\n\r\n", ErrMalformed},
		{"bad version", "GET / HTTP/2.0\r\n\r\n", ErrMalformed},
		{"garbage version", "GET / FTP\r\n\r\n", ErrMalformed},
		{"header without colon", "GET / HTTP/1.1\r\nNoColon\r\n\r\n", ErrMalformed},
		{"space before colon", "GET / HTTP/1.1\r\nHost : x\r\n\r\n", ErrMalformed},
		{"folded header", "GET / HTTP/1.1\r\nX-A: 1\r\n 2\r\n\r\n", ErrMalformed},
		{"duplicate host", "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n", ErrMalformed},
		{"negative length", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", ErrMalformed},
		{"signed length", "POST / HTTP/1.1\r\nContent-Length: +1\r\n\r\n", ErrMalformed},
		{"list length", "POST / HTTP/1.1\r\nContent-Length: 5, 6\r\n\r\n", ErrMalformed},
		{"conflicting length", "POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\n", ErrMalformed},
		{"chunked", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", ErrChunkedUnsupported},
		{"truncated head", "GET / HTTP/1.1\r\nX-A: 1\r\n", io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := parse(t, tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestReadRequestEOF(t *testing.T) {
	t.Parallel()

	_, _, err := parse(t, "")
	if err != io.EOF {
		t.Fatalf("got %v want io.EOF", err)
	}
}

func TestMaxHeaderBytes(t *testing.T) {
	t.Parallel()

	raw := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 100) + "\r\n\r\n"
	p := Parser{MaxHeaderBytes: 64}
	if _, err := p.ReadRequest(bufio.NewReader(strings.NewReader(raw))); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("got %v", err)
	}

	p = Parser{MaxHeaderBytes: -1}
	if _, err := p.ReadRequest(bufio.NewReader(strings.NewReader(raw))); err != nil {
		t.Fatal(err)
	}
}

// endlessLine yields 'a' forever and counts the bytes handed out.
type endlessLine struct{ n int }

func (r *endlessLine) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 'a'
	}
	r.n += len(b)
	return len(b), nil
}

func TestMaxHeaderBytesUnterminatedLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
	}{
		{"request line", "GET /"},
		{"header line", "GET / HTTP/1.1\r\nX-Big: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &endlessLine{}
			r := io.MultiReader(strings.NewReader(tt.prefix), io.LimitReader(src, 64<<20))
			p := Parser{MaxHeaderBytes: 1024}
			if _, err := p.ReadRequest(bufio.NewReader(r)); !errors.Is(err, ErrHeaderTooLarge) {
				t.Fatalf("got %v want ErrHeaderTooLarge", err)
			}
			if src.n > 64<<10 {
				t.Errorf("read %d bytes of an unterminated line with a 1024 byte limit", src.n)
			}
		})
	}
}
