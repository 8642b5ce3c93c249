package relay

import (
	"bufio"
	"io"
	"net/http"
)

// ResponseParser reads a response from the upstream connection. It owns all
// reads from r for the duration of the call, and the returned response's
// Body may keep reading from r afterwards.
type ResponseParser func(r io.Reader) (*http.Response, error)

// HTTPResponseParser returns a ResponseParser built on http.ReadResponse.
// method is the relayed request's method, which decides whether the
// response may carry a body.
//
// The parser keeps one bufio.Reader over the first reader it is given, so
// calling it again reads the response after the previous one: the final
// response after any interim 1xx responses.
func HTTPResponseParser(method string) ResponseParser {
	var br *bufio.Reader
	return func(r io.Reader) (*http.Response, error) {
		if br == nil {
			br = bufio.NewReader(r)
		}
		return http.ReadResponse(br, &http.Request{Method: method})
	}
}

// ReadResponseInfo hands the upstream connection to parse and returns its
// result unchanged. A nil parse uses HTTPResponseParser for the request's
// method.
//
// The connection stays open: the caller must finish with the response body
// before closing the Upstream.
func (u *Upstream) ReadResponseInfo(parse ResponseParser) (*http.Response, error) {
	if parse == nil {
		parse = HTTPResponseParser(u.req.Method)
	}
	return parse(u.conn)
}
