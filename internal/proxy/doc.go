// Package proxy implements the client-facing side of hoprelay.
//
// It accepts HTTP/1.x proxy connections, reads each request with
// internal/httpparse, and either tunnels CONNECT requests through the
// configured dialer or relays the request upstream with internal/relay and
// copies the response back. It also holds shared connection plumbing:
// keepalive listeners and bidirectional copy.
package proxy
