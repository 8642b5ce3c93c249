// Package tproxy relays HTTP from transparently redirected connections.
//
// Each accepted connection's original destination becomes the relay
// upstream, while the Host header keeps whatever the client sent.
//
// On Linux, it listens with IP_TRANSPARENT and retrieves the original
// destination of redirected TCP connections via SO_ORIGINAL_DST (getsockopt).
// This is designed for use with iptables/nftables TPROXY or REDIRECT rules.
//
// On FreeBSD, it listens with IP_BINDANY (protocol-level) and retrieves the
// original destination from the socket's local address (which IPFW fwd and
// PF rdr-to preserve).
//
// On OpenBSD, it listens with SO_BINDANY (socket-level) and retrieves the
// original destination from the socket's local address (which PF rdr-to
// preserves).
//
// On other platforms the listener returns an error and IsSupported is false.
package tproxy
