// Package dialer opens the transport connections the relay writes requests
// onto.
//
// A Dialer either connects directly (resolving names through a shared,
// deduplicating resolver) or tunnels through an upstream HTTP(S) or SOCKS5
// proxy. Which one is used is decided once, from the --upstream URL, by New.
package dialer
