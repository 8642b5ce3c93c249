package socks5

import (
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate runs the server side of method negotiation. A non-empty
// auth.Username requires the client to authenticate with those credentials.
func ServerNegotiate(conn net.Conn, auth Auth) error {
	req, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 negotiation request: %w", err)
	}

	want := byte(txsocks5.MethodNone)
	if auth.Username != "" {
		want = txsocks5.MethodUsernamePassword
	}
	if !slices.Contains(req.Methods, want) {
		// RFC 1928: 0xFF means no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
		return ErrNoAcceptableMethod
	}
	if _, err := txsocks5.NewNegotiationReply(want).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 negotiation reply: %w", err)
	}
	if want == txsocks5.MethodNone {
		return nil
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 userpass request: %w", err)
	}
	if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 userpass reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads a client command and returns it with its
// destination as host:port.
func ServerReadRequest(conn net.Conn) (cmd byte, address string, err error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return 0, "", fmt.Errorf("socks5 request: %w", err)
	}
	return req.Cmd, req.Address(), nil
}
