// Package socks5 performs the SOCKS5 handshakes hoprelay needs when the
// upstream transport is a SOCKS5 proxy.
//
// It is a thin layer over the message types in github.com/txthinking/socks5:
// the client half negotiates (optionally with username/password) and issues
// CONNECT, the server half is just enough to stand in for a SOCKS5 proxy.
package socks5

import (
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// CmdConnect is the SOCKS5 CONNECT command value.
const CmdConnect = txsocks5.CmdConnect

// Reply codes used by WriteReply.
const (
	RepSuccess           = txsocks5.RepSuccess
	RepConnectionRefused = txsocks5.RepConnectionRefused
	RepHostUnreachable   = txsocks5.RepHostUnreachable
)

// Auth holds optional username/password credentials.
type Auth struct {
	Username string
	Password string
}

// WriteReply writes a CONNECT reply with the given code. bound is reported
// as the bound address when non-nil, otherwise the IPv4 zero address.
func WriteReply(conn net.Conn, rep byte, bound net.Addr) error {
	atyp, addr, port := byte(txsocks5.ATYPIPv4), []byte{0, 0, 0, 0}, []byte{0, 0}
	if bound != nil {
		a, ad, p, err := txsocks5.ParseAddress(bound.String())
		if err != nil {
			return err
		}
		if a == txsocks5.ATYPDomain {
			ad = ad[1:]
		}
		atyp, addr, port = a, ad, p
	}
	_, err := txsocks5.NewReply(rep, atyp, addr, port).WriteTo(conn)
	return err
}
