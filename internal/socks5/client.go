package socks5

import (
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

var (
	// ErrAuthFailed is returned when the proxy rejects or demands credentials.
	ErrAuthFailed = errors.New("socks5: authentication failed")
	// ErrNoAcceptableMethod is returned when the proxy accepts none of the
	// offered authentication methods.
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable authentication method")
)

// ClientHandshake negotiates with the SOCKS5 proxy on conn and asks it to
// CONNECT to address. On success conn carries the tunnelled stream.
func ClientHandshake(conn net.Conn, auth Auth, address string) error {
	if err := negotiate(conn, auth); err != nil {
		return err
	}
	return connect(conn, address)
}

func negotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 negotiation write: %w", err)
	}

	rep, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 negotiation read: %w", err)
	}

	switch rep.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return fmt.Errorf("%w: proxy requires username/password", ErrAuthFailed)
		}
		req := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password))
		if _, err := req.WriteTo(conn); err != nil {
			return fmt.Errorf("socks5 userpass write: %w", err)
		}
		urep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("socks5 userpass read: %w", err)
		}
		if urep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	default:
		return fmt.Errorf("%w (got %#x)", ErrNoAcceptableMethod, rep.Method)
	}
}

func connect(conn net.Conn, address string) error {
	atyp, addr, port, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("socks5 parse address %q: %w", address, err)
	}
	if atyp == txsocks5.ATYPDomain {
		addr = addr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5 connect write: %w", err)
	}
	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5 connect read: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return &ReplyError{Code: rep.Rep}
	}
	return nil
}

// ReplyError is a non-success CONNECT reply.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5 connect failed: reply %#x", e.Code)
}

// Refused reports whether the proxy said the destination refused the
// connection.
func (e *ReplyError) Refused() bool {
	return e.Code == txsocks5.RepConnectionRefused
}
