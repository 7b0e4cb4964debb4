package engine

import "errors"

// ErrPeerClosed is the error a Transport's Recv may return when the
// remote end has closed the DTLS session (spec §1: "recv(bytes) -> n |
// WouldBlock | PeerClosed"). The session loop treats any Recv error as a
// closed transport; the default transport.Conn returns the underlying
// connection's error rather than ErrPeerClosed.
var ErrPeerClosed = errors.New("golioth: peer closed")

// Transport is the narrow interface the engine needs from a connected,
// already DTLS-negotiated datagram socket (spec §1). The engine never
// touches certificates, PSKs, or handshake state - that lives entirely
// behind this interface and the Dialer that produces it.
//
// Recv blocks until a datagram arrives or the transport is closed; this
// lets the session loop's dedicated reader goroutine stand
// in for an OS-provided multiplexed wait without needing a separate
// non-blocking poll mode.
type Transport interface {
	Send(b []byte) error
	Recv(buf []byte) (n int, err error)
	Close() error
}

// Dialer produces a Transport for a given host:port, performing whatever
// handshake the concrete transport requires. The default implementation
// (package transport) wraps pion/dtls/v2.
type Dialer interface {
	Dial(host string, port int) (Transport, error)
}
