// Package transport provides the default DTLS-secured UDP transport the
// session loop drives (spec §4.6, §3's engine.Transport/Dialer contract).
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	piondtls "github.com/pion/dtls/v2"

	"github.com/golioth/golioth-go/engine"
)

// Config carries the credentials and handshake tuning the DTLS dialer
// needs. PSK and certificate auth are mutually exclusive; Golioth device
// credentials are typically PSK-Identity/PSK-Key pairs (spec §2, §4.6).
type Config struct {
	PSKIdentity []byte
	PSKKey      []byte

	Certificates       []tls.Certificate
	InsecureSkipVerify bool

	HandshakeTimeout time.Duration
	KeyLogWriter     io.Writer
}

// Dialer is the default engine.Dialer backed by github.com/pion/dtls/v2,
// following the same dtls.Config/KeyLogWriter/InsecureSkipVerify shape
// as the sample CLI's DTLS dial path.
type Dialer struct {
	cfg Config
}

// NewDialer returns a Dialer that will use cfg for every connection it
// dials.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

func (d *Dialer) Dial(host string, port int) (engine.Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("golioth/transport: resolve %s:%d: %w", host, port, err)
	}

	dtlsCfg := &piondtls.Config{
		InsecureSkipVerify: d.cfg.InsecureSkipVerify,
		Certificates:       d.cfg.Certificates,
		KeyLogWriter:       d.cfg.KeyLogWriter,
	}
	if len(d.cfg.PSKKey) > 0 {
		dtlsCfg.PSK = func([]byte) ([]byte, error) { return d.cfg.PSKKey, nil }
		dtlsCfg.PSKIdentityHint = d.cfg.PSKIdentity
		dtlsCfg.CipherSuites = []piondtls.CipherSuiteID{
			piondtls.TLS_PSK_WITH_AES_128_CCM_8,
			piondtls.TLS_PSK_WITH_AES_128_GCM_SHA256,
		}
	}
	if d.cfg.HandshakeTimeout > 0 {
		dtlsCfg.ConnectContextMaker = func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), d.cfg.HandshakeTimeout)
		}
	}

	conn, err := piondtls.Dial("udp", addr, dtlsCfg)
	if err != nil {
		return nil, fmt.Errorf("golioth/transport: dtls dial: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Conn adapts a *dtls.Conn to engine.Transport.
type Conn struct {
	conn net.Conn
}

func (c *Conn) Send(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

func (c *Conn) Recv(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
