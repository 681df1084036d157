// Package tcp provides the TCP transport with optional TLS. Writes go
// through a userspace buffer, so Flush carries real batching semantics.
package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"

	"github.com/riptide-net/riptide"
)

// DefaultWriteBufferSize is used when the Provider does not override it.
const DefaultWriteBufferSize = 32 * 1024

// Provider dials and listens on plain or TLS TCP sockets. The zero value is
// ready to use.
type Provider struct {
	ListenConfig    net.ListenConfig
	Dialer          net.Dialer
	WriteBufferSize int
}

func (p *Provider) Listen(ctx context.Context, target riptide.Target) (riptide.Listener, error) {
	ln, err := p.ListenConfig.Listen(ctx, "tcp", target.Addr.String())
	if err != nil {
		return nil, err
	}
	if target.TLS != nil {
		ln = tls.NewListener(ln, target.TLS)
	}
	return &listener{Listener: ln, bufSize: p.bufSize()}, nil
}

func (p *Provider) Dial(ctx context.Context, target riptide.Target) (riptide.Conn, error) {
	raw, err := p.Dialer.DialContext(ctx, "tcp", target.Addr.String())
	if err != nil {
		return nil, err
	}
	if target.TLS != nil {
		tlsConn := tls.Client(raw, target.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, err
		}
		raw = tlsConn
	}
	return newConn(raw, p.bufSize()), nil
}

func (p *Provider) bufSize() int {
	if p.WriteBufferSize <= 0 {
		return DefaultWriteBufferSize
	}
	return p.WriteBufferSize
}

type listener struct {
	net.Listener
	bufSize int
}

// Accept honours ctx only as a pre-check; cancellation is driven by closing
// the listener, which unblocks the pending Accept.
func (l *listener) Accept(ctx context.Context) (riptide.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(raw, l.bufSize), nil
}

type conn struct {
	net.Conn
	bw *bufio.Writer
}

func newConn(raw net.Conn, bufSize int) *conn {
	return &conn{Conn: raw, bw: bufio.NewWriterSize(raw, bufSize)}
}

func (c *conn) Write(b []byte) (int, error) {
	return c.bw.Write(b)
}

func (c *conn) Flush() error {
	return c.bw.Flush()
}

func (c *conn) Close() error {
	// best effort: pending bytes should not be silently dropped by Close
	c.bw.Flush()
	return c.Conn.Close()
}
