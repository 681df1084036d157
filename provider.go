package riptide

import (
	"context"
	"crypto/tls"
	"io"
	"net"
)

// Target names where a provider should bind or connect, plus the transport
// security parameters to negotiate with. A nil TLS config means plaintext;
// providers that mandate encryption reject it at listen/dial time.
type Target struct {
	Addr net.Addr
	TLS  *tls.Config
}

// Provider is the transport capability set the core consumes. It is
// injected explicitly at peer construction; the core never discovers an
// implementation on its own.
type Provider interface {
	Listen(ctx context.Context, target Target) (Listener, error)
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Listener yields raw connections accepted from the network.
type Listener interface {
	Addr() net.Addr
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one raw bidirectional connection. Flush pushes buffered writes to
// the wire; providers without a userspace write buffer implement it as a
// no-op.
type Conn interface {
	io.Reader
	io.Writer
	Flush() error
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
