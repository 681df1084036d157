// Package quicgo provides the QUIC transport. Each provider-level
// connection maps to one bidirectional stream on a dedicated QUIC
// connection; QUIC writes reach the wire on their own, so Flush is a no-op.
package quicgo

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/riptide-net/riptide"
)

var ErrNoTLSConfig = errors.New("quicgo: TLS config is required")

const (
	// NextProto negotiated when the caller's TLS config names none.
	NextProto = "riptide"

	defaultMaxIdleTimeout = time.Minute

	errCodeDone quic.ApplicationErrorCode = 0x0
)

// Provider dials and listens over QUIC. The zero value is ready to use;
// transport security parameters are mandatory and their absence surfaces
// when the peer starts, not before.
type Provider struct {
	// QUICConfig overrides the default QUIC tuning when non-nil.
	QUICConfig *quic.Config
}

func (p *Provider) Listen(ctx context.Context, target riptide.Target) (riptide.Listener, error) {
	tlsCfg, err := withNextProto(target.TLS)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(target.Addr.String(), tlsCfg, p.quicConfig())
	if err != nil {
		return nil, err
	}
	return &listener{ln: ln}, nil
}

func (p *Provider) Dial(ctx context.Context, target riptide.Target) (riptide.Conn, error) {
	tlsCfg, err := withNextProto(target.TLS)
	if err != nil {
		return nil, err
	}
	qconn, err := quic.DialAddr(ctx, target.Addr.String(), tlsCfg, p.quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(errCodeDone, "no stream")
		return nil, err
	}
	return &conn{Stream: stream, qconn: qconn}, nil
}

func (p *Provider) quicConfig() *quic.Config {
	if p.QUICConfig != nil {
		return p.QUICConfig
	}
	return &quic.Config{
		Versions:       []quic.Version{quic.Version2, quic.Version1},
		MaxIdleTimeout: defaultMaxIdleTimeout,
	}
}

func withNextProto(tlsCfg *tls.Config) (*tls.Config, error) {
	if tlsCfg == nil {
		return nil, ErrNoTLSConfig
	}
	tlsCfg = tlsCfg.Clone()
	if len(tlsCfg.NextProtos) == 0 {
		tlsCfg.NextProtos = []string{NextProto}
	}
	return tlsCfg, nil
}

type listener struct {
	ln *quic.Listener
}

func (l *listener) Addr() net.Addr { return l.ln.Addr() }

func (l *listener) Accept(ctx context.Context) (riptide.Conn, error) {
	qconn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := qconn.AcceptStream(ctx)
	if err != nil {
		qconn.CloseWithError(errCodeDone, "no stream")
		return nil, err
	}
	return &conn{Stream: stream, qconn: qconn}, nil
}

func (l *listener) Close() error { return l.ln.Close() }

type conn struct {
	quic.Stream
	qconn quic.Connection
}

func (c *conn) Flush() error { return nil }

func (c *conn) LocalAddr() net.Addr  { return c.qconn.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.qconn.RemoteAddr() }

func (c *conn) Close() error {
	err := c.Stream.Close()
	c.qconn.CloseWithError(errCodeDone, "done")
	return err
}
