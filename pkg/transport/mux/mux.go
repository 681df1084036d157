// Package mux provides a yamux-multiplexed TCP transport: every stream of
// a session surfaces as an independent provider-level connection, so many
// channels share one socket.
package mux

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/hashicorp/yamux"

	"github.com/riptide-net/riptide"
)

var ErrClosed = errors.New("mux: listener closed")

// Provider dials and listens on TCP sockets multiplexed with yamux. The
// zero value uses yamux defaults.
type Provider struct {
	Config       *yamux.Config
	ListenConfig net.ListenConfig
	Dialer       net.Dialer
}

func (p *Provider) Listen(ctx context.Context, target riptide.Target) (riptide.Listener, error) {
	ln, err := p.ListenConfig.Listen(ctx, "tcp", target.Addr.String())
	if err != nil {
		return nil, err
	}
	if target.TLS != nil {
		ln = tls.NewListener(ln, target.TLS)
	}

	l := &listener{
		ln:      ln,
		cfg:     p.Config,
		streams: make(chan *yamux.Stream),
		done:    make(chan struct{}),
	}
	go l.run()
	return l, nil
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

	sess, err := yamux.Client(raw, p.Config)
	if err != nil {
		raw.Close()
		return nil, err
	}
	stream, err := sess.OpenStream()
	if err != nil {
		sess.Close()
		return nil, err
	}
	return &conn{Stream: stream, sess: sess}, nil
}

type listener struct {
	ln      net.Listener
	cfg     *yamux.Config
	streams chan *yamux.Stream
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	sessions []*yamux.Session
}

func (l *listener) Addr() net.Addr { return l.ln.Addr() }

func (l *listener) run() {
	for {
		raw, err := l.ln.Accept()
		if err != nil {
			return
		}
		sess, err := yamux.Server(raw, l.cfg)
		if err != nil {
			raw.Close()
			continue
		}
		l.mu.Lock()
		l.sessions = append(l.sessions, sess)
		l.mu.Unlock()
		go l.serveSession(sess)
	}
}

func (l *listener) serveSession(sess *yamux.Session) {
	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			return
		}
		select {
		case l.streams <- stream:
		case <-l.done:
			stream.Close()
			return
		}
	}
}

func (l *listener) Accept(ctx context.Context) (riptide.Conn, error) {
	select {
	case stream := <-l.streams:
		return &conn{Stream: stream}, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ln.Close()
		l.mu.Lock()
		for _, sess := range l.sessions {
			sess.Close()
		}
		l.mu.Unlock()
	})
	return err
}

type conn struct {
	*yamux.Stream

	// sess is owned only on the dial side, where closing the single
	// stream should tear down the whole session
	sess *yamux.Session
}

func (c *conn) Flush() error { return nil }

func (c *conn) Close() error {
	err := c.Stream.Close()
	if c.sess != nil {
		c.sess.Close()
	}
	return err
}
