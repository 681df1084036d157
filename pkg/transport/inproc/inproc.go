// Package inproc provides an in-memory transport backed by net.Pipe. It
// exists for tests and examples that need real channel semantics without a
// socket.
package inproc

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/riptide-net/riptide"
)

var (
	ErrAddrInUse = errors.New("inproc: address already in use")
	ErrRefused   = errors.New("inproc: connection refused")
	ErrClosed    = errors.New("inproc: listener closed")
)

// Addr is an inproc address: any non-empty string names an endpoint inside
// one Provider's namespace.
type Addr string

func (a Addr) Network() string { return "inproc" }
func (a Addr) String() string  { return string(a) }

// Provider is one private address namespace. Listeners and dialers only see
// each other through the same Provider value.
type Provider struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Provider {
	return &Provider{listeners: make(map[string]*listener)}
}

func (p *Provider) Listen(ctx context.Context, target riptide.Target) (riptide.Listener, error) {
	name := target.Addr.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.listeners[name]; taken {
		return nil, ErrAddrInUse
	}
	l := &listener{
		provider: p,
		addr:     Addr(name),
		pending:  make(chan net.Conn),
		done:     make(chan struct{}),
	}
	p.listeners[name] = l
	return l, nil
}

func (p *Provider) Dial(ctx context.Context, target riptide.Target) (riptide.Conn, error) {
	p.mu.Lock()
	l, ok := p.listeners[target.Addr.String()]
	p.mu.Unlock()
	if !ok {
		return nil, ErrRefused
	}

	c1, c2 := net.Pipe()
	select {
	case l.pending <- c2:
		return &conn{Conn: c1, local: Addr("dialer"), remote: l.addr}, nil
	case <-l.done:
		c1.Close()
		c2.Close()
		return nil, ErrRefused
	case <-ctx.Done():
		c1.Close()
		c2.Close()
		return nil, ctx.Err()
	}
}

func (p *Provider) forget(name string) {
	p.mu.Lock()
	delete(p.listeners, name)
	p.mu.Unlock()
}

type listener struct {
	provider *Provider
	addr     Addr
	pending  chan net.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *listener) Addr() net.Addr { return l.addr }

func (l *listener) Accept(ctx context.Context) (riptide.Conn, error) {
	select {
	case raw := <-l.pending:
		return &conn{Conn: raw, local: l.addr, remote: Addr("dialer")}, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.provider.forget(string(l.addr))
	})
	return nil
}

type conn struct {
	net.Conn
	local  Addr
	remote Addr
}

func (c *conn) Flush() error        { return nil }
func (c *conn) LocalAddr() net.Addr { return c.local }

func (c *conn) RemoteAddr() net.Addr { return c.remote }
