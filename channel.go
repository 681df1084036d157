package riptide

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/riptide-net/riptide/pkg/codec"
)

// Channel is one live connection exposed as an inbound lazy sequence paired
// with an outbound sink. Channels are single-owner: the peer hands exactly
// one Channel to exactly one handler invocation, and releases it when the
// connection closes or the peer shuts down.
type Channel[IN, OUT any] interface {
	Inbound() Inbound[IN]
	Outbound() Outbound[OUT]

	// Delegate exposes the raw transport connection, or nil when the peer
	// keeps transport internals hidden (the default).
	Delegate() Conn

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	Close() error
}

type duplex[IN, OUT any] struct {
	conn    Conn
	in      *receiver[IN]
	out     *sender[OUT]
	cancel  context.CancelFunc
	onClose func()

	closeOnce sync.Once
	closeErr  error
}

func newDuplex[IN, OUT any](
	parent context.Context,
	conn Conn,
	dec codec.Decoder[IN],
	enc codec.Encoder[OUT],
	cfg config,
	tele telemetry,
	onClose func(),
) *duplex[IN, OUT] {
	ctx, cancel := context.WithCancel(parent)
	d := &duplex[IN, OUT]{
		conn:    conn,
		cancel:  cancel,
		onClose: onClose,
	}
	d.out = newSender(conn, enc, cfg, tele)
	d.in = newReceiver(conn, dec, cfg.capacity, tele, func(err error) {
		// a broken inbound sequence cancels in-flight writes and releases
		// the channel; clean completion leaves the write side open
		if err != nil && err != io.EOF {
			d.out.abort(err)
			d.Close()
		}
	})
	go d.in.run(ctx)
	return d
}

func (d *duplex[IN, OUT]) Inbound() Inbound[IN]    { return d.in }
func (d *duplex[IN, OUT]) Outbound() Outbound[OUT] { return d.out }
func (d *duplex[IN, OUT]) Delegate() Conn          { return d.out.Delegate() }
func (d *duplex[IN, OUT]) LocalAddr() net.Addr     { return d.conn.LocalAddr() }
func (d *duplex[IN, OUT]) RemoteAddr() net.Addr    { return d.conn.RemoteAddr() }

func (d *duplex[IN, OUT]) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.out.abort(ErrChannelClosed)
		d.closeErr = d.conn.Close()
		if d.onClose != nil {
			d.onClose()
		}
	})
	return d.closeErr
}

// InboundFunc adapts an ordinary function to an Inbound sequence.
type InboundFunc[IN any] func(ctx context.Context) (IN, error)

func (fn InboundFunc[IN]) Receive(ctx context.Context) (IN, error) {
	return fn(ctx)
}

// NewChannel layers a new item-type pair on top of an existing channel.
// Lifecycle operations and transport metadata keep delegating to the base;
// only the typed views are replaced. This is the building block for
// preprocessors.
func NewChannel[IN, OUT, BIN, BOUT any](base Channel[BIN, BOUT], in Inbound[IN], out Outbound[OUT]) Channel[IN, OUT] {
	return &layered[IN, OUT, BIN, BOUT]{base: base, in: in, out: out}
}

type layered[IN, OUT, BIN, BOUT any] struct {
	base Channel[BIN, BOUT]
	in   Inbound[IN]
	out  Outbound[OUT]
}

func (l *layered[IN, OUT, BIN, BOUT]) Inbound() Inbound[IN]    { return l.in }
func (l *layered[IN, OUT, BIN, BOUT]) Outbound() Outbound[OUT] { return l.out }
func (l *layered[IN, OUT, BIN, BOUT]) Delegate() Conn          { return l.base.Delegate() }
func (l *layered[IN, OUT, BIN, BOUT]) LocalAddr() net.Addr     { return l.base.LocalAddr() }
func (l *layered[IN, OUT, BIN, BOUT]) RemoteAddr() net.Addr    { return l.base.RemoteAddr() }
func (l *layered[IN, OUT, BIN, BOUT]) Close() error            { return l.base.Close() }

// MapInbound converts each received item through fn.
func MapInbound[A, B any](in Inbound[A], fn func(A) (B, error)) Inbound[B] {
	return InboundFunc[B](func(ctx context.Context) (B, error) {
		var zero B
		item, err := in.Receive(ctx)
		if err != nil {
			return zero, err
		}
		return fn(item)
	})
}

// MapOutbound converts each item of type B through fn before handing it to
// the underlying outbound of type A.
func MapOutbound[A, B any](out Outbound[A], fn func(B) (A, error)) Outbound[B] {
	return &mappedOutbound[A, B]{out: out, fn: fn}
}

type mappedOutbound[A, B any] struct {
	out Outbound[A]
	fn  func(B) (A, error)
}

func (m *mappedOutbound[A, B]) mapSource(src Source[B]) Source[A] {
	return SourceFunc[A](func(ctx context.Context) (A, error) {
		var zero A
		item, err := src.Next(ctx)
		if err != nil {
			return zero, err
		}
		return m.fn(item)
	})
}

func (m *mappedOutbound[A, B]) Send(ctx context.Context, src Source[B]) error {
	return m.out.Send(ctx, m.mapSource(src))
}

func (m *mappedOutbound[A, B]) SendBatches(ctx context.Context, batches Source[Source[B]]) error {
	return m.out.SendBatches(ctx, SourceFunc[Source[A]](func(ctx context.Context) (Source[A], error) {
		inner, err := batches.Next(ctx)
		if err != nil {
			return nil, err
		}
		return m.mapSource(inner), nil
	}))
}

func (m *mappedOutbound[A, B]) Delegate() Conn       { return m.out.Delegate() }
func (m *mappedOutbound[A, B]) Scheduler() Scheduler { return m.out.Scheduler() }
