package riptide

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
)

// Preprocessor adapts a channel of one item-type pair into a channel of
// another, layering a protocol (framing, encryption, translation) on top of
// whatever the base peer emits.
type Preprocessor[IN, OUT, NEWIN, NEWOUT any] func(Channel[IN, OUT]) Channel[NEWIN, NEWOUT]

// Preprocess returns a new peer wrapping base: its Start delegates inward
// with a handler that first applies transform to every raw channel, and its
// Shutdown delegates inward unchanged. Wrapping is compositional; applying
// a second preprocessor wraps a new peer around the first.
//
// The wrapper's start-reentry policy defaults to lenient regardless of the
// base peer's, so a protocol layer can be attached to an already-configured
// peer without fighting its start-once policy. Override with
// WithFailOnStarted. Only lifecycle-policy options apply to the wrapper;
// transport and channel tuning stay with the base peer.
func Preprocess[IN, OUT, NEWIN, NEWOUT any](
	base Peer[IN, OUT],
	transform Preprocessor[IN, OUT, NEWIN, NEWOUT],
	opts ...Option,
) (Peer[NEWIN, NEWOUT], error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	if transform == nil {
		return nil, fmt.Errorf("%w: nil preprocessor", ErrInvalidCfg)
	}
	return &preprocessedPeer[IN, OUT, NEWIN, NEWOUT]{
		base:          base,
		transform:     transform,
		failOnStarted: cfg.failOnStarted,
	}, nil
}

type preprocessedPeer[IN, OUT, NEWIN, NEWOUT any] struct {
	base          Peer[IN, OUT]
	transform     Preprocessor[IN, OUT, NEWIN, NEWOUT]
	failOnStarted bool

	state atomic.Int32
}

func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) Start(ctx context.Context, handler Handler[NEWIN, NEWOUT]) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidCfg)
	}

	var prev State
	switch {
	case p.state.CompareAndSwap(int32(StateNew), int32(StateStarting)):
		prev = StateNew
	case p.state.CompareAndSwap(int32(StateShutdown), int32(StateStarting)):
		prev = StateShutdown
	default:
		if p.failOnStarted {
			return ErrAlreadyStarted
		}
		return nil
	}

	err := p.base.Start(ctx, func(ch Channel[IN, OUT]) error {
		return handler(p.transform(ch))
	})
	if err != nil {
		p.state.Store(int32(prev))
		return err
	}
	p.state.Store(int32(StateStarted))
	return nil
}

func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) Shutdown(ctx context.Context) error {
	err := p.base.Shutdown(ctx)
	p.state.Store(int32(StateShutdown))
	return err
}

// ListenAddr reports the innermost peer's address: a wrapped peer never has
// an address of its own.
func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) ListenAddr() net.Addr {
	return p.base.ListenAddr()
}

func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) State() State {
	return State(p.state.Load())
}

func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) String() string {
	return fmt.Sprintf("peer:%s", p.ListenAddr())
}

func (p *preprocessedPeer[IN, OUT, NEWIN, NEWOUT]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", fmt.Sprint(p.ListenAddr())),
		slog.String("state", p.State().String()),
	)
}
