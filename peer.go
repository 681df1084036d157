package riptide

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/riptide-net/riptide/pkg/codec"
)

// State of a peer's lifecycle. A peer moves through
// New → Starting → Started → ShuttingDown → Shutdown exactly once per
// logical start; a shut-down peer may be started again.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateStarted
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutdown:
		return "shutdown"
	}
	panic("unreachable")
}

// Handler owns one channel's logical unit of work. Its return governs that
// unit only: returning does not close the connection, which stays
// transport- or shutdown-driven. A non-nil error cancels the channel's
// in-flight sends.
type Handler[IN, OUT any] func(Channel[IN, OUT]) error

// Peer is an endpoint, listening or connecting, that produces channels and
// owns their collective lifecycle.
type Peer[IN, OUT any] interface {
	// Start begins listening or connecting through the transport provider
	// and invokes the handler for every channel produced. Starting an
	// already-started peer fails with ErrAlreadyStarted under the strict
	// policy, otherwise it is a no-op success.
	Start(ctx context.Context, handler Handler[IN, OUT]) error

	// Shutdown stops accepting, closes open channels and resolves when
	// teardown completes. It is idempotent from any state.
	Shutdown(ctx context.Context) error

	// ListenAddr reports the bound address once started (resolved port
	// included); wrapped peers report the innermost peer's address.
	ListenAddr() net.Addr

	State() State
}

type peer[IN, OUT any] struct {
	provider Provider
	dec      codec.Decoder[IN]
	enc      codec.Encoder[OUT]
	cfg      config
	tele     telemetry
	remote   net.Addr // connecting peer when non-nil

	state    atomic.Int32
	settleLk sync.Mutex
	settled  *sync.Cond

	lk        sync.Mutex
	ln        Listener
	boundAddr net.Addr
	runCancel context.CancelFunc

	chansLk sync.Mutex
	chans   map[io.Closer]struct{}

	wg sync.WaitGroup
}

// NewServerPeer builds a listening peer. Without WithListenOn it binds to
// 127.0.0.1:12012.
func NewServerPeer[IN, OUT any](
	provider Provider,
	dec codec.Decoder[IN],
	enc codec.Encoder[OUT],
	opts ...Option,
) (Peer[IN, OUT], error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	if cfg.bindAddr == nil {
		cfg.bindAddr = &net.TCPAddr{IP: net.ParseIP(DefaultBindAddress), Port: DefaultPort}
	}
	p := &peer[IN, OUT]{
		provider: provider,
		dec:      dec,
		enc:      enc,
		cfg:      cfg,
		tele:     cfg.telemetry(),
		chans:    make(map[io.Closer]struct{}),
	}
	p.settled = sync.NewCond(&p.settleLk)
	return p, nil
}

// NewClientPeer builds a connecting peer that emits exactly one channel per
// start.
func NewClientPeer[IN, OUT any](
	provider Provider,
	dec codec.Decoder[IN],
	enc codec.Encoder[OUT],
	remote net.Addr,
	opts ...Option,
) (Peer[IN, OUT], error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, err)
	}
	if remote == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCfg, ErrNoAddress)
	}
	p := &peer[IN, OUT]{
		provider: provider,
		dec:      dec,
		enc:      enc,
		cfg:      cfg,
		tele:     cfg.telemetry(),
		remote:   remote,
		chans:    make(map[io.Closer]struct{}),
	}
	p.settled = sync.NewCond(&p.settleLk)
	return p, nil
}

func (p *peer[IN, OUT]) Start(ctx context.Context, handler Handler[IN, OUT]) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidCfg)
	}

	prev, entered := p.enterStarting()
	if !entered {
		if p.cfg.failOnStarted {
			return ErrAlreadyStarted
		}
		return nil
	}

	if err := p.validate(); err != nil {
		p.setState(prev)
		return err
	}

	// channels outlive the Start call; their lifetime is bound to the
	// peer, not to the caller's context
	runCtx, cancel := context.WithCancel(context.Background())

	if p.remote != nil {
		conn, err := p.provider.Dial(ctx, Target{Addr: p.remote, TLS: p.cfg.tlsCfg})
		if err != nil {
			cancel()
			p.setState(prev)
			p.tele.incr(MetricConnErrorCount)
			return fmt.Errorf("peer: dial %s: %w", p.remote, err)
		}

		p.lk.Lock()
		p.runCancel = cancel
		p.lk.Unlock()
		p.setState(StateStarted)
		p.tele.incr(MetricConnOutCount)
		p.tele.logger.Info("peer connected", LabelRemoteAddr.L(conn.RemoteAddr()))

		p.wg.Add(1)
		go p.serve(runCtx, conn, handler)
		return nil
	}

	ln, err := p.provider.Listen(ctx, Target{Addr: p.cfg.bindAddr, TLS: p.cfg.tlsCfg})
	if err != nil {
		cancel()
		p.setState(prev)
		p.tele.incr(MetricConnErrorCount)
		return fmt.Errorf("peer: bind %s: %w", p.cfg.bindAddr, err)
	}

	p.lk.Lock()
	p.ln = ln
	p.boundAddr = ln.Addr()
	p.runCancel = cancel
	p.lk.Unlock()
	p.setState(StateStarted)
	p.tele.logger.Info("peer listening", LabelLocalAddr.L(ln.Addr()))

	p.wg.Add(1)
	go p.acceptLoop(runCtx, ln, handler)
	return nil
}

func (p *peer[IN, OUT]) enterStarting() (State, bool) {
	if p.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return StateNew, true
	}
	if p.state.CompareAndSwap(int32(StateShutdown), int32(StateStarting)) {
		return StateShutdown, true
	}
	return StateNew, false
}

// setState publishes a transition out of StateStarting so a concurrent
// Shutdown can wait for the start to settle instead of polling.
func (p *peer[IN, OUT]) setState(s State) {
	p.settleLk.Lock()
	p.state.Store(int32(s))
	p.settleLk.Unlock()
	p.settled.Broadcast()
}

func (p *peer[IN, OUT]) waitSettled() {
	p.settleLk.Lock()
	for State(p.state.Load()) == StateStarting {
		p.settled.Wait()
	}
	p.settleLk.Unlock()
}

func (p *peer[IN, OUT]) validate() error {
	if p.remote == nil && p.cfg.bindAddr == nil {
		return fmt.Errorf("%w: %w", ErrInvalidCfg, ErrNoAddress)
	}
	if p.cfg.secure && p.cfg.tlsCfg == nil {
		return fmt.Errorf("%w: %w", ErrInvalidCfg, ErrSecurityParams)
	}
	return nil
}

func (p *peer[IN, OUT]) acceptLoop(ctx context.Context, ln Listener, handler Handler[IN, OUT]) {
	defer p.wg.Done()
	b := &backoff.Backoff{Max: time.Minute, Jitter: true}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || p.State() >= StateShuttingDown {
				p.tele.logger.Debug("listener shutting down")
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				retry := b.Duration()
				p.tele.incr(MetricAcceptRetryCount)
				p.tele.logger.Debug("failed to accept connection",
					LabelError.L(err), slog.Duration("retry", retry))
				time.Sleep(retry)
				continue
			}
			p.tele.incr(MetricConnErrorCount)
			p.tele.logger.Warn("unexpected listener closure", LabelError.L(err))
			return
		}

		b.Reset()
		p.tele.incr(MetricConnInCount)
		p.wg.Add(1)
		go p.serve(ctx, conn, handler)
	}
}

func (p *peer[IN, OUT]) serve(ctx context.Context, conn Conn, handler Handler[IN, OUT]) {
	defer p.wg.Done()

	var ch *duplex[IN, OUT]
	ch = newDuplex(ctx, conn, p.dec, p.enc, p.cfg, p.tele, func() { p.forget(ch) })
	p.track(ch)

	if err := handler(ch); err != nil {
		p.tele.incr(MetricHandlerErrorCount)
		p.tele.logger.Warn("handler failed",
			LabelRemoteAddr.L(conn.RemoteAddr()), LabelError.L(err))
		ch.out.abort(err)
	}
}

func (p *peer[IN, OUT]) track(ch io.Closer) {
	p.chansLk.Lock()
	p.chans[ch] = struct{}{}
	p.chansLk.Unlock()
}

func (p *peer[IN, OUT]) forget(ch io.Closer) {
	p.chansLk.Lock()
	delete(p.chans, ch)
	p.chansLk.Unlock()
}

func (p *peer[IN, OUT]) Shutdown(ctx context.Context) error {
	for {
		switch State(p.state.Load()) {
		case StateNew, StateShutdown, StateShuttingDown:
			return nil
		case StateStarting:
			// let the concurrent start settle before tearing it down
			p.waitSettled()
		case StateStarted:
			if p.state.CompareAndSwap(int32(StateStarted), int32(StateShuttingDown)) {
				return p.teardown(ctx)
			}
		}
	}
}

func (p *peer[IN, OUT]) teardown(ctx context.Context) error {
	p.tele.logger.Info("peer shutting down")

	p.lk.Lock()
	ln := p.ln
	cancel := p.runCancel
	p.ln = nil
	p.runCancel = nil
	p.lk.Unlock()

	if cancel != nil {
		cancel()
	}

	var g errgroup.Group
	if ln != nil {
		g.Go(ln.Close)
	}
	p.chansLk.Lock()
	for ch := range p.chans {
		g.Go(ch.Close)
	}
	p.chansLk.Unlock()
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	p.setState(StateShutdown)
	p.tele.incr(MetricShutdownCount)
	p.tele.logger.Info("peer shut down")
	return err
}

func (p *peer[IN, OUT]) ListenAddr() net.Addr {
	p.lk.Lock()
	defer p.lk.Unlock()
	if p.boundAddr != nil {
		return p.boundAddr
	}
	if p.remote != nil {
		// a connecting peer reports the endpoint it targets
		return p.remote
	}
	return p.cfg.bindAddr
}

func (p *peer[IN, OUT]) State() State {
	return State(p.state.Load())
}

func (p *peer[IN, OUT]) String() string {
	return fmt.Sprintf("peer:%s", p.ListenAddr())
}

func (p *peer[IN, OUT]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", fmt.Sprint(p.ListenAddr())),
		slog.String("state", p.State().String()),
	)
}
