package riptide

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/riptide-net/riptide/pkg/codec"
)

// Outbound is the write side of a channel. Writing and flushing is
// controlled by sinking one or more sources: when a drained source
// completes or errors, pending writes are flushed automatically.
type Outbound[OUT any] interface {
	// Send writes every item of src to the connection in production order
	// and flushes once the source terminates. All failures are reported
	// through the returned error; nothing is thrown past the first
	// scheduled write.
	Send(ctx context.Context, src Source[OUT]) error

	// SendBatches treats each inner source as an independent flush unit.
	// Inner sources are started in arrival order under a bounded in-flight
	// window, and errors are collected rather than short-circuited: the
	// aggregate failure is reported only after every inner source has been
	// attempted.
	SendBatches(ctx context.Context, batches Source[Source[OUT]]) error

	// Delegate exposes the raw transport connection for advanced use.
	// Returns nil unless the peer was built with WithDelegateAccess.
	Delegate() Conn

	// Scheduler names where write loops scheduled through this Outbound
	// execute.
	Scheduler() Scheduler
}

type sender[OUT any] struct {
	conn       Conn
	enc        codec.Encoder[OUT]
	sched      Scheduler
	flushBatch int64
	window     int64
	expose     bool
	tele       telemetry

	mu      sync.Mutex
	pending int64
	aborted bool
	cause   error
	abortCh chan struct{}
}

func newSender[OUT any](conn Conn, enc codec.Encoder[OUT], cfg config, tele telemetry) *sender[OUT] {
	return &sender[OUT]{
		conn:       conn,
		enc:        enc,
		sched:      cfg.scheduler,
		flushBatch: cfg.capacity.FlushBatch(),
		window:     cfg.batchWindow,
		expose:     cfg.exposeDelegate,
		tele:       tele,
		abortCh:    make(chan struct{}),
	}
}

func (o *sender[OUT]) Send(ctx context.Context, src Source[OUT]) error {
	if _, inline := o.sched.(immediateScheduler); inline {
		return o.drain(ctx, src)
	}

	errCh := make(chan error, 1)
	o.sched.Schedule(func() { errCh <- o.drain(ctx, src) })
	return <-errCh
}

func (o *sender[OUT]) SendBatches(ctx context.Context, batches Source[Source[OUT]]) error {
	window := semaphore.NewWeighted(o.window)

	var (
		wg  sync.WaitGroup
		lk  sync.Mutex
		agg *multierror.Error
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		lk.Lock()
		agg = multierror.Append(agg, err)
		lk.Unlock()
	}

	for {
		inner, err := batches.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			collect(err)
			break
		}
		if err := window.Acquire(ctx, 1); err != nil {
			collect(err)
			break
		}

		wg.Add(1)
		go func(src Source[OUT]) {
			defer wg.Done()
			defer window.Release(1)
			collect(o.Send(ctx, src))
		}(inner)
	}

	wg.Wait()
	return agg.ErrorOrNil()
}

func (o *sender[OUT]) Delegate() Conn {
	if !o.expose {
		return nil
	}
	return o.conn
}

func (o *sender[OUT]) Scheduler() Scheduler {
	return o.sched
}

// drain is the pull-driven write loop: the next item is requested only
// once the transport accepted the previous one.
func (o *sender[OUT]) drain(ctx context.Context, src Source[OUT]) error {
	for {
		select {
		case <-o.abortCh:
			return o.abortErr()
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// a source failure still flushes whatever it already produced
			o.flush()
			return err
		}

		if err := o.write(item); err != nil {
			return err
		}
	}
	return o.flush()
}

func (o *sender[OUT]) write(item OUT) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.aborted {
		return &AbortedError{Cause: o.cause}
	}

	if err := o.enc.Encode(o.conn, item); err != nil {
		o.tele.incr(MetricWriteErrorCount)
		return &WriteError{Op: "write", Remote: o.conn.RemoteAddr(), Err: err}
	}
	o.tele.incr(MetricWriteItemCount)

	o.pending++
	if o.pending >= o.flushBatch {
		return o.flushLocked()
	}
	return nil
}

func (o *sender[OUT]) flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.aborted {
		return &AbortedError{Cause: o.cause}
	}
	return o.flushLocked()
}

func (o *sender[OUT]) flushLocked() error {
	if err := o.conn.Flush(); err != nil {
		o.tele.incr(MetricWriteErrorCount)
		return &WriteError{Op: "flush", Remote: o.conn.RemoteAddr(), Err: err}
	}
	o.pending = 0
	o.tele.incr(MetricFlushCount)
	return nil
}

// abort cancels in-flight and future sends. Used when the channel closes or
// its inbound sequence terminates with an error.
func (o *sender[OUT]) abort(cause error) {
	o.mu.Lock()
	if o.aborted {
		o.mu.Unlock()
		return
	}
	o.aborted = true
	o.cause = cause
	o.mu.Unlock()
	close(o.abortCh)
}

func (o *sender[OUT]) abortErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &AbortedError{Cause: o.cause}
}
