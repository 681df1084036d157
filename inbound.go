package riptide

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/riptide-net/riptide/pkg/codec"
)

// Inbound is the receive side of a channel: a lazy sequence of decoded
// items. Receive returns io.EOF once the peer completed the stream, or the
// terminal error that broke it; after a terminal result the sequence never
// emits again.
type Inbound[IN any] interface {
	Receive(ctx context.Context) (IN, error)
}

// receiver pulls items off the connection and buffers them for the handler.
// With a finite capacity, the read budget semaphore pauses decoding once
// `Capacity` items sit dispatched but unconsumed; consuming items releases
// budget and resumes reads.
type receiver[IN any] struct {
	conn   Conn
	dec    codec.Decoder[IN]
	budget *semaphore.Weighted
	tele   telemetry

	mu       sync.Mutex
	buf      []IN
	err      error
	readable chan struct{}
	done     chan struct{}

	onTerminal func(error)
}

func newReceiver[IN any](conn Conn, dec codec.Decoder[IN], capacity Capacity, tele telemetry, onTerminal func(error)) *receiver[IN] {
	r := &receiver[IN]{
		conn:       conn,
		dec:        dec,
		tele:       tele,
		readable:   make(chan struct{}, 1),
		done:       make(chan struct{}),
		onTerminal: onTerminal,
	}
	if budget := capacity.ReadBudget(); budget > 0 {
		r.budget = semaphore.NewWeighted(budget)
	}
	return r
}

// run is the per-connection decode loop. It holds one unit of read budget
// per item from decode until the handler consumes it.
func (r *receiver[IN]) run(ctx context.Context) {
	for {
		if r.budget != nil {
			if !r.budget.TryAcquire(1) {
				r.tele.incr(MetricReadPauseCount)
				if err := r.budget.Acquire(ctx, 1); err != nil {
					r.terminate(err)
					return
				}
			}
		}

		item, err := r.dec.Decode(r.conn)
		if err != nil {
			if r.budget != nil {
				r.budget.Release(1)
			}
			r.terminate(err)
			return
		}

		r.tele.incr(MetricReadItemCount)
		r.push(item)
	}
}

func (r *receiver[IN]) push(item IN) {
	r.mu.Lock()
	r.buf = append(r.buf, item)
	r.mu.Unlock()
	r.signal()
}

func (r *receiver[IN]) signal() {
	select {
	case r.readable <- struct{}{}:
	default:
	}
}

func (r *receiver[IN]) terminate(err error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return
	}
	r.err = err
	r.mu.Unlock()
	close(r.done)
	if r.onTerminal != nil {
		r.onTerminal(err)
	}
}

func (r *receiver[IN]) Receive(ctx context.Context) (IN, error) {
	var zero IN
	for {
		r.mu.Lock()
		if len(r.buf) > 0 {
			item := r.buf[0]
			r.buf = r.buf[1:]
			remaining := len(r.buf)
			r.mu.Unlock()
			if remaining > 0 {
				r.signal()
			}
			if r.budget != nil {
				r.budget.Release(1)
			}
			return item, nil
		}
		err := r.err
		r.mu.Unlock()
		if err != nil {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.readable:
		case <-r.done:
		}
	}
}
