package riptide

import (
	"context"
	"io"
)

// Source is a pull-driven sequence of items. Next returns io.EOF after the
// last item; any other error terminates the sequence abnormally. The
// consumer only pulls the next item once it is ready to accept more, which
// is what gives outbound writes their natural backpressure.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
}

// SourceFunc adapts an ordinary function to a Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

func (fn SourceFunc[T]) Next(ctx context.Context) (T, error) {
	return fn(ctx)
}

// SliceSource yields the given items in order, then io.EOF.
func SliceSource[T any](items ...T) Source[T] {
	src := &sliceSource[T]{items: items}
	return src
}

type sliceSource[T any] struct {
	items []T
	next  int
}

func (src *sliceSource[T]) Next(ctx context.Context) (item T, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	if src.next >= len(src.items) {
		return item, io.EOF
	}
	item = src.items[src.next]
	src.next++
	return
}

// ChanSource yields items received from ch until it is closed, which maps
// to io.EOF.
func ChanSource[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (item T, err error) {
		select {
		case <-ctx.Done():
			return item, ctx.Err()
		case item, ok := <-ch:
			if !ok {
				var zero T
				return zero, io.EOF
			}
			return item, nil
		}
	})
}
