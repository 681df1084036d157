package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riptide-net/riptide"
)

func TestListenDialAccept(t *testing.T) {
	provider := New()
	ctx := context.Background()
	target := riptide.Target{Addr: Addr("svc")}

	ln, err := provider.Listen(ctx, target)
	require.NoError(t, err)
	defer ln.Close()
	require.Equal(t, Addr("svc"), ln.Addr())

	accepted := make(chan riptide.Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()

	dialed, err := provider.Dial(ctx, target)
	require.NoError(t, err)
	defer dialed.Close()

	var server riptide.Conn
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("accept never completed")
	}
	defer server.Close()

	go func() {
		server.Write([]byte("ping"))
	}()
	buf := make([]byte, 4)
	_, err = dialed.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))

	require.Equal(t, Addr("svc"), dialed.RemoteAddr())
	require.Equal(t, Addr("svc"), server.LocalAddr())
}

func TestDoubleListenFails(t *testing.T) {
	provider := New()
	ctx := context.Background()
	target := riptide.Target{Addr: Addr("taken")}

	ln, err := provider.Listen(ctx, target)
	require.NoError(t, err)
	defer ln.Close()

	_, err = provider.Listen(ctx, target)
	require.ErrorIs(t, err, ErrAddrInUse)
}

func TestDialUnknownAddrRefused(t *testing.T) {
	provider := New()
	_, err := provider.Dial(context.Background(), riptide.Target{Addr: Addr("ghost")})
	require.ErrorIs(t, err, ErrRefused)
}

func TestClosedListenerRefusesAndFreesAddr(t *testing.T) {
	provider := New()
	ctx := context.Background()
	target := riptide.Target{Addr: Addr("recycled")}

	ln, err := provider.Listen(ctx, target)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = ln.Accept(ctx)
	require.ErrorIs(t, err, ErrClosed)

	_, err = provider.Dial(ctx, target)
	require.ErrorIs(t, err, ErrRefused)

	// the name is free for a fresh listener
	ln2, err := provider.Listen(ctx, target)
	require.NoError(t, err)
	defer ln2.Close()
}

func TestDialHonoursContext(t *testing.T) {
	provider := New()
	target := riptide.Target{Addr: Addr("busy")}

	ln, err := provider.Listen(context.Background(), target)
	require.NoError(t, err)
	defer ln.Close()

	// nobody accepts, so the dial must give up with the context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = provider.Dial(ctx, target)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
