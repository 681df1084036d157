package riptide_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"github.com/riptide-net/riptide"
	"github.com/riptide-net/riptide/pkg/codec"
	"github.com/riptide-net/riptide/pkg/transport/inproc"
)

func quietOpts(extra ...riptide.Option) []riptide.Option {
	opts := []riptide.Option{
		riptide.WithLog(slog.NewTextHandler(io.Discard, nil)),
		riptide.WithMetricSink(&metrics.BlackholeSink{}),
	}
	return append(opts, extra...)
}

func newEchoServer(t *testing.T, provider *inproc.Provider, name string, extra ...riptide.Option) riptide.Peer[string, string] {
	t.Helper()
	jc := codec.NewJSON[string]()
	srv, err := riptide.NewServerPeer[string, string](provider, jc, jc,
		quietOpts(append(extra, riptide.WithListenAddr(inproc.Addr(name)))...)...)
	require.NoError(t, err)
	return srv
}

func echoHandler(ch riptide.Channel[string, string]) error {
	ctx := context.Background()
	for {
		item, err := ch.Inbound().Receive(ctx)
		if err != nil {
			return nil
		}
		if err := ch.Outbound().Send(ctx, riptide.SliceSource("echo:"+item)); err != nil {
			return err
		}
	}
}

func TestEndToEndEcho(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "echo")
	require.NoError(t, srv.Start(ctx, echoHandler))
	defer srv.Shutdown(ctx)

	require.Equal(t, riptide.StateStarted, srv.State())
	require.Equal(t, inproc.Addr("echo"), srv.ListenAddr())

	jc := codec.NewJSON[string]()
	cli, err := riptide.NewClientPeer[string, string](provider, jc, jc,
		inproc.Addr("echo"), quietOpts()...)
	require.NoError(t, err)
	defer cli.Shutdown(ctx)

	results := make(chan string, 3)
	require.NoError(t, cli.Start(ctx, func(ch riptide.Channel[string, string]) error {
		if err := ch.Outbound().Send(ctx, riptide.SliceSource("one", "two", "three")); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			item, err := ch.Inbound().Receive(ctx)
			if err != nil {
				return err
			}
			results <- item
		}
		return nil
	}))

	want := []string{"echo:one", "echo:two", "echo:three"}
	for _, expected := range want {
		select {
		case got := <-results:
			require.Equal(t, expected, got)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for echo")
		}
	}
}

func TestStartTwiceIsLenientByDefault(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "lenient")
	require.NoError(t, srv.Start(ctx, echoHandler))
	defer srv.Shutdown(ctx)

	require.NoError(t, srv.Start(ctx, echoHandler))
	require.Equal(t, riptide.StateStarted, srv.State())
}

func TestStartTwiceFailsUnderStrictPolicy(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "strict", riptide.WithFailOnStarted(true))
	require.NoError(t, srv.Start(ctx, echoHandler))
	defer srv.Shutdown(ctx)

	err := srv.Start(ctx, echoHandler)
	require.ErrorIs(t, err, riptide.ErrAlreadyStarted)
	require.Equal(t, riptide.StateStarted, srv.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "idem")

	// shutting down a never-started peer is a no-op
	require.NoError(t, srv.Shutdown(ctx))
	require.Equal(t, riptide.StateNew, srv.State())

	require.NoError(t, srv.Start(ctx, echoHandler))
	require.NoError(t, srv.Shutdown(ctx))
	require.Equal(t, riptide.StateShutdown, srv.State())
	require.NoError(t, srv.Shutdown(ctx))
}

func TestShutdownSettlesAgainstConcurrentStart(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "racing")
	started := make(chan error, 1)
	go func() { started <- srv.Start(ctx, echoHandler) }()

	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-started)

	require.NoError(t, srv.Shutdown(ctx))
	require.Equal(t, riptide.StateShutdown, srv.State())
}

func TestPeerRestartsAfterShutdown(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "restart")
	require.NoError(t, srv.Start(ctx, echoHandler))
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, srv.Start(ctx, echoHandler))
	defer srv.Shutdown(ctx)
	require.Equal(t, riptide.StateStarted, srv.State())
}

func TestSecureWithoutTLSFailsAtStart(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "secure", riptide.WithSecure())
	err := srv.Start(ctx, echoHandler)
	require.ErrorIs(t, err, riptide.ErrSecurityParams)
	require.ErrorIs(t, err, riptide.ErrInvalidCfg)
	require.Equal(t, riptide.StateNew, srv.State())
}

func TestClientDialFailureRevertsState(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	jc := codec.NewJSON[string]()
	cli, err := riptide.NewClientPeer[string, string](provider, jc, jc,
		inproc.Addr("nobody-home"), quietOpts()...)
	require.NoError(t, err)

	err = cli.Start(ctx, echoHandler)
	require.ErrorIs(t, err, inproc.ErrRefused)
	require.Equal(t, riptide.StateNew, cli.State())
}

func TestClientPeerRequiresRemote(t *testing.T) {
	jc := codec.NewJSON[string]()
	_, err := riptide.NewClientPeer[string, string](inproc.New(), jc, jc, nil, quietOpts()...)
	require.ErrorIs(t, err, riptide.ErrInvalidCfg)
	require.ErrorIs(t, err, riptide.ErrNoAddress)
}

func TestStartRejectsNilHandler(t *testing.T) {
	srv := newEchoServer(t, inproc.New(), "nil-handler")
	err := srv.Start(context.Background(), nil)
	require.ErrorIs(t, err, riptide.ErrInvalidCfg)
}

func TestShutdownClosesOpenChannels(t *testing.T) {
	provider := inproc.New()
	ctx := context.Background()

	srv := newEchoServer(t, provider, "teardown")
	require.NoError(t, srv.Start(ctx, echoHandler))

	jc := codec.NewJSON[string]()
	cli, err := riptide.NewClientPeer[string, string](provider, jc, jc,
		inproc.Addr("teardown"), quietOpts()...)
	require.NoError(t, err)

	channelDone := make(chan error, 1)
	require.NoError(t, cli.Start(ctx, func(ch riptide.Channel[string, string]) error {
		// park on the inbound sequence until the peer tears the channel down
		_, err := ch.Inbound().Receive(ctx)
		channelDone <- err
		return nil
	}))

	require.NoError(t, cli.Shutdown(ctx))
	select {
	case err := <-channelDone:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not release the parked handler")
	}

	require.NoError(t, srv.Shutdown(ctx))
}
