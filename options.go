package riptide

import (
	"crypto/tls"
	"log/slog"
	"net"

	"github.com/hashicorp/go-metrics"
)

const (
	// DefaultBindAddress and DefaultPort are used by server peers when no
	// listen address is configured.
	DefaultBindAddress = "127.0.0.1"
	DefaultPort        = 12012

	// DefaultBatchConcurrency caps how many inner sources of a batch send
	// may be in flight at once. It is a tunable default, not a protocol
	// requirement.
	DefaultBatchConcurrency = 32
)

type config struct {
	capacity      Capacity
	bindAddr      net.Addr
	tlsCfg        *tls.Config
	secure        bool
	failOnStarted bool
	batchWindow   int64

	// per-channel view, constructed once per channel
	scheduler      Scheduler
	exposeDelegate bool

	logHandler   slog.Handler
	msink        metrics.MetricSink
	metricLabels []metrics.Label
}

func newConfig(opts []Option) (cfg config, err error) {
	cfg.capacity = Unbounded
	cfg.batchWindow = DefaultBatchConcurrency
	cfg.scheduler = Immediate
	for _, opt := range opts {
		if err = opt(&cfg); err != nil {
			return
		}
	}
	return
}

func (cfg *config) telemetry() telemetry {
	tele := telemetry{labels: cfg.metricLabels}
	if cfg.logHandler == nil {
		tele.logger = slog.Default()
	} else {
		tele.logger = slog.New(cfg.logHandler)
	}
	if cfg.msink == nil {
		tele.msink = metrics.Default()
	} else {
		tele.msink = cfg.msink
	}
	return tele
}

// Option to pass to `NewServerPeer`, `NewClientPeer` or `Preprocess`.
type Option func(*config) error

// WithCapacity fixes the flow-control budget of every channel the peer
// emits. Zero falls back to Unbounded.
func WithCapacity(c Capacity) Option {
	return func(cfg *config) error {
		cfg.capacity = c.normalize()
		return nil
	}
}

// WithListenOn specifies the bind address of a server peer.
func WithListenOn(addr string, port int) Option {
	return func(cfg *config) error {
		ip := net.ParseIP(addr)
		if ip == nil {
			return ErrNoAddress
		}
		cfg.bindAddr = &net.TCPAddr{IP: ip, Port: port}
		return nil
	}
}

// WithListenAddr specifies the bind address of a server peer as an opaque
// provider address.
func WithListenAddr(addr net.Addr) Option {
	return func(cfg *config) error {
		cfg.bindAddr = addr
		return nil
	}
}

// WithTLSConfig supplies the transport security parameters handed through
// to the provider. Implies WithSecure.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *config) error {
		if tlsCfg != nil {
			cfg.tlsCfg = tlsCfg.Clone()
		}
		cfg.secure = true
		return nil
	}
}

// WithSecure requests transport-layer encryption. Starting a secure peer
// without TLS parameters fails at Start, not at construction.
func WithSecure() Option {
	return func(cfg *config) error {
		cfg.secure = true
		return nil
	}
}

// WithFailOnStarted toggles the strict start-reentry policy: when set,
// starting an already-started peer fails with ErrAlreadyStarted instead of
// succeeding as a no-op.
func WithFailOnStarted(fail bool) Option {
	return func(cfg *config) error {
		cfg.failOnStarted = fail
		return nil
	}
}

// WithScheduler selects where outbound write loops execute. Defaults to
// Immediate.
func WithScheduler(s Scheduler) Option {
	return func(cfg *config) error {
		if s == nil {
			s = Immediate
		}
		cfg.scheduler = s
		return nil
	}
}

// WithBatchConcurrency bounds the in-flight window of batch sends.
func WithBatchConcurrency(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			n = DefaultBatchConcurrency
		}
		cfg.batchWindow = int64(n)
		return nil
	}
}

// WithDelegateAccess exposes the raw transport connection through
// `Channel.Delegate`. Off by default so protocol code cannot reach
// transport internals by accident.
func WithDelegateAccess() Option {
	return func(cfg *config) error {
		cfg.exposeDelegate = true
		return nil
	}
}

// WithLog specifies which `slog.Handler` to use.
func WithLog(handler slog.Handler) Option {
	return func(cfg *config) error {
		cfg.logHandler = handler
		return nil
	}
}

// WithMetricSink selects how metrics emitted by the peer are collected.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(cfg *config) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		cfg.msink = ms
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the peer.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(cfg *config) error {
		cfg.metricLabels = labels
		return nil
	}
}
