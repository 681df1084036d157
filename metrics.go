package riptide

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricConnInCount       = []string{"riptide", "conn", "in", "count"}
	MetricConnOutCount      = []string{"riptide", "conn", "out", "count"}
	MetricConnErrorCount    = []string{"riptide", "conn", "error", "count"}
	MetricAcceptRetryCount  = []string{"riptide", "accept", "retry", "count"}
	MetricWriteItemCount    = []string{"riptide", "write", "item", "count"}
	MetricWriteErrorCount   = []string{"riptide", "write", "error", "count"}
	MetricFlushCount        = []string{"riptide", "flush", "count"}
	MetricReadPauseCount    = []string{"riptide", "read", "pause", "count"}
	MetricReadItemCount     = []string{"riptide", "read", "item", "count"}
	MetricHandlerErrorCount = []string{"riptide", "handler", "error", "count"}
	MetricShutdownCount     = []string{"riptide", "shutdown", "count"}
)

type TelemetryLabel string

var (
	LabelError      TelemetryLabel = "error"
	LabelLocalAddr  TelemetryLabel = "local_addr"
	LabelRemoteAddr TelemetryLabel = "remote_addr"
	LabelPeer       TelemetryLabel = "peer"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// telemetry bundles the injected observability surface so channels do not
// each carry three fields.
type telemetry struct {
	logger *slog.Logger
	msink  metrics.MetricSink
	labels []metrics.Label
}

func (tele telemetry) incr(name []string, extra ...metrics.Label) {
	if len(extra) == 0 {
		tele.msink.IncrCounterWithLabels(name, 1.0, tele.labels)
		return
	}
	tele.msink.IncrCounterWithLabels(name, 1.0, append(append([]metrics.Label{}, tele.labels...), extra...))
}
