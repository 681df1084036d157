package riptide

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacityNormalization(t *testing.T) {
	require.True(t, Capacity(0).IsUnbounded())
	require.True(t, Capacity(-5).IsUnbounded())
	require.True(t, Unbounded.IsUnbounded())
	require.False(t, Capacity(1).IsUnbounded())
}

func TestCapacityFlushBatch(t *testing.T) {
	// unbounded flushes after every write
	require.EqualValues(t, 1, Unbounded.FlushBatch())
	require.EqualValues(t, 1, Capacity(0).FlushBatch())
	require.EqualValues(t, 16, Capacity(16).FlushBatch())
}

func TestCapacityReadBudget(t *testing.T) {
	require.EqualValues(t, 0, Unbounded.ReadBudget())
	require.EqualValues(t, 0, Capacity(-1).ReadBudget())
	require.EqualValues(t, 16, Capacity(16).ReadBudget())
}

func TestOptionsValidation(t *testing.T) {
	_, err := newConfig([]Option{WithListenOn("not-an-ip", 12012)})
	require.ErrorIs(t, err, ErrNoAddress)

	cfg, err := newConfig([]Option{WithListenOn("127.0.0.1", 0)})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:0", cfg.bindAddr.String())
}

func TestOptionDefaults(t *testing.T) {
	cfg, err := newConfig(nil)
	require.NoError(t, err)
	require.Equal(t, Unbounded, cfg.capacity)
	require.EqualValues(t, DefaultBatchConcurrency, cfg.batchWindow)
	require.Equal(t, Immediate, cfg.scheduler)
	require.False(t, cfg.failOnStarted)
	require.False(t, cfg.exposeDelegate)
}

func TestWithTLSConfigImpliesSecure(t *testing.T) {
	cfg, err := newConfig([]Option{WithTLSConfig(nil)})
	require.NoError(t, err)
	require.True(t, cfg.secure)
	require.Nil(t, cfg.tlsCfg)
}
