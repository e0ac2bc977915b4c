package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4096, cfg.MaxCompletionsPerWait)
	assert.Zero(t, cfg.Workers, "zero means one worker per core")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers = 3
min_buffer_bucket = 128
adjust_maxprocs = true
pin_workers = true
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 128, cfg.MinBufferBucket)
	assert.True(t, cfg.AdjustMaxProcs)
	assert.True(t, cfg.PinWorkers)
	assert.Equal(t, 4096, cfg.MaxCompletionsPerWait, "unset keys keep defaults")
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig(`workerz = 1`)
	assert.ErrorContains(t, err, "workerz")

	_, err = ParseConfig(`min_buffer_bucket = 100`)
	assert.ErrorContains(t, err, "power of two")

	_, err = ParseConfig(`workers = -1`)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := Config{Workers: 2}.Normalize()
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, DefaultConfig().PoolCapacity, cfg.PoolCapacity)
	assert.Equal(t, "hioload_net", cfg.MetricsNamespace)
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	m.Completions.Add(3)
	m.InFlight.Inc()
	assert.InDelta(t, 3, testutil.ToFloat64(m.Completions), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InFlight), 0)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	m.Unregister(reg)
	n, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMetrics_Unregistered(t *testing.T) {
	m, err := NewMetrics("test", nil)
	require.NoError(t, err)
	m.Batches.Inc()
	assert.InDelta(t, 1, testutil.ToFloat64(m.Batches), 0)
}

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	dp.RegisterProbe("engine.workers", func() any { return 4 })

	state := dp.DumpState()
	assert.Equal(t, 4, state["engine.workers"])
	assert.Contains(t, state, "platform.cpus")
	assert.Equal(t, "engine.workers", dp.Names()[0])
}
