package fedcoord

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[coordinator]
grpc_addr = "0.0.0.0:50051"
request_timeout = "30s"
evict_finished_jobs = true

[coordinator.mqtt]
url = "tcp://localhost:1883"
qos = 0

[worker]
learning_rate = 0.1
seed = 42
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:50051", cfg.Coordinator.GRPCAddr)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.RequestTimeout)
	assert.True(t, cfg.Coordinator.EvictFinishedJobs)
	assert.Equal(t, "tcp://localhost:1883", cfg.Coordinator.MQTT.URL)
	assert.Equal(t, byte(0), cfg.Coordinator.MQTT.QoS)
	assert.InDelta(t, 0.1, cfg.Worker.LearningRate, 1e-12)
	assert.Equal(t, uint64(42), cfg.Worker.Seed)

	// Keys missing from the file keep their defaults.
	def := Default()
	assert.Equal(t, def.Coordinator.HTTPAddr, cfg.Coordinator.HTTPAddr)
	assert.Equal(t, def.Coordinator.CommandBuffer, cfg.Coordinator.CommandBuffer)
	assert.Equal(t, def.Coordinator.MQTT.Topic, cfg.Coordinator.MQTT.Topic)
	assert.Equal(t, def.Worker.BatchSize, cfg.Worker.BatchSize)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	t.Setenv("FL_COORDINATOR_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("FL_COORDINATOR_MQTT_TOPIC", "lab/fl")
	t.Setenv("FL_WORKER_MAX_CONCURRENT", "4")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.Coordinator.GRPCAddr)
	assert.Equal(t, "lab/fl", cfg.Coordinator.MQTT.Topic)
	assert.Equal(t, int64(4), cfg.Worker.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.RequestTimeout)
	assert.Equal(t, uint64(42), cfg.Worker.Seed)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[coordinator\n"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	t.Setenv("FL_WORKER_SEED", "not-a-number")
	_, err = LoadConfig("")
	assert.Error(t, err)
}
