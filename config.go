package fedcoord

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const envPrefix = "FL_"

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator" envPrefix:"COORDINATOR_"`
	Worker      WorkerConfig      `toml:"worker"      envPrefix:"WORKER_"`
}

type CoordinatorConfig struct {
	GRPCAddr          string        `toml:"grpc_addr"           env:"GRPC_ADDR"`
	HTTPAddr          string        `toml:"http_addr"           env:"HTTP_ADDR"`
	LogLevel          string        `toml:"log_level"           env:"LOG_LEVEL"`
	CommandBuffer     int           `toml:"command_buffer"      env:"COMMAND_BUFFER"`
	OutboundBuffer    int           `toml:"outbound_buffer"     env:"OUTBOUND_BUFFER"`
	RequestTimeout    time.Duration `toml:"request_timeout"     env:"REQUEST_TIMEOUT"` // zero waits forever
	EvictFinishedJobs bool          `toml:"evict_finished_jobs" env:"EVICT_FINISHED_JOBS"`
	MQTT              MQTTConfig    `toml:"mqtt"                envPrefix:"MQTT_"`
}

// MQTTConfig enables lifecycle events when URL is set.
type MQTTConfig struct {
	URL      string        `toml:"url"       env:"URL"`
	Topic    string        `toml:"topic"     env:"TOPIC"`
	QoS      byte          `toml:"qos"       env:"QOS"`
	ClientID string        `toml:"client_id" env:"CLIENT_ID"`
	Username string        `toml:"username"  env:"USERNAME"`
	Password string        `toml:"password"  env:"PASSWORD"`
	Timeout  time.Duration `toml:"timeout"   env:"TIMEOUT"`
	CAPath   string        `toml:"ca_path"   env:"CA_PATH"`
	CertPath string        `toml:"cert_path" env:"CERT_PATH"`
	KeyPath  string        `toml:"key_path"  env:"KEY_PATH"`
}

type WorkerConfig struct {
	CoordinatorAddr string  `toml:"coordinator_addr" env:"COORDINATOR_ADDR"`
	LogLevel        string  `toml:"log_level"        env:"LOG_LEVEL"`
	MaxConcurrent   int64   `toml:"max_concurrent"   env:"MAX_CONCURRENT"`
	LearningRate    float64 `toml:"learning_rate"    env:"LEARNING_RATE"`
	BatchSize       int     `toml:"batch_size"       env:"BATCH_SIZE"`
	Samples         int     `toml:"samples"          env:"SAMPLES"`
	Features        int     `toml:"features"         env:"FEATURES"`
	Seed            uint64  `toml:"seed"             env:"SEED"`
}

func Default() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			GRPCAddr:       "[::1]:50051",
			HTTPAddr:       ":9090",
			LogLevel:       "info",
			CommandBuffer:  32,
			OutboundBuffer: 32,
			MQTT: MQTTConfig{
				Topic:    "fedcoord",
				QoS:      1,
				ClientID: "fedcoord-coordinator",
				Timeout:  10 * time.Second,
			},
		},
		Worker: WorkerConfig{
			CoordinatorAddr: "[::1]:50051",
			LogLevel:        "info",
			MaxConcurrent:   1,
			LearningRate:    0.05,
			BatchSize:       32,
			Samples:         1024,
			Features:        8,
			Seed:            1,
		},
	}
}

// LoadConfig starts from Default, applies the TOML file at path when path is
// not empty, then applies FL_ prefixed environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}

		tree, err := toml.Load(string(data))
		if err != nil {
			return Config{}, fmt.Errorf("error parsing config file: %w", err)
		}

		if err := tree.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	return cfg, nil
}
