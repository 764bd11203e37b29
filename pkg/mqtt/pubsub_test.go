package mqtt

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubSubRejectsConfig(t *testing.T) {
	valid := Config{URL: "tcp://localhost:1883", ID: "fedcoord-test", QoS: 1}

	cases := []struct {
		desc string
		mut  func(*Config)
		err  error
	}{
		{desc: "empty URL", mut: func(c *Config) { c.URL = "" }, err: errEmptyURL},
		{desc: "empty ID", mut: func(c *Config) { c.ID = "" }, err: errEmptyID},
		{desc: "QoS out of range", mut: func(c *Config) { c.QoS = 3 }, err: errInvalidQoS},
		{desc: "cert without key", mut: func(c *Config) { c.CertPath = "client.crt" }, err: errKeyPair},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := valid
			tc.mut(&cfg)

			ps, err := NewPubSub(cfg, slog.New(slog.DiscardHandler))
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, ps)
		})
	}

	assert.NoError(t, valid.Validate())
}

func TestApplyTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	opts := mqtt.NewClientOptions()
	assert.NoError(t, applyTLSConfig(opts, "", "", ""))

	assert.Error(t, applyTLSConfig(opts, filepath.Join(dir, "missing.pem"), "", ""))
	assert.Error(t, applyTLSConfig(opts, garbage, "", ""))
}

func TestEmptyTopic(t *testing.T) {
	ps := &pubsub{logger: slog.New(slog.DiscardHandler)}

	assert.ErrorIs(t, ps.Publish(context.Background(), "", map[string]any{}), errEmptyTopic)
	assert.ErrorIs(t, ps.Subscribe(context.Background(), "", nil), errEmptyTopic)
}

type message struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }

func TestMQTTHandler(t *testing.T) {
	ps := &pubsub{logger: slog.New(slog.DiscardHandler)}

	var (
		gotTopic string
		gotMsg   map[string]any
		calls    int
	)
	h := ps.mqttHandler(func(topic string, msg map[string]any) error {
		calls++
		gotTopic, gotMsg = topic, msg

		return nil
	})

	h(nil, message{topic: "fedcoord/jobs/1", payload: []byte(`{"event":"job.started"}`)})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "fedcoord/jobs/1", gotTopic)
	assert.Equal(t, "job.started", gotMsg["event"])

	h(nil, message{topic: "fedcoord/jobs/1", payload: []byte("not json")})
	assert.Equal(t, 1, calls, "undecodable payloads are dropped")
}
