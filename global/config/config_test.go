package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/ws", cfg.HTTP.WSPath)
	assert.Equal(t, "connect.sid", cfg.Session.CookieName)
	assert.Equal(t, "sess:", cfg.Session.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Presence.StatusTTL)
	assert.Equal(t, 60*time.Second, cfg.Presence.SocketsTTL)
	assert.Equal(t, 5*time.Second, cfg.RPC.DefaultTimeout)
	assert.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.Nats.Servers)
	assert.Equal(t, RelayNone, cfg.Relay.Driver)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PPGATEWAY_HTTP_ADDR", ":9090")
	t.Setenv("PPGATEWAY_PRESENCE_STATUS_TTL", "45s")
	t.Setenv("PPGATEWAY_PRESENCE_SOCKETS_TTL", "90s")
	t.Setenv("PPGATEWAY_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PPGATEWAY_RELAY_DRIVER", "redis")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 45*time.Second, cfg.Presence.StatusTTL)
	assert.Equal(t, 90*time.Second, cfg.Presence.SocketsTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, RelayRedis, cfg.Relay.Driver)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
node_id: gw-7
session:
  cookie_name: chat.sid
rpc:
  default_timeout: 2s
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gw-7", cfg.NodeID)
	assert.Equal(t, "chat.sid", cfg.Session.CookieName)
	assert.Equal(t, 2*time.Second, cfg.RPC.DefaultTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"empty addr", func(c *AppConfig) { c.HTTP.Addr = "" }},
		{"bad ws path", func(c *AppConfig) { c.HTTP.WSPath = "ws" }},
		{"zero status ttl", func(c *AppConfig) { c.Presence.StatusTTL = 0 }},
		{"sockets shorter than status", func(c *AppConfig) { c.Presence.SocketsTTL = 10 * time.Second }},
		{"zero rpc timeout", func(c *AppConfig) { c.RPC.DefaultTimeout = 0 }},
		{"ping after pong", func(c *AppConfig) { c.WS.PingInterval = 2 * c.WS.PongWait }},
		{"unknown relay", func(c *AppConfig) { c.Relay.Driver = "kafka" }},
		{"kafka without topic", func(c *AppConfig) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.PresenceTopic = "" }},
		{"relay without subject", func(c *AppConfig) { c.Relay.Driver = RelayNats; c.Relay.Subject = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
