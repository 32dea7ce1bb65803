// Package config loads the gateway configuration from an optional YAML file
// and PPGATEWAY_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PPGATEWAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.ws_path", "/ws")
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("ws.read_buffer_size", 4096)
	v.SetDefault("ws.write_buffer_size", 4096)
	v.SetDefault("ws.send_queue_size", 256)
	v.SetDefault("ws.max_message_size", 12<<20) // attachments arrive inline as base64
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_wait", 10*time.Second)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("session.cookie_name", "connect.sid")
	v.SetDefault("session.key_prefix", "sess:")

	v.SetDefault("presence.status_ttl", 30*time.Second)
	v.SetDefault("presence.sockets_ttl", 60*time.Second)

	v.SetDefault("nats.servers", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.name", "ppgateway")
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.reconnect_wait", 500*time.Millisecond)
	v.SetDefault("nats.timeout", 3*time.Second)

	v.SetDefault("rpc.subject_prefix", "")
	v.SetDefault("rpc.default_timeout", 5*time.Second)

	v.SetDefault("relay.driver", RelayNone)
	v.SetDefault("relay.subject", "gateway.broadcast")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.presence_topic", "gateway.presence")
	v.SetDefault("kafka.client_id", "ppgateway")
	v.SetDefault("kafka.version", "2.1.0")
	v.SetDefault("kafka.compression", "snappy")
	v.SetDefault("kafka.retries", 3)
	v.SetDefault("kafka.ensure_topic", false)
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("health.grpc_addr", ":50052")
}

// Load reads path (if non-empty) and the environment, applies defaults and
// validates the result. Environment variables override the file.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Nats.Servers = splitList(cfg.Nats.Servers)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr must be set")
	}
	if !strings.HasPrefix(c.HTTP.WSPath, "/") {
		return errors.New("config: http.ws_path must start with /")
	}
	if c.Presence.StatusTTL <= 0 || c.Presence.SocketsTTL <= 0 {
		return errors.New("config: presence TTLs must be positive")
	}
	if c.Presence.SocketsTTL < c.Presence.StatusTTL {
		return errors.New("config: presence.sockets_ttl must not be shorter than presence.status_ttl")
	}
	if c.RPC.DefaultTimeout <= 0 {
		return errors.New("config: rpc.default_timeout must be positive")
	}
	if c.WS.SendQueueSize <= 0 {
		return errors.New("config: ws.send_queue_size must be positive")
	}
	if c.WS.PingInterval >= c.WS.PongWait {
		return errors.New("config: ws.ping_interval must be shorter than ws.pong_wait")
	}
	switch c.Relay.Driver {
	case RelayNone, RelayNats, RelayRedis:
	default:
		return fmt.Errorf("config: relay.driver %q is not one of none, nats, redis", c.Relay.Driver)
	}
	if c.Relay.Driver != RelayNone && c.Relay.Subject == "" {
		return errors.New("config: relay.subject must be set when relay is enabled")
	}
	if c.KafkaEnabled() && c.Kafka.PresenceTopic == "" {
		return errors.New("config: kafka.presence_topic must be set when kafka.brokers is")
	}
	return nil
}

// KafkaEnabled reports whether presence events are streamed to Kafka.
func (c *AppConfig) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// Lists from the environment arrive as one comma-separated element.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
