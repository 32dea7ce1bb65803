package config

import "time"

const (
	RelayNone  = "none"
	RelayNats  = "nats"
	RelayRedis = "redis"
)

// AppConfig is the whole gateway configuration. Keys are addressed in
// viper with dots, e.g. "presence.status_ttl", and in the environment as
// PPGATEWAY_PRESENCE_STATUS_TTL.
type AppConfig struct {
	NodeID string `mapstructure:"node_id"` // empty: generated at startup

	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	WS       WSConfig       `mapstructure:"ws"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	Presence PresenceConfig `mapstructure:"presence"`
	Nats     NatsConfig     `mapstructure:"nats"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Health   HealthConfig   `mapstructure:"health"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	WSPath         string   `mapstructure:"ws_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // empty: no check
}

type WSConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	SendQueueSize   int           `mapstructure:"send_queue_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

type PresenceConfig struct {
	StatusTTL  time.Duration `mapstructure:"status_ttl"`
	SocketsTTL time.Duration `mapstructure:"sockets_ttl"`
}

type NatsConfig struct {
	Servers       []string      `mapstructure:"servers"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RPCConfig struct {
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

type RelayConfig struct {
	Driver  string `mapstructure:"driver"`
	Subject string `mapstructure:"subject"` // NATS subject or redis channel
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"` // empty: disabled
	PresenceTopic     string   `mapstructure:"presence_topic"`
	ClientID          string   `mapstructure:"client_id"`
	Version           string   `mapstructure:"version"`
	Compression       string   `mapstructure:"compression"` // none/snappy/lz4/zstd
	Retries           int      `mapstructure:"retries"`
	EnsureTopic       bool     `mapstructure:"ensure_topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
}

type HealthConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"` // empty: disabled
}
