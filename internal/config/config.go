package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-chat-relay/pkg/config"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
)

// Dispatch modes.
const (
	DispatchDirect  = "direct"
	DispatchGateway = "gateway"
)

// Read watermark stores.
const (
	ReadStoreDatabase = "database"
	ReadStoreRedis    = "redis"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Dispatch  DispatchConfig
	Gateway   GatewayConfig
	Database  database.Config
	Redis     RedisConfig
	Read      ReadConfig
	Chat      ChatConfig
	ID        IDConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	Path           string
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
	RegistryShards int           `mapstructure:"registry_shards"`
	// SessionID is the connection id format: uuid, ulid, ksuid, nanoid or cuid2.
	SessionID string `mapstructure:"session_id"`
}

type DispatchConfig struct {
	Mode string
}

type GatewayConfig struct {
	Driver string
	// PersistGroup is the shared consumer group that materializes messages into
	// the database.
	PersistGroup string `mapstructure:"persist_group"`
	// PersistInline runs the persist consumer inside the serve process.
	PersistInline  bool          `mapstructure:"persist_inline"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	Kafka          KafkaConfig
	NATS           NATSConfig `mapstructure:"nats"`
	Redis          RedisStreamConfig
	Memory         MemoryConfig
}

type KafkaConfig struct {
	Brokers           string
	Topic             string
	Partitions        int
	AutoOffsetReset   string `mapstructure:"auto_offset_reset"`
	SessionTimeoutMs  int    `mapstructure:"session_timeout_ms"`
	MaxPollIntervalMs int    `mapstructure:"max_poll_interval_ms"`
}

type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	DedupWindow   time.Duration `mapstructure:"dedup_window"`
}

type RedisStreamConfig struct {
	Stream string
	MaxLen int64 `mapstructure:"max_len"`
	Block  time.Duration
	Count  int64
}

type MemoryConfig struct {
	Buffer int
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type ReadConfig struct {
	Store       string
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type ChatConfig struct {
	RequireMembership bool `mapstructure:"require_membership"`
	// MaxMessageLength caps a chat message in characters; zero disables the cap.
	MaxMessageLength int `mapstructure:"max_message_length"`
}

type IDConfig struct {
	MachineID int64 `mapstructure:"machine_id"`
	Epoch     int64 // unix milliseconds
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from <configPath>/config.yaml and CHAT_* environment
// variables on top of the defaults below.
func Load(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config", "CHAT")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("gateway.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("gateway.nats.url", "NATS_URL")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("database.password", "DATABASE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("websocket.path", "/ws/chat")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.registry_shards", 32)
	v.SetDefault("websocket.session_id", "uuid")

	v.SetDefault("dispatch.mode", DispatchDirect)

	v.SetDefault("gateway.driver", "kafka")
	v.SetDefault("gateway.persist_group", "chat-relay-persist")
	v.SetDefault("gateway.persist_inline", true)
	v.SetDefault("gateway.enqueue_timeout", "5s")
	v.SetDefault("gateway.kafka.brokers", "localhost:9092")
	v.SetDefault("gateway.kafka.topic", "chat-messages")
	v.SetDefault("gateway.kafka.partitions", 8)
	v.SetDefault("gateway.kafka.auto_offset_reset", "earliest")
	v.SetDefault("gateway.kafka.session_timeout_ms", 10000)
	v.SetDefault("gateway.kafka.max_poll_interval_ms", 300000)
	v.SetDefault("gateway.nats.url", "nats://localhost:4222")
	v.SetDefault("gateway.nats.stream", "CHAT_MESSAGES")
	v.SetDefault("gateway.nats.subject_prefix", "chat.room")
	v.SetDefault("gateway.nats.max_age", "24h")
	v.SetDefault("gateway.nats.dedup_window", "2m")
	v.SetDefault("gateway.redis.stream", "chat:log")
	v.SetDefault("gateway.redis.max_len", 100000)
	v.SetDefault("gateway.redis.block", "2s")
	v.SetDefault("gateway.redis.count", 64)
	v.SetDefault("gateway.memory.buffer", 1024)

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.file_path", "chat-relay.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("read.store", ReadStoreDatabase)
	v.SetDefault("read.redis_prefix", "chat:read")

	v.SetDefault("chat.require_membership", false)
	v.SetDefault("chat.max_message_length", 8000)

	v.SetDefault("id.machine_id", 1)
	v.SetDefault("id.epoch", 1704067200000) // 2024-01-01T00:00:00Z

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects unknown modes and drivers early, before any connection is made.
func (c *Config) Validate() error {
	switch c.Dispatch.Mode {
	case DispatchDirect, DispatchGateway:
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}
	switch c.Read.Store {
	case ReadStoreDatabase, ReadStoreRedis:
	default:
		return fmt.Errorf("unknown read.store %q", c.Read.Store)
	}
	if c.Chat.MaxMessageLength < 0 {
		return fmt.Errorf("chat.max_message_length must not be negative")
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket.send_buffer_size must be positive")
	}
	return nil
}

// WatchLogLevel calls apply with log.level every time the config file changes.
// It does nothing when no config file was found.
func WatchLogLevel(configPath string, apply func(level string)) error {
	v, err := pkgconfig.Load(configPath, "config", "CHAT")
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	setDefaults(v)
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			apply(v.GetString("log.level"))
		}
	})
	v.WatchConfig()
	return nil
}
