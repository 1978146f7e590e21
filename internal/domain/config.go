package domain

import "time"

// Config holds the complete fraud-rules engine configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Tier    Tier          `json:"tier"`
	History HistoryConfig `json:"history"`
	ML      MLConfig      `json:"ml"`
	EventBus EventBusConfig `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP ingress settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier; determines which backends are wired.
type Tier string

const (
	TierCommunity Tier = "community"
	TierPro       Tier = "pro"
)

// HistoryConfig configures the Transaction-History Store.
type HistoryConfig struct {
	// Backend selects "sql" (relational, server-side aggregates) or
	// "redis" (sorted-set-by-timestamp, local-fold aggregates).
	Backend string `json:"backend"`

	// SQL backend settings.
	Driver           string        `json:"driver"` // sqlite or postgres
	SQLitePath       string        `json:"sqlitePath"`
	PostgresHost     string        `json:"postgresHost"`
	PostgresPort     int           `json:"postgresPort"`
	PostgresUser     string        `json:"postgresUser"`
	PostgresPassword string        `json:"postgresPassword"`
	PostgresDB       string        `json:"postgresDb"`
	PostgresSSLMode  string        `json:"postgresSslMode"`
	MaxOpenConns     int           `json:"maxOpenConns"`
	MaxIdleConns     int           `json:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `json:"connMaxLifetime"`

	// Redis backend settings.
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDb"`

	// RetentionDays is the minimum retention window; the backend must
	// not expire rows sooner.
	RetentionDays int `json:"retentionDays"`
}

// MLConfig configures the ML Scorer's model cache.
type MLConfig struct {
	// ModelConfigDir is the directory model artifacts are loaded from,
	// named "<uuid>_columns.txt" / "<uuid>_json.json" / "<uuid>_lgbm.txt".
	ModelConfigDir string `json:"modelConfigDir"`
}

// DefaultConfig returns a Community-tier configuration: SQLite history
// store, in-process channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		History: HistoryConfig{
			Backend:       "sql",
			Driver:        "sqlite",
			SQLitePath:    "./fraudrules.db",
			RetentionDays: 7,
		},
		ML: MLConfig{
			ModelConfigDir: "./models",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
			RequestTopic:      TopicRequest,
			ResponseTopic:     TopicResponse,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudrules",
		},
	}
}

// ProConfig returns a Pro-tier configuration: Postgres history store
// with a Redis-backed velocity cache, NATS bus.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.History = HistoryConfig{
		Backend:          "sql",
		Driver:           "postgres",
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresDB:       "fraudrules",
		RedisAddr:        "localhost:6379",
		RetentionDays:    7,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		RequestTopic:      TopicRequest,
		ResponseTopic:     TopicResponse,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
