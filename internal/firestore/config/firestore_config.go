package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/caarlos0/env/v6"
)

// Driver names accepted by FIRESTORE_DRIVER.
const (
	DriverMemory    = "memory"
	DriverMongoDB   = "mongodb"
	DriverFirestore = "firestore"
)

// EmulatorConfig points the managed driver at a local emulator.
type EmulatorConfig struct {
	Enabled bool   `env:"FIRESTORE_EMULATOR_ENABLED" envDefault:"false" json:"enabled"`
	Host    string `env:"FIRESTORE_EMULATOR_HOST" envDefault:"localhost" json:"host"`
	Port    int    `env:"FIRESTORE_EMULATOR_PORT" envDefault:"8080" json:"port"`
}

// Addr is the host:port the emulator listens on. A host that already carries a port,
// as exported by the emulator tooling, is used as is.
func (e EmulatorConfig) Addr() string {
	if _, _, err := net.SplitHostPort(e.Host); err == nil {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// RedisConfig configures the cross-process change feed.
type RedisConfig struct {
	Enabled         bool   `env:"REDIS_ENABLED" envDefault:"false" json:"enabled"`
	Host            string `env:"REDIS_HOST" envDefault:"localhost" json:"host"`
	Port            string `env:"REDIS_PORT" envDefault:"6379" json:"port"`
	Password        string `env:"REDIS_PASSWORD" json:"-"`
	Database        int    `env:"REDIS_DB" envDefault:"0" json:"database"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3" json:"max_retries"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10" json:"pool_size"`
	MinIdleConns    int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2" json:"min_idle_conns"`
	EnableTLS       bool   `env:"REDIS_TLS" envDefault:"false" json:"enable_tls"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m" json:"conn_max_idle_time"`
	ConnMaxLifetime string `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h" json:"conn_max_lifetime"`
	StreamKey       string `env:"REDIS_STREAM_KEY" envDefault:"firestore:changes" json:"stream_key"`
	StreamMaxLength int64  `env:"REDIS_STREAM_MAX_LENGTH" envDefault:"10000" json:"stream_max_length"`
}

// GetAddr is the host:port of the Redis server.
func (r *RedisConfig) GetAddr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// GatewayConfig holds the HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Port          string `env:"GATEWAY_PORT" envDefault:"3030" json:"port"`
	JWTSecret     string `env:"GATEWAY_JWT_SECRET" json:"-"`
	WebSocketPath string `env:"GATEWAY_WEBSOCKET_PATH" envDefault:"/ws/listen" json:"websocket_path"`

	// ClientSendChannelBuffer is the number of snapshots queued per socket before the
	// listener blocks.
	ClientSendChannelBuffer int `env:"GATEWAY_CLIENT_SEND_BUFFER" envDefault:"16" json:"client_send_channel_buffer"`
}

// FirestoreConfig holds all configuration for the typed client.
type FirestoreConfig struct {
	// Enabled is the feature toggle checked when a client is created.
	Enabled bool   `env:"FIRESTORE_ENABLED" envDefault:"true" json:"enabled"`
	Driver  string `env:"FIRESTORE_DRIVER" envDefault:"memory" json:"driver"`

	ProjectID  string `env:"FIRESTORE_PROJECT_ID" json:"project_id"`
	DatabaseID string `env:"FIRESTORE_DATABASE_ID" envDefault:"(default)" json:"database_id"`

	Emulator EmulatorConfig `json:"emulator"`

	MongoDBURI   string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017" json:"-"`
	DatabaseName string `env:"MONGODB_DATABASE" envDefault:"firestore_typed" json:"database_name"`
	// MongoDBSessions runs commits inside multi-document transactions. Standalone
	// servers do not support them.
	MongoDBSessions bool `env:"MONGODB_SESSIONS" envDefault:"true" json:"mongodb_sessions"`

	Redis   RedisConfig   `json:"redis"`
	Gateway GatewayConfig `json:"gateway"`
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*FirestoreConfig, error) {
	cfg := &FirestoreConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load firestore configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver specific requirements.
func (c *FirestoreConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverMongoDB:
		if c.MongoDBURI == "" {
			return errors.New("MONGODB_URI environment variable is not set")
		}
	case DriverFirestore:
		if c.ProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID environment variable is not set")
		}
	default:
		return fmt.Errorf("unknown FIRESTORE_DRIVER %q", c.Driver)
	}
	if c.Emulator.Enabled && (c.Emulator.Port <= 0 || c.Emulator.Port > 65535) {
		return fmt.Errorf("invalid emulator port %d", c.Emulator.Port)
	}
	return nil
}

// EmulatorAddr returns the emulator address to dial, or "" when the emulator is off.
func (c *FirestoreConfig) EmulatorAddr() string {
	if c.Emulator.Enabled {
		return c.Emulator.Addr()
	}
	return ""
}

// DefaultFirestoreConfig returns a FirestoreConfig with default values.
func DefaultFirestoreConfig() *FirestoreConfig {
	return &FirestoreConfig{
		Enabled:         true,
		Driver:          DriverMemory,
		DatabaseID:      "(default)",
		Emulator:        EmulatorConfig{Host: "localhost", Port: 8080},
		MongoDBURI:      "mongodb://localhost:27017",
		DatabaseName:    "firestore_typed",
		MongoDBSessions: true,
		Redis: RedisConfig{
			Host:            "localhost",
			Port:            "6379",
			MaxRetries:      3,
			PoolSize:        10,
			MinIdleConns:    2,
			ConnMaxIdleTime: "30m",
			ConnMaxLifetime: "1h",
			StreamKey:       "firestore:changes",
			StreamMaxLength: 10000,
		},
		Gateway: GatewayConfig{
			Port:                    "3030",
			WebSocketPath:           "/ws/listen",
			ClientSendChannelBuffer: 16,
		},
	}
}
