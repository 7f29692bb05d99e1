package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, 8080, cfg.Emulator.Port)
	assert.Equal(t, "", cfg.EmulatorAddr())
	assert.Equal(t, "firestore:changes", cfg.Redis.StreamKey)
	assert.Equal(t, "/ws/listen", cfg.Gateway.WebSocketPath)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("FIRESTORE_ENABLED", "false")
	t.Setenv("FIRESTORE_DRIVER", DriverFirestore)
	t.Setenv("FIRESTORE_PROJECT_ID", "demo")
	t.Setenv("FIRESTORE_EMULATOR_ENABLED", "true")
	t.Setenv("FIRESTORE_EMULATOR_PORT", "9090")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "demo", cfg.ProjectID)
	assert.Equal(t, "localhost:9090", cfg.EmulatorAddr())
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
}

func TestEmulatorHostWithPort(t *testing.T) {
	e := EmulatorConfig{Enabled: true, Host: "127.0.0.1:8200", Port: 8080}
	assert.Equal(t, "127.0.0.1:8200", e.Addr())
}

func TestValidate(t *testing.T) {
	cfg := DefaultFirestoreConfig()
	require.NoError(t, cfg.Validate())

	cfg.Driver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "unknown FIRESTORE_DRIVER")

	cfg.Driver = DriverFirestore
	assert.ErrorContains(t, cfg.Validate(), "FIRESTORE_PROJECT_ID")

	cfg.Driver = DriverMongoDB
	cfg.MongoDBURI = ""
	assert.ErrorContains(t, cfg.Validate(), "MONGODB_URI")
}

func TestNewRedisClient(t *testing.T) {
	cfg := DefaultFirestoreConfig().Redis
	cfg.EnableTLS = true
	client := NewRedisClient(&cfg)
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, "localhost:6379", opts.Addr)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "localhost", opts.TLSConfig.ServerName)
}
