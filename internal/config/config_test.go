package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
env: production
server:
  address: ":8080"
  allowed_origins: ["https://app.example.com"]
database:
  driver: mysql
  url: "user:pass@tcp(db:3306)/fixit?parseTime=true"
redis:
  addr: "redis:6379"
kafka:
  brokers: ["kafka:9092"]
jwt:
  secret: "from-file"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "booking-events", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "u:p@tcp(localhost:3306)/fixit")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":4001", cfg.Server.Address)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  url: x\nredis:\n  addr: r\n"))
	assert.ErrorContains(t, err, "jwt secret")

	_, err = Load(writeConfig(t, "database:\n  driver: postgres\n  url: x\nredis:\n  addr: r\njwt:\n  secret: s\n"))
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLoadBadInt(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	_, err := Load(writeConfig(t, sample))
	assert.ErrorContains(t, err, "REDIS_DB")
}
