package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personrelay/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  type: memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, constants.DefaultTable, cfg.Database.Table)
	assert.Equal(t, constants.DefaultQueueName, cfg.Broker.Queue)
	assert.Equal(t, constants.DefaultMaxMessages, cfg.Relay.MaxMessages)
	assert.Equal(t, 5*time.Second, cfg.Relay.MaxWait)
	assert.Equal(t, constants.AckBeforePersist, cfg.Relay.AckMode)
	assert.Equal(t, 10, cfg.Publisher.Total)
	assert.Equal(t, 10, cfg.Publisher.Workers)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  postgres:
    host: localhost
    user: relay
    password: secret
    dbname: people
broker:
  type: kafka
  queue: people
  kafka:
    brokers: ["localhost:9092"]
relay:
  max_messages: 50
  max_wait: 250ms
  ack_mode: after_commit
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, constants.DefaultKafkaGroupID, cfg.Broker.Kafka.GroupID)
	assert.Equal(t, 50, cfg.Relay.MaxMessages)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.MaxWait)
	assert.Equal(t, constants.AckAfterCommit, cfg.Relay.AckMode)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_TYPE", "kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("AZURE_SQL_CONNECTIONSTRING", "sqlserver://example.database.windows.net?database=people")
	t.Setenv("DATABASE_DRIVER", "sqlserver")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, constants.BrokerKafka, cfg.Broker.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, constants.DriverSQLServer, cfg.Database.Driver)
	assert.Equal(t, "sqlserver://example.database.windows.net?database=people", cfg.Database.SQLServer.ConnectionString)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
