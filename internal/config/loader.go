package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"personrelay/internal/constants"
)

// LoadConfig reads configFile (optional) and overlays environment variables.
// An empty configFile yields defaults plus environment only.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.read_timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultHTTPTimeout)

	v.SetDefault("database.driver", constants.DriverPostgres)
	v.SetDefault("database.table", constants.DefaultTable)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.connect_retry.max_attempts", 5)
	v.SetDefault("database.connect_retry.initial_interval", "1s")
	v.SetDefault("database.connect_retry.max_interval", "10s")
	v.SetDefault("database.connect_retry.multiplier", 2.0)

	v.SetDefault("broker.type", constants.BrokerServiceBus)
	v.SetDefault("broker.queue", constants.DefaultQueueName)
	v.SetDefault("broker.servicebus.authorization_rule", constants.DefaultAuthorizationRule)
	v.SetDefault("broker.kafka.group_id", constants.DefaultKafkaGroupID)

	v.SetDefault("relay.max_messages", constants.DefaultMaxMessages)
	v.SetDefault("relay.max_wait", constants.DefaultMaxWait)
	v.SetDefault("relay.ack_mode", constants.AckBeforePersist)
	v.SetDefault("relay.lock.ttl", constants.DefaultLockTTL)
	v.SetDefault("relay.audit.collection", constants.DefaultAuditCollection)

	v.SetDefault("publisher.total", 10)
	v.SetDefault("publisher.workers", 10)
	v.SetDefault("publisher.email_domain", constants.DefaultEmailDomain)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.max_age", "10m")
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.table", "DATABASE_TABLE")
	v.BindEnv("database.run_migrations", "DATABASE_RUN_MIGRATIONS")
	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")
	v.BindEnv("database.sqlserver.connection_string", "DATABASE_SQLSERVER_CONNECTION_STRING", "AZURE_SQL_CONNECTIONSTRING")
	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("broker.type", "BROKER_TYPE")
	v.BindEnv("broker.queue", "BROKER_QUEUE")
	v.BindEnv("broker.servicebus.connection_string", "BROKER_SERVICEBUS_CONNECTION_STRING", "SERVICEBUS_CONNECTION_STRING")
	v.BindEnv("broker.servicebus.namespace", "BROKER_SERVICEBUS_NAMESPACE")
	v.BindEnv("broker.servicebus.subscription_id", "BROKER_SERVICEBUS_SUBSCRIPTION_ID", "AZURE_SUBSCRIPTION_ID")
	v.BindEnv("broker.servicebus.resource_group", "BROKER_SERVICEBUS_RESOURCE_GROUP")
	v.BindEnv("broker.servicebus.namespace_name", "BROKER_SERVICEBUS_NAMESPACE_NAME")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")

	v.BindEnv("relay.max_messages", "RELAY_MAX_MESSAGES")
	v.BindEnv("relay.max_wait", "RELAY_MAX_WAIT")
	v.BindEnv("relay.ack_mode", "RELAY_ACK_MODE")
	v.BindEnv("relay.filter_expression", "RELAY_FILTER_EXPRESSION")

	v.BindEnv("publisher.pushgateway_url", "PUBLISHER_PUSHGATEWAY_URL")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

// applyEnvOverrides handles values viper cannot decode from a flat string.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
