package config

import (
	"errors"
	"fmt"
	"strings"

	"personrelay/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errs = append(errs, err)
	}

	if err := validateRelay(cfg.Relay, cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validatePublisher(cfg.Publisher); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read and write timeouts must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Table == "" {
		return &ValidationError{Field: "database.table", Message: "table name is required"}
	}

	switch cfg.Driver {
	case constants.DriverPostgres:
		if cfg.Postgres.Host != "" {
			if err := validatePostgres(cfg.Postgres); err != nil {
				return err
			}
		}
	case constants.DriverSQLServer:
		if cfg.SQLServer.ConnectionString == "" {
			return &ValidationError{
				Field:   "database.sqlserver.connection_string",
				Message: "connection string is required for the sqlserver driver",
			}
		}
	default:
		return &ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown driver: %s (supported: postgres, sqlserver)", cfg.Driver),
		}
	}

	if cfg.Redis.Host != "" && (cfg.Redis.Port < 1 || cfg.Redis.Port > 65535) {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
		}
	}

	if cfg.MongoDB.URI != "" {
		if !strings.HasPrefix(cfg.MongoDB.URI, "mongodb://") && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb+srv://") {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
			}
		}
		if cfg.MongoDB.Database == "" {
			return &ValidationError{
				Field:   "database.mongodb.database",
				Message: "MongoDB database name is required",
			}
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{Field: "database.postgres.user", Message: "PostgreSQL user is required"}
	}

	if cfg.DBName == "" {
		return &ValidationError{Field: "database.postgres.dbname", Message: "PostgreSQL database name is required"}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s", cfg.SSLMode),
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Queue == "" {
		return &ValidationError{Field: "broker.queue", Message: "queue name is required"}
	}

	switch cfg.Type {
	case constants.BrokerServiceBus:
		return validateServiceBus(cfg.ServiceBus)
	case constants.BrokerKafka:
		return validateKafka(cfg.Kafka)
	case constants.BrokerMemory:
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: servicebus, kafka, memory)", cfg.Type),
		}
	}
}

func validateServiceBus(cfg ServiceBusConfig) error {
	if cfg.ConnectionString != "" || cfg.Namespace != "" {
		return nil
	}

	if cfg.SubscriptionID == "" || cfg.ResourceGroup == "" || cfg.NamespaceName == "" {
		return &ValidationError{
			Field:   "broker.servicebus",
			Message: "one of connection_string, namespace, or subscription_id+resource_group+namespace_name is required",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return nil
}

func validateRelay(cfg RelayConfig, db DatabaseConfig) error {
	if cfg.MaxMessages < 1 {
		return &ValidationError{Field: "relay.max_messages", Message: "max_messages must be positive"}
	}

	if cfg.MaxWait <= 0 {
		return &ValidationError{Field: "relay.max_wait", Message: "max_wait must be positive"}
	}

	if cfg.AckMode != constants.AckBeforePersist && cfg.AckMode != constants.AckAfterCommit {
		return &ValidationError{
			Field:   "relay.ack_mode",
			Message: fmt.Sprintf("invalid ack mode: %s (valid: %s, %s)", cfg.AckMode, constants.AckBeforePersist, constants.AckAfterCommit),
		}
	}

	if cfg.Lock.Enabled {
		if db.Redis.Host == "" {
			return &ValidationError{Field: "relay.lock.enabled", Message: "drain lock requires database.redis"}
		}
		if cfg.Lock.TTL <= 0 {
			return &ValidationError{Field: "relay.lock.ttl", Message: "lock ttl must be positive"}
		}
	}

	if cfg.Audit.Enabled && db.MongoDB.URI == "" {
		return &ValidationError{Field: "relay.audit.enabled", Message: "cycle audit requires database.mongodb"}
	}

	return nil
}

func validatePublisher(cfg PublisherConfig) error {
	if cfg.Total < 0 {
		return &ValidationError{Field: "publisher.total", Message: "total must be non-negative"}
	}

	if cfg.Workers < 1 {
		return &ValidationError{Field: "publisher.workers", Message: "workers must be positive"}
	}

	return nil
}
