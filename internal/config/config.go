package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Relay          RelayConfig          `mapstructure:"relay"`
	Publisher      PublisherConfig      `mapstructure:"publisher"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the row store dialect: "postgres" or "sqlserver".
	Driver        string          `mapstructure:"driver"`
	Table         string          `mapstructure:"table"`
	Postgres      PostgresConfig  `mapstructure:"postgres"`
	SQLServer     SQLServerConfig `mapstructure:"sqlserver"`
	Redis         RedisConfig     `mapstructure:"redis"`
	MongoDB       MongoDBConfig   `mapstructure:"mongodb"`
	RunMigrations bool            `mapstructure:"run_migrations"`
	ConnectRetry  RetryConfig     `mapstructure:"connect_retry"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SQLServerConfig struct {
	// ConnectionString is an ADO-style or sqlserver:// string. When it carries
	// no credentials, fedauth=ActiveDirectoryDefault is used.
	ConnectionString string `mapstructure:"connection_string"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	// Type is "servicebus", "kafka" or "memory".
	Type       string           `mapstructure:"type"`
	Queue      string           `mapstructure:"queue"`
	ServiceBus ServiceBusConfig `mapstructure:"servicebus"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ServiceBusConfig resolves a client in order: ConnectionString, then
// Namespace with DefaultAzureCredential, then a management-plane key lookup
// through SubscriptionID/ResourceGroup/NamespaceName/AuthorizationRule.
type ServiceBusConfig struct {
	ConnectionString  string `mapstructure:"connection_string"`
	Namespace         string `mapstructure:"namespace"`
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroup     string `mapstructure:"resource_group"`
	NamespaceName     string `mapstructure:"namespace_name"`
	AuthorizationRule string `mapstructure:"authorization_rule"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type RelayConfig struct {
	MaxMessages      int           `mapstructure:"max_messages"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	AckMode          string        `mapstructure:"ack_mode"`
	FilterExpression string        `mapstructure:"filter_expression"`
	Lock             LockConfig    `mapstructure:"lock"`
	Audit            AuditConfig   `mapstructure:"audit"`
}

type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Collection string `mapstructure:"collection"`
}

type PublisherConfig struct {
	Total       int    `mapstructure:"total"`
	Workers     int    `mapstructure:"workers"`
	EmailDomain string `mapstructure:"email_domain"`
	// PushgatewayURL receives the run's metrics once publishing ends. Empty
	// disables the push.
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
