package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaJoinTimeout  = 30 * time.Second
)

const (
	DefaultServerPort  = 8000
	DefaultHTTPTimeout = 30 * time.Second
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
	DefaultTable    = "PeopleTable"
)

const (
	BrokerServiceBus = "servicebus"
	BrokerKafka      = "kafka"
	BrokerMemory     = "memory"

	DefaultQueueName         = "que1-cl"
	DefaultKafkaGroupID      = "personrelay"
	DefaultAuthorizationRule = "RootManageSharedAccessKey"
)

const (
	DefaultMaxMessages = 1000
	DefaultMaxWait     = 5 * time.Second

	AckBeforePersist = "before_persist"
	AckAfterCommit   = "after_commit"

	DrainLockKey           = "personrelay:drain-lock"
	DefaultLockTTL         = 5 * time.Minute
	DefaultAuditCollection = "relay_cycles"
	DefaultMongoDBName     = "personrelay"
)

const (
	DefaultEmailDomain = "example.com"
)

const (
	ServiceNameRelay     = "relay-service"
	ServiceNamePublisher = "publisher"
)
