package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/microsoft/go-mssqldb/azuread"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/pkg/migrations"
	"personrelay/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// PostgresDSN renders the postgres section as a lib/pq URL.
func PostgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.SSLMode),
	}
	return u.String()
}

// SQLServerDSN returns the connection string for the azuread driver, adding
// fedauth=ActiveDirectoryDefault when the string carries neither a password
// nor an explicit fedauth setting.
func SQLServerDSN(connStr string) string {
	lower := strings.ToLower(connStr)
	if strings.Contains(lower, "fedauth") || strings.Contains(lower, "password") {
		return connStr
	}

	if strings.HasPrefix(lower, "sqlserver://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return connStr
		}
		q := u.Query()
		q.Set("fedauth", azuread.ActiveDirectoryDefault)
		u.RawQuery = q.Encode()
		return u.String()
	}

	return strings.TrimRight(connStr, "; ") + ";fedauth=" + azuread.ActiveDirectoryDefault
}

func (dc *DatabaseConnector) openSQL() (*sql.DB, error) {
	switch dc.Config.Database.Driver {
	case constants.DriverSQLServer:
		return sql.Open(azuread.DriverName, SQLServerDSN(dc.Config.Database.SQLServer.ConnectionString))
	default:
		return sql.Open("postgres", PostgresDSN(dc.Config.Database.Postgres))
	}
}

// InitSQL opens the row store, pings it with retry and applies migrations
// when database.run_migrations is set.
func (dc *DatabaseConnector) InitSQL(ctx context.Context) (*sql.DB, error) {
	driver := dc.Config.Database.Driver

	db, err := dc.openSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	policy := retry.FromConfig(dc.Config.Database.ConnectRetry)
	err = retry.Do(ctx, policy, "db_connect", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.WarnwCtx(ctx, "Database not reachable, retrying",
			"driver", driver,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.Up(db, driver); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.InfowCtx(ctx, "Database migrations applied", "driver", driver)
	}

	dc.Logger.InfowCtx(ctx, "Database connected successfully", "driver", driver)
	return db, nil
}

// InitRedis returns nil when the drain lock is disabled.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if !dc.Config.Relay.Lock.Enabled {
		return nil, nil
	}

	redisCfg := dc.Config.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "Redis connected successfully")
	return rdb, nil
}

// InitMongoDB returns nil when the cycle audit is disabled.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if !dc.Config.Relay.Audit.Enabled {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dc.Config.Database.MongoDB.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "MongoDB connected successfully")
	return client, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, db *sql.DB, rdb *redis.Client, mongoClient *mongo.Client) []error {
	var errs []error

	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sql close error: %w", err))
		}
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if mongoClient != nil {
		if err := mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
