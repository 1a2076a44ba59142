package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/internal/person"
	"personrelay/internal/relay"
	"personrelay/pkg/bootstrap"
	"personrelay/pkg/health"
	"personrelay/pkg/metrics"
	"personrelay/pkg/middleware"
	"personrelay/pkg/migrations"
	"personrelay/pkg/ratelimit"
	"personrelay/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	limiter        *ratelimit.IPLimiter
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameRelay)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initStores(ctx); err != nil {
		return err
	}

	if err := a.InitBroker(ctx); err != nil {
		return err
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) initStores(ctx context.Context) error {
	db, err := a.dbConnector.InitSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize row store: %w", err)
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize drain lock store: %w", err)
	}
	a.redisClient = rdb

	mc, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}
	a.mongoClient = mc

	if a.mongoClient != nil {
		if err := migrations.EnsureAuditCollection(ctx, a.auditDatabase(), a.Config.Relay.Audit.Collection); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to ensure audit indexes", "error", err)
		}
	}
	return nil
}

func (a *App) auditDatabase() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) initRouter() error {
	metrics.RegisterRelayMetrics()
	metrics.RegisterQueueMetrics()
	metrics.RegisterStoreMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterHTTPMetrics()

	repo, err := person.NewRepository(a.db, a.Config.Database.Driver, a.Config.Database.Table)
	if err != nil {
		return err
	}
	store := person.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)

	var opts []relay.Option
	if a.redisClient != nil {
		opts = append(opts, relay.WithLocker(relay.NewRedisLocker(a.redisClient, a.Config.Relay.Lock.TTL)))
	}
	if a.mongoClient != nil {
		opts = append(opts, relay.WithAuditSink(relay.NewMongoAuditSink(a.auditDatabase(), a.Config.Relay.Audit.Collection)))
	}

	relaySvc, err := relay.NewService(a.Broker, store, a.Config.Relay, a.Logger, opts...)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceNameRelay))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if a.Config.RateLimit.Enabled {
		a.limiter = ratelimit.NewIPLimiter(a.Config.RateLimit)
		router.Use(a.limiter.Middleware())
		a.Logger.InfowCtx(context.Background(), "Rate limiting enabled",
			"rps", a.Config.RateLimit.RPS,
			"burst", a.Config.RateLimit.Burst,
		)
	}

	person.NewHandler(person.NewService(store, a.Logger), a.Logger).RegisterRoutes(router)
	relay.NewHandler(relaySvc, a.Logger).RegisterRoutes(router)

	// The drain lock blocks every drain when Redis is gone; a missing audit
	// sink only loses history.
	healthRegistry := health.NewRegistry()
	healthRegistry.Register(health.SQL(a.Config.Database.Driver, a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.Redis(a.redisClient, true))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.MongoDB(a.mongoClient, false))
	}

	router.GET("/health", healthRegistry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gctx, a.Config.RateLimit.CleanupInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()

	return a.Base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := a.tracerProvider.Shutdown(flushCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return append(errs, a.dbConnector.ShutdownDatabases(ctx, a.db, a.redisClient, a.mongoClient)...)
	})
}
