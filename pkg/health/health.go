package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"personrelay/internal/constants"
	"personrelay/pkg/metrics"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker is one named dependency check. A non-critical checker failing only
// degrades the service; the endpoint keeps answering 200.
type Checker struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type Report struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]Result `json:"checks"`
}

type Result struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type Registry struct {
	timeout  time.Duration
	checkers []Checker
}

func NewRegistry() *Registry {
	return &Registry{timeout: constants.HealthCheckTimeout}
}

func (r *Registry) Register(p Checker) {
	r.checkers = append(r.checkers, p)
}

// Check runs every checker concurrently, each bounded by the registry timeout.
func (r *Registry) Check(ctx context.Context) Report {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(r.checkers))
		g       errgroup.Group
	)

	for _, p := range r.checkers {
		g.Go(func() error {
			res := r.run(ctx, p)
			mu.Lock()
			results[p.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, p := range r.checkers {
		if results[p.Name].Status == StatusHealthy {
			continue
		}
		if p.Critical {
			overall = StatusUnhealthy
		} else if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return Report{Status: overall, Timestamp: time.Now().UTC(), Checks: results}
}

func (r *Registry) run(ctx context.Context, p Checker) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	res := Result{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// Handler answers 503 only when a critical checker fails.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Check(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

// SQL pings the row store and publishes its open connection count.
func SQL(name string, db *sql.DB) Checker {
	return Checker{
		Name:     name,
		Critical: true,
		Check: func(ctx context.Context) error {
			metrics.SetDatabaseConnectionsOpen(name, db.Stats().OpenConnections)
			return db.PingContext(ctx)
		},
	}
}

func Redis(client *redis.Client, critical bool) Checker {
	return Checker{
		Name:     "redis",
		Critical: critical,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

func MongoDB(client *mongo.Client, critical bool) Checker {
	return Checker{
		Name:     "mongodb",
		Critical: critical,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	}
}
