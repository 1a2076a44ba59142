package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/internal/publisher"
	"personrelay/pkg/bootstrap"
	"personrelay/pkg/metrics"
	"personrelay/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	publisher      *publisher.Publisher
	tracerProvider *tracing.TracerProvider
	gatherer       prometheus.Gatherer
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log), gatherer: prometheus.DefaultGatherer}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNamePublisher)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPublisherMetrics()
	metrics.RegisterQueueMetrics()

	if err := a.InitBroker(ctx); err != nil {
		return err
	}

	a.publisher = publisher.NewPublisher(a.Broker, a.Config.Publisher, a.Logger)
	return nil
}

func (a *App) Run(ctx context.Context) (publisher.Report, error) {
	a.Logger.InfowCtx(ctx, "Publishing",
		"queue", a.Config.Broker.Queue,
		"total", a.Config.Publisher.Total,
		"workers", a.Config.Publisher.Workers,
	)
	report, err := a.publisher.PublishRange(ctx, a.Config.Publisher.Total, a.Config.Publisher.Workers)

	if pushErr := a.pushMetrics(context.WithoutCancel(ctx)); pushErr != nil {
		a.Logger.WarnwCtx(ctx, "Failed to push metrics", "error", pushErr)
	}
	return report, err
}

// pushMetrics hands the run's counters to a Pushgateway; a one-shot command
// is gone before any scrape could reach it.
func (a *App) pushMetrics(ctx context.Context) error {
	url := a.Config.Publisher.PushgatewayURL
	if url == "" {
		return nil
	}

	err := push.New(url, constants.ServiceNamePublisher).
		Grouping("queue", a.Config.Broker.Queue).
		Gatherer(a.gatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push to %s: %w", url, err)
	}
	a.Logger.DebugwCtx(ctx, "Metrics pushed", "pushgateway", url)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()

	return a.Base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			return []error{fmt.Errorf("tracer provider shutdown error: %w", err)}
		}
		return nil
	})
}
