package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"personrelay/internal/broker"
	"personrelay/internal/config"
	"personrelay/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Broker broker.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(ctx context.Context) error {
	client, err := broker.NewClient(ctx, b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}
	b.Broker = client
	return nil
}

// Shutdown closes the broker and then runs additionalShutdown, collecting
// every error.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error
	if b.Broker != nil {
		if err := b.Broker.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("broker close error: %w", err))
		}
	}
	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
