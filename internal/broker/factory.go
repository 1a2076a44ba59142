package broker

import (
	"context"
	"fmt"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
)

func NewClient(ctx context.Context, cfg config.BrokerConfig, log logger.Logger) (Client, error) {
	switch cfg.Type {
	case constants.BrokerServiceBus:
		return NewServiceBusClient(ctx, cfg, log)
	case constants.BrokerKafka:
		return NewKafkaClient(cfg, log), nil
	case constants.BrokerMemory:
		return NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
