package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/servicebus/armservicebus"
	"github.com/google/uuid"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/pkg/metrics"
	"personrelay/pkg/tracing"
)

type connectionSource int

const (
	sourceConnectionString connectionSource = iota
	sourceNamespace
	sourceManagementLookup
)

func (s connectionSource) String() string {
	switch s {
	case sourceConnectionString:
		return "connection_string"
	case sourceNamespace:
		return "namespace"
	default:
		return "management_lookup"
	}
}

func resolveSource(cfg config.ServiceBusConfig) connectionSource {
	switch {
	case cfg.ConnectionString != "":
		return sourceConnectionString
	case cfg.Namespace != "":
		return sourceNamespace
	default:
		return sourceManagementLookup
	}
}

// ServiceBusClient talks to one Azure Service Bus queue in peek-lock mode.
type ServiceBusClient struct {
	client *azservicebus.Client
	queue  string
	logger logger.Logger
}

func NewServiceBusClient(ctx context.Context, cfg config.BrokerConfig, log logger.Logger) (*ServiceBusClient, error) {
	sbCfg := cfg.ServiceBus
	source := resolveSource(sbCfg)

	var (
		client *azservicebus.Client
		err    error
	)

	switch source {
	case sourceConnectionString:
		client, err = azservicebus.NewClientFromConnectionString(sbCfg.ConnectionString, nil)
	case sourceNamespace:
		var cred azcore.TokenCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		client, err = azservicebus.NewClient(sbCfg.Namespace, cred, nil)
	case sourceManagementLookup:
		var connStr string
		connStr, err = lookupConnectionString(ctx, sbCfg)
		if err != nil {
			return nil, err
		}
		client, err = azservicebus.NewClientFromConnectionString(connStr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create service bus client: %w", err)
	}

	log.InfowCtx(ctx, "Service Bus client created",
		"queue", cfg.Queue,
		"source", source.String(),
	)

	return &ServiceBusClient{client: client, queue: cfg.Queue, logger: log}, nil
}

// lookupConnectionString reads the namespace authorization rule's primary
// connection string from the management plane.
func lookupConnectionString(ctx context.Context, cfg config.ServiceBusConfig) (string, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create azure credential: %w", err)
	}

	namespaces, err := armservicebus.NewNamespacesClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create namespaces client: %w", err)
	}

	rule := cfg.AuthorizationRule
	if rule == "" {
		rule = constants.DefaultAuthorizationRule
	}

	resp, err := namespaces.ListKeys(ctx, cfg.ResourceGroup, cfg.NamespaceName, rule, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list keys for namespace %s: %w", cfg.NamespaceName, err)
	}
	if resp.PrimaryConnectionString == nil || *resp.PrimaryConnectionString == "" {
		return "", fmt.Errorf("authorization rule %s on namespace %s has no primary connection string", rule, cfg.NamespaceName)
	}

	return *resp.PrimaryConnectionString, nil
}

func (c *ServiceBusClient) NewReceiver(ctx context.Context) (Receiver, error) {
	r, err := c.client.NewReceiverForQueue(c.queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create receiver for queue %s: %w", c.queue, err)
	}
	return &serviceBusReceiver{receiver: r}, nil
}

func (c *ServiceBusClient) NewSender(ctx context.Context) (Sender, error) {
	s, err := c.client.NewSender(c.queue, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender for queue %s: %w", c.queue, err)
	}
	return &serviceBusSender{sender: s}, nil
}

func (c *ServiceBusClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

type serviceBusReceiver struct {
	receiver *azservicebus.Receiver
}

func (r *serviceBusReceiver) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*Message, error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	received, err := r.receiver.ReceiveMessages(waitCtx, maxMessages, nil)
	metrics.ObserveQueueReceiveDuration(constants.BrokerServiceBus, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The wait elapsing with nothing to deliver is the drained signal.
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to receive service bus messages: %w", err)
		}
	}

	msgs := make([]*Message, 0, len(received))
	for _, m := range received {
		_, span := tracing.ConsumerSpanFromProperties(ctx, "servicebus.receive", m.ApplicationProperties)
		span.End()

		msgs = append(msgs, &Message{ID: m.MessageID, Body: m.Body, handle: m})
		metrics.ObserveQueueMessageSize(constants.BrokerServiceBus, "in", len(m.Body))
	}
	return msgs, nil
}

func (r *serviceBusReceiver) received(msg *Message) (*azservicebus.ReceivedMessage, error) {
	m, ok := msg.handle.(*azservicebus.ReceivedMessage)
	if !ok {
		return nil, fmt.Errorf("message %s was not received from service bus", msg.ID)
	}
	return m, nil
}

func (r *serviceBusReceiver) Complete(ctx context.Context, msg *Message) error {
	m, err := r.received(msg)
	if err != nil {
		return err
	}
	if err := r.receiver.CompleteMessage(ctx, m, nil); err != nil {
		return fmt.Errorf("failed to complete message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *serviceBusReceiver) Abandon(ctx context.Context, msg *Message) error {
	m, err := r.received(msg)
	if err != nil {
		return err
	}
	if err := r.receiver.AbandonMessage(ctx, m, nil); err != nil {
		return fmt.Errorf("failed to abandon message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *serviceBusReceiver) Close(ctx context.Context) error {
	return r.receiver.Close(ctx)
}

type serviceBusSender struct {
	sender *azservicebus.Sender
}

func (s *serviceBusSender) Send(ctx context.Context, body []byte) error {
	messageID := uuid.New().String()
	contentType := "application/json"

	start := time.Now()
	err := s.sender.SendMessage(ctx, &azservicebus.Message{
		Body:                  body,
		MessageID:             &messageID,
		ContentType:           &contentType,
		ApplicationProperties: tracing.InjectProperties(ctx, nil),
	}, nil)
	metrics.ObserveQueueSendDuration(constants.BrokerServiceBus, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to send service bus message: %w", err)
	}

	metrics.ObserveQueueMessageSize(constants.BrokerServiceBus, "out", len(body))
	return nil
}

func (s *serviceBusSender) Close(ctx context.Context) error {
	return s.sender.Close(ctx)
}
