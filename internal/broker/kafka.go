package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/pkg/metrics"
	"personrelay/pkg/tracing"
)

// kafkaLinger bounds how long Receive keeps collecting once the first
// message of a batch has arrived.
const kafkaLinger = 250 * time.Millisecond

const kafkaJoinPoll = 100 * time.Millisecond

// KafkaClient maps the queue onto a topic read by one consumer group.
// Complete commits the message offset; Abandon leaves it uncommitted so the
// group redelivers it after a rebalance or restart.
//
// All receivers share one reader, so the group is joined once per client
// rather than once per drain cycle. The reader lives until Close.
type KafkaClient struct {
	cfg    config.KafkaConfig
	topic  string
	logger logger.Logger

	mu     sync.Mutex
	reader *kafka.Reader
	joined bool

	joinMu sync.Mutex
}

func NewKafkaClient(cfg config.BrokerConfig, log logger.Logger) *KafkaClient {
	return &KafkaClient{cfg: cfg.Kafka, topic: cfg.Queue, logger: log}
}

func (c *KafkaClient) NewReceiver(ctx context.Context) (Receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		c.logger.DebugwCtx(ctx, "Creating Kafka reader",
			"topic", c.topic,
			"brokers", c.cfg.Brokers,
			"group_id", c.cfg.GroupID,
		)
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        c.cfg.Brokers,
			GroupID:        c.cfg.GroupID,
			Topic:          c.topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		})
		c.joined = false
	}
	return &kafkaReceiver{client: c, reader: c.reader, topic: c.topic}, nil
}

// awaitJoin blocks until reader has received its first partition assignment,
// for at most KafkaJoinTimeout. It waits once per reader; later calls return
// immediately whether or not that wait saw the join.
func (c *KafkaClient) awaitJoin(ctx context.Context, reader *kafka.Reader) {
	// Stats resets its counters, so only one caller may poll them.
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	joined := c.joined || c.reader != reader
	c.mu.Unlock()
	if joined {
		return
	}
	defer func() {
		c.mu.Lock()
		if c.reader == reader {
			c.joined = true
		}
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, constants.KafkaJoinTimeout)
	defer cancel()
	ticker := time.NewTicker(kafkaJoinPoll)
	defer ticker.Stop()

	start := time.Now()
	for {
		if reader.Stats().Rebalances > 0 {
			c.logger.DebugwCtx(ctx, "Joined Kafka consumer group",
				"group_id", c.cfg.GroupID,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return
		}
		select {
		case <-ctx.Done():
			c.logger.WarnwCtx(ctx, "Kafka consumer group join still pending",
				"group_id", c.cfg.GroupID,
				"waited_ms", time.Since(start).Milliseconds(),
			)
			return
		case <-ticker.C:
		}
	}
}

func (c *KafkaClient) NewSender(ctx context.Context) (Sender, error) {
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Brokers...),
		Topic:        c.topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &kafkaSender{writer: w, topic: c.topic}, nil
}

func (c *KafkaClient) Close(ctx context.Context) error {
	c.mu.Lock()
	reader := c.reader
	c.reader = nil
	c.joined = false
	c.mu.Unlock()

	if reader == nil {
		return nil
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}

type kafkaReceiver struct {
	client *KafkaClient
	reader *kafka.Reader
	topic  string
}

// Receive does not count the initial consumer group join against maxWait.
func (r *kafkaReceiver) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*Message, error) {
	r.client.awaitJoin(ctx, r.reader)

	start := time.Now()
	deadline := start.Add(maxWait)
	msgs := make([]*Message, 0)

	for len(msgs) < maxMessages {
		wait := time.Until(deadline)
		if len(msgs) > 0 && wait > kafkaLinger {
			wait = kafkaLinger
		}
		if wait <= 0 {
			break
		}

		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		m, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		_, span := tracing.ConsumerSpanFromKafka(ctx, "kafka.receive", m.Headers)
		span.End()

		msgs = append(msgs, &Message{
			ID:     fmt.Sprintf("%d-%d", m.Partition, m.Offset),
			Body:   m.Value,
			handle: m,
		})
		metrics.ObserveQueueMessageSize(constants.BrokerKafka, "in", len(m.Value))
	}

	metrics.ObserveQueueReceiveDuration(constants.BrokerKafka, time.Since(start))
	return msgs, nil
}

func (r *kafkaReceiver) Complete(ctx context.Context, msg *Message) error {
	m, ok := msg.handle.(kafka.Message)
	if !ok {
		return fmt.Errorf("message %s was not received from kafka", msg.ID)
	}
	if err := r.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("failed to commit kafka message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *kafkaReceiver) Abandon(ctx context.Context, msg *Message) error {
	return nil
}

// Close leaves the shared reader open for the next cycle.
func (r *kafkaReceiver) Close(ctx context.Context) error {
	return nil
}

type kafkaSender struct {
	writer *kafka.Writer
	topic  string
}

func (s *kafkaSender) Send(ctx context.Context, body []byte) error {
	headers := tracing.InjectKafkaHeaders(ctx, nil)

	start := time.Now()
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(uuid.New().String()),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	metrics.ObserveQueueSendDuration(constants.BrokerKafka, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.ObserveQueueMessageSize(constants.BrokerKafka, "out", len(body))
	return nil
}

func (s *kafkaSender) Close(ctx context.Context) error {
	return s.writer.Close()
}
