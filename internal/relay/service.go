package relay

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"personrelay/internal/broker"
	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/internal/person"
	"personrelay/pkg/errors"
	"personrelay/pkg/logging"
	"personrelay/pkg/metrics"
	"personrelay/pkg/tracing"
)

// Store is the part of the row store the relay writes to.
type Store interface {
	InsertBatch(ctx context.Context, people []person.Person) (int64, error)
}

// Result summarises one drain cycle. Received = Parsed + Skipped, and
// Filtered records are parsed records left out of the insert.
type Result struct {
	Received int `json:"received" bson:"received"`
	Parsed   int `json:"parsed" bson:"parsed"`
	Skipped  int `json:"skipped" bson:"skipped"`
	Filtered int `json:"filtered" bson:"filtered"`
	Inserted int `json:"inserted" bson:"inserted"`
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithAuditSink(a AuditSink) Option {
	return func(s *Service) { s.audit = a }
}

type Service struct {
	client broker.Client
	store  Store
	cfg    config.RelayConfig
	filter *recordFilter
	locker Locker
	audit  AuditSink
	logger logger.Logger
}

func NewService(client broker.Client, store Store, cfg config.RelayConfig, log logger.Logger, opts ...Option) (*Service, error) {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = constants.DefaultMaxMessages
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = constants.DefaultMaxWait
	}
	if cfg.AckMode == "" {
		cfg.AckMode = constants.AckBeforePersist
	}
	if cfg.AckMode != constants.AckBeforePersist && cfg.AckMode != constants.AckAfterCommit {
		return nil, fmt.Errorf("unknown ack mode %q", cfg.AckMode)
	}

	s := &Service{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: log.With("ack_mode", cfg.AckMode),
	}

	if cfg.FilterExpression != "" {
		filter, err := compileFilter(cfg.FilterExpression)
		if err != nil {
			return nil, err
		}
		s.filter = filter
		s.logger.Infow("Record filter enabled", "expression", filter.predicate.Expression())
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// bufferedMessage is a received body kept until the parse step.
type bufferedMessage struct {
	msg  *broker.Message
	body []byte
}

// DrainAndInsert receives every message currently available on the queue,
// parses them, and inserts the parsed records in one batch. Parse failures
// are skipped; queue and store failures abort the cycle and are returned as
// coded service errors. Messages already completed are not rolled back.
//
// A started cycle is not cancellable: it keeps the values of ctx but ignores
// its cancellation, so a caller going away cannot strand acknowledged
// messages between the drain and the insert. Every receive is still bounded
// by max_wait.
func (s *Service) DrainAndInsert(ctx context.Context) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	ctx, span := tracing.Start(ctx, "relay.drain_and_insert",
		attribute.String("relay.cycle_id", cycleID),
		attribute.String("relay.ack_mode", s.cfg.AckMode),
	)
	defer span.End()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if err != nil {
			tracing.Fail(span, err)
			s.logger.WarnwCtx(ctx, "Drain rejected", "error", err)
			metrics.ObserveRelayCycle("rejected", 0)
			return Result{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnwCtx(ctx, "Failed to release drain lock", "error", err)
			}
		}()
	}

	started := time.Now()
	res, err := s.drainAndInsert(ctx)
	elapsed := time.Since(started)

	status := "success"
	if err != nil {
		status = "error"
		tracing.Fail(span, err)
		s.logger.ErrorwCtx(ctx, "Relay cycle failed",
			"error", err,
			"received", res.Received,
			"inserted", res.Inserted,
		)
	} else {
		s.logger.InfowCtx(ctx, "Relay cycle completed",
			"received", res.Received,
			"parsed", res.Parsed,
			"skipped", res.Skipped,
			"filtered", res.Filtered,
			"inserted", res.Inserted,
			"duration", elapsed,
		)
	}
	span.SetAttributes(
		attribute.Int("relay.received", res.Received),
		attribute.Int("relay.inserted", res.Inserted),
	)

	metrics.ObserveRelayCycle(status, elapsed)
	metrics.AddRelayMessages("received", res.Received)
	metrics.AddRelayMessages("parsed", res.Parsed)
	metrics.AddRelayMessages("skipped", res.Skipped)
	metrics.AddRelayMessages("filtered", res.Filtered)
	metrics.AddRowsInserted(int64(res.Inserted))

	if s.audit != nil {
		rec := CycleRecord{
			CycleID:    cycleID,
			StartedAt:  started.UTC(),
			DurationMs: elapsed.Milliseconds(),
			Status:     status,
			AckMode:    s.cfg.AckMode,
			Result:     res,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if auditErr := s.audit.Record(context.WithoutCancel(ctx), rec); auditErr != nil {
			s.logger.WarnwCtx(ctx, "Failed to record relay cycle", "error", auditErr)
		}
	}

	return res, err
}

func (s *Service) drainAndInsert(ctx context.Context) (res Result, err error) {
	receiver, err := s.client.NewReceiver(ctx)
	if err != nil {
		return res, errors.ErrQueue.WithCause(err)
	}
	defer func() {
		if closeErr := receiver.Close(context.WithoutCancel(ctx)); closeErr != nil {
			s.logger.WarnwCtx(ctx, "Failed to close receiver", "error", closeErr)
		}
	}()

	afterCommit := s.cfg.AckMode == constants.AckAfterCommit

	buffered, err := s.drain(ctx, receiver, afterCommit)
	res.Received = len(buffered)
	if err != nil {
		if afterCommit {
			s.abandonAll(ctx, receiver, buffered)
		}
		return res, err
	}

	batch := s.parse(ctx, buffered, &res)
	metrics.ObserveRelayBatchSize(len(batch))

	if len(batch) > 0 {
		n, insertErr := s.store.InsertBatch(ctx, batch)
		if insertErr != nil {
			if afterCommit {
				s.abandonAll(ctx, receiver, buffered)
			}
			return res, storeError(insertErr)
		}
		res.Inserted = int(n)
	}

	if afterCommit {
		for _, b := range buffered {
			if err := receiver.Complete(ctx, b.msg); err != nil {
				return res, errors.ErrQueue.WithCause(err).
					WithMessage("rows committed but message %s could not be completed", b.msg.ID)
			}
		}
	}

	return res, nil
}

// drain receives until a call returns no messages. In before_persist mode
// each message is completed as soon as it is buffered, in receive order.
func (s *Service) drain(ctx context.Context, receiver broker.Receiver, afterCommit bool) ([]bufferedMessage, error) {
	buffered := make([]bufferedMessage, 0)

	for {
		msgs, err := receiver.Receive(ctx, s.cfg.MaxMessages, s.cfg.MaxWait)
		if err != nil {
			return buffered, errors.ErrQueue.WithCause(err)
		}
		if len(msgs) == 0 {
			return buffered, nil
		}

		for _, m := range msgs {
			buffered = append(buffered, bufferedMessage{msg: m, body: m.Body})
			if afterCommit {
				continue
			}
			if err := receiver.Complete(ctx, m); err != nil {
				return buffered, errors.ErrQueue.WithCause(err).
					WithMessage("failed to complete message %s", m.ID)
			}
		}
	}
}

func (s *Service) parse(ctx context.Context, buffered []bufferedMessage, res *Result) []person.Person {
	batch := make([]person.Person, 0, len(buffered))

	for _, b := range buffered {
		msgCtx := logging.WithMessageID(ctx, b.msg.ID)

		p, err := person.Parse(b.body)
		if err != nil {
			res.Skipped++
			s.logger.WarnwCtx(msgCtx, "Skipping unparseable message", "error", err, "size", len(b.body))
			continue
		}
		res.Parsed++

		if s.filter != nil {
			keep, err := s.filter.match(msgCtx, b.msg.ID, p)
			if err != nil {
				s.logger.WarnwCtx(msgCtx, "Filter evaluation failed, excluding record", "error", err, "person_id", p.PersonID)
			}
			if !keep {
				res.Filtered++
				continue
			}
		}

		batch = append(batch, p)
	}

	return batch
}

func (s *Service) abandonAll(ctx context.Context, receiver broker.Receiver, buffered []bufferedMessage) {
	for _, b := range buffered {
		if err := receiver.Abandon(context.WithoutCancel(ctx), b.msg); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to abandon message", "message_id", b.msg.ID, "error", err)
		}
	}
}

func storeError(err error) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.ErrStore.WithCause(err)
}
