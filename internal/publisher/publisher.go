package publisher

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"personrelay/internal/broker"
	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/internal/person"
	"personrelay/pkg/metrics"
	"personrelay/pkg/tracing"
)

// Range is the half-open ID interval [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Partition splits [0, total) into workers contiguous ranges of total/workers
// IDs each; the last range also takes the remainder. When workers exceeds
// total every range but the last is empty.
func Partition(total, workers int) ([]Range, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if total < 0 {
		total = 0
	}

	per := total / workers
	ranges := make([]Range, workers)
	for i := 0; i < workers; i++ {
		ranges[i] = Range{Start: i * per, End: (i + 1) * per}
	}
	ranges[workers-1].End = total
	return ranges, nil
}

type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Publisher struct {
	client      broker.Client
	emailDomain string
	logger      logger.Logger
}

func NewPublisher(client broker.Client, cfg config.PublisherConfig, log logger.Logger) *Publisher {
	domain := cfg.EmailDomain
	if domain == "" {
		domain = constants.DefaultEmailDomain
	}
	return &Publisher{client: client, emailDomain: domain, logger: log}
}

// Payload is the message published for id.
func (p *Publisher) Payload(id int) ([]byte, error) {
	email := fmt.Sprintf("user%d@%s", id, p.emailDomain)
	return person.Encode(person.New(strconv.Itoa(id), &email))
}

// PublishRange publishes one message per ID in [0, total) across workers
// concurrent senders and returns once every range has been attempted. Send
// failures are logged and counted; they never stop a sender.
func (p *Publisher) PublishRange(ctx context.Context, total, workers int) (Report, error) {
	ranges, err := Partition(total, workers)
	if err != nil {
		return Report{}, err
	}

	ctx, span := tracing.Start(ctx, "publisher.publish_range",
		attribute.Int("publisher.total", total),
		attribute.Int("publisher.workers", workers),
	)
	defer span.End()

	reports := make([]Report, len(ranges))
	var g errgroup.Group
	for i, r := range ranges {
		if r.Len() == 0 {
			continue
		}
		g.Go(func() error {
			reports[i] = p.publish(ctx, i, r)
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	for _, r := range reports {
		report.Sent += r.Sent
		report.Failed += r.Failed
	}

	p.logger.InfowCtx(ctx, "Publish finished",
		"total", total,
		"workers", workers,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

func (p *Publisher) publish(ctx context.Context, worker int, r Range) Report {
	var report Report
	log := p.logger.With("worker", worker, "start", r.Start, "end", r.End)

	sender, err := p.client.NewSender(ctx)
	if err != nil {
		log.ErrorwCtx(ctx, "Failed to open sender", "error", err)
		report.Failed = r.Len()
		for i := 0; i < r.Len(); i++ {
			metrics.IncPublisherMessage("failed")
		}
		return report
	}
	defer func() {
		if err := sender.Close(context.WithoutCancel(ctx)); err != nil {
			log.WarnwCtx(ctx, "Failed to close sender", "error", err)
		}
	}()

	for id := r.Start; id < r.End; id++ {
		if err := p.send(ctx, sender, id); err != nil {
			report.Failed++
			metrics.IncPublisherMessage("failed")
			log.WarnwCtx(ctx, "Failed to send message", "person_id", id, "error", err)
			continue
		}
		report.Sent++
		metrics.IncPublisherMessage("sent")
	}

	log.DebugwCtx(ctx, "Worker finished", "sent", report.Sent)
	return report
}

func (p *Publisher) send(ctx context.Context, sender broker.Sender, id int) error {
	body, err := p.Payload(id)
	if err != nil {
		return err
	}
	return sender.Send(ctx, body)
}
