package person

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel/attribute"

	"personrelay/internal/logger"
	"personrelay/pkg/errors"
	"personrelay/pkg/tracing"
)

type Service interface {
	// ListDisplay returns every stored row rendered with Person.Display.
	ListDisplay(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p Person) (Person, error)
}

type service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) Service {
	return &service{repo: repo, logger: log}
}

func (s *service) ListDisplay(ctx context.Context) ([]string, error) {
	ctx, span := tracing.Start(ctx, "person.list")
	defer span.End()

	people, err := s.repo.List(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return nil, asServiceError(err)
	}
	span.SetAttributes(attribute.Int("person.count", len(people)))

	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.Display())
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, p Person) (Person, error) {
	ctx, span := tracing.Start(ctx, "person.create", attribute.String("person.id", p.PersonID))
	defer span.End()

	if err := p.Validate(); err != nil {
		return Person{}, err
	}

	stored, err := s.repo.Create(ctx, p)
	if err != nil {
		tracing.Fail(span, err)
		return Person{}, asServiceError(err)
	}

	s.logger.InfowCtx(ctx, "Person created", "person_id", stored.PersonID)
	return stored, nil
}

// asServiceError keeps coded errors and classifies everything else as a
// row store failure.
func asServiceError(err error) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.ErrStore.WithCause(err)
}
