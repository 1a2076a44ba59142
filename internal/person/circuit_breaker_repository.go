package person

import (
	"context"
	"fmt"

	"personrelay/internal/config"
	"personrelay/pkg/circuitbreaker"
	"personrelay/pkg/errors"
)

const breakerName = "row-store"

// CircuitBreakerRepository fails fast while the row store is tripping.
// Duplicate-key conflicts are returned to the caller without counting as
// breaker failures.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) Repository {
	if !cfg.Enabled {
		return repo
	}
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromConfig(breakerName, cfg)),
	}
}

type conflictResult struct {
	err error
}

func (r *CircuitBreakerRepository) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		v, err := fn()
		if err != nil && errors.IsConflict(err) {
			return conflictResult{err: err}, nil
		}
		return v, err
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return nil, errors.ErrUnavailable.WithCause(err).
				WithMessage("circuit breaker is open for %s", breakerName)
		}
		return nil, err
	}
	if c, ok := result.(conflictResult); ok {
		return nil, c.err
	}
	return result, nil
}

func (r *CircuitBreakerRepository) List(ctx context.Context) ([]Person, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.repo.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	people, ok := result.([]Person)
	if !ok {
		return nil, fmt.Errorf("repository returned invalid result type %T", result)
	}
	return people, nil
}

func (r *CircuitBreakerRepository) Create(ctx context.Context, p Person) (Person, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.repo.Create(ctx, p)
	})
	if err != nil {
		return Person{}, err
	}
	stored, ok := result.(Person)
	if !ok {
		return Person{}, fmt.Errorf("repository returned invalid result type %T", result)
	}
	return stored, nil
}

func (r *CircuitBreakerRepository) InsertBatch(ctx context.Context, people []Person) (int64, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.repo.InsertBatch(ctx, people)
	})
	if err != nil {
		return 0, err
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("repository returned invalid result type %T", result)
	}
	return n, nil
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.State().String()
}
