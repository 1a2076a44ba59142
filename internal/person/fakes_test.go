package person

import (
	"context"
	"sync"

	"personrelay/pkg/errors"
)

type fakeRepository struct {
	mu      sync.Mutex
	rows    []Person
	err     error
	batches [][]Person
}

func (f *fakeRepository) List(ctx context.Context) ([]Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Person(nil), f.rows...), nil
}

func (f *fakeRepository) Create(ctx context.Context, p Person) (Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Person{}, f.err
	}
	for _, r := range f.rows {
		if r.PersonID == p.PersonID {
			return Person{}, errors.ErrConflict.WithMessage("person with PersonID '%s' already exists", p.PersonID)
		}
	}
	f.rows = append(f.rows, p)
	return p, nil
}

func (f *fakeRepository) InsertBatch(ctx context.Context, people []Person) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, people)
	f.rows = append(f.rows, people...)
	return int64(len(people)), nil
}
