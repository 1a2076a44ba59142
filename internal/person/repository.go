package person

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"personrelay/pkg/errors"
	"personrelay/pkg/metrics"
)

type Repository interface {
	List(ctx context.Context) ([]Person, error)
	Create(ctx context.Context, p Person) (Person, error)
	// InsertBatch inserts people in one transaction and returns the number of
	// rows the store reports as inserted.
	InsertBatch(ctx context.Context, people []Person) (int64, error)
}

type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

func NewRepository(db *sql.DB, driver, table string) (*SQLRepository, error) {
	d, err := newDialect(driver, table)
	if err != nil {
		return nil, err
	}
	return &SQLRepository{db: db, dialect: d}, nil
}

func (r *SQLRepository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(r.dialect.name, operation, status)
	metrics.ObserveDatabaseQueryDuration(r.dialect.name, operation, time.Since(start))
}

func (r *SQLRepository) List(ctx context.Context) (people []Person, err error) {
	defer func(start time.Time) { r.observe("list", start, err) }(time.Now())

	rows, err := r.db.QueryContext(ctx, r.dialect.selectAll)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	people = make([]Person, 0)
	for rows.Next() {
		var (
			p     Person
			email sql.NullString
		)
		if err := rows.Scan(&p.PersonID, &email); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		if email.Valid {
			p.Email = &email.String
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate people: %w", err)
	}

	return people, nil
}

func (r *SQLRepository) Create(ctx context.Context, p Person) (stored Person, err error) {
	defer func(start time.Time) { r.observe("create", start, err) }(time.Now())

	var email sql.NullString
	err = r.db.QueryRowContext(ctx, r.dialect.insertOne, p.PersonID, nullString(p.Email)).
		Scan(&stored.PersonID, &email)
	if err != nil {
		if r.dialect.isUnique(err) {
			return Person{}, errors.ErrConflict.WithCause(err).
				WithMessage("person with PersonID '%s' already exists", p.PersonID)
		}
		return Person{}, fmt.Errorf("failed to create person: %w", err)
	}
	if email.Valid {
		stored.Email = &email.String
	}

	return stored, nil
}

func (r *SQLRepository) InsertBatch(ctx context.Context, people []Person) (affected int64, err error) {
	defer func(start time.Time) { r.observe("insert_batch", start, err) }(time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, r.dialect.insertBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range people {
		res, err := stmt.ExecContext(ctx, p.PersonID, nullString(p.Email))
		if err != nil {
			return 0, fmt.Errorf("failed to insert person %s: %w", p.PersonID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		affected += n
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch insert: %w", err)
	}

	return affected, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
