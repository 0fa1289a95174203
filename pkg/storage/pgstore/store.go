// Package pgstore keeps enrollments in Postgres using pgvector columns.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/storage"
)

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements storage.Store on Postgres.
type Store struct {
	pool Pool
}

var (
	_ storage.Store    = (*Store)(nil)
	_ storage.Searcher = (*Store)(nil)
)

// New connects to dsn. Run the migrations first.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Enroll(ctx context.Context, subject string, e storage.Enrollment) (storage.Enrollment, error) {
	e, err := storage.Prepare(subject, e)
	if err != nil {
		return e, err
	}

	query := `
		INSERT INTO enrollments (id, subject_id, embedding, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, query, e.ID, subject, pgvector.NewVector(e.Vector), e.Source, e.CreatedAt); err != nil {
		return e, fmt.Errorf("insert enrollment: %w", err)
	}

	logging.Component("storage").WithFields(logging.Fields{
		"subject":    subject,
		"enrollment": e.ID,
	}).Info("Enrollment stored")
	return e, nil
}

func (s *Store) Get(ctx context.Context, subject string) (*storage.Subject, error) {
	if err := storage.ValidateSubject(subject); err != nil {
		return nil, err
	}

	query := `
		SELECT subject_id, id, embedding, source, created_at
		FROM enrollments
		WHERE subject_id = $1
		ORDER BY created_at, id
	`
	subjects, err := s.collect(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if len(subjects) == 0 {
		return nil, storage.ErrSubjectNotFound
	}
	return &subjects[0], nil
}

func (s *Store) List(ctx context.Context) ([]storage.Subject, error) {
	query := `
		SELECT subject_id, id, embedding, source, created_at
		FROM enrollments
		ORDER BY subject_id, created_at, id
	`
	subjects, err := s.collect(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

func (s *Store) Delete(ctx context.Context, subject string) error {
	if err := storage.ValidateSubject(subject); err != nil {
		return err
	}

	result, err := s.pool.Exec(ctx, `DELETE FROM enrollments WHERE subject_id = $1`, subject)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrSubjectNotFound
	}

	logging.Component("storage").WithField("subject", subject).Info("Subject deleted")
	return nil
}

// BestMatch ranks the subject's enrollments with the pgvector cosine
// distance operator.
func (s *Store) BestMatch(ctx context.Context, subject string, probe []float32) (storage.Enrollment, float64, error) {
	if err := storage.ValidateSubject(subject); err != nil {
		return storage.Enrollment{}, 0, err
	}

	query := `
		SELECT id, embedding, source, created_at, 1 - (embedding <=> $2) AS similarity
		FROM enrollments
		WHERE subject_id = $1
		ORDER BY embedding <=> $2
		LIMIT 1
	`

	var (
		e          storage.Enrollment
		embedding  *pgvector.Vector
		similarity float64
	)
	err := s.pool.QueryRow(ctx, query, subject, pgvector.NewVector(probe)).Scan(
		&e.ID, &embedding, &e.Source, &e.CreatedAt, &similarity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, 0, storage.ErrSubjectNotFound
	}
	if err != nil {
		return e, 0, fmt.Errorf("match subject: %w", err)
	}
	if embedding != nil {
		e.Vector = embedding.Slice()
	}
	return e, similarity, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// collect groups rows ordered by subject into subjects.
func (s *Store) collect(ctx context.Context, query string, args ...any) ([]storage.Subject, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := []storage.Subject{}
	for rows.Next() {
		var (
			subject   string
			id        uuid.UUID
			embedding *pgvector.Vector
			e         storage.Enrollment
		)
		if err := rows.Scan(&subject, &id, &embedding, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id
		if embedding != nil {
			e.Vector = embedding.Slice()
		}

		n := len(subjects)
		if n == 0 || subjects[n-1].ID != subject {
			subjects = append(subjects, storage.Subject{ID: subject, CreatedAt: e.CreatedAt})
			n++
		}
		cur := &subjects[n-1]
		cur.Enrollments = append(cur.Enrollments, e)
		cur.UpdatedAt = e.CreatedAt
	}
	return subjects, rows.Err()
}
