// Package storage keeps enrolled face embeddings per subject. FileStorage
// encrypts them at rest using NaCl secretbox; the pgstore subpackage keeps
// them in Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Enrollment is one stored embedding.
type Enrollment struct {
	ID        uuid.UUID `json:"id"`
	Vector    []float32 `json:"vector"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject is an enrolled identity with its embeddings, oldest first.
type Subject struct {
	ID          string       `json:"id"`
	Enrollments []Enrollment `json:"enrollments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Vectors returns the embedding of every enrollment.
func (s *Subject) Vectors() [][]float32 {
	out := make([][]float32, len(s.Enrollments))
	for i, e := range s.Enrollments {
		out[i] = e.Vector
	}
	return out
}

// Store persists enrollments.
type Store interface {
	// Enroll appends an enrollment, creating the subject on first use. A zero
	// ID or CreatedAt is filled in.
	Enroll(ctx context.Context, subject string, e Enrollment) (Enrollment, error)
	Get(ctx context.Context, subject string) (*Subject, error)
	List(ctx context.Context) ([]Subject, error)
	Delete(ctx context.Context, subject string) error
	Close() error
}

// Backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds storage settings.
type Config struct {
	Backend           string `yaml:"backend" envconfig:"BACKEND"`
	DataDir           string `yaml:"data_dir" envconfig:"DATA_DIR"`
	EncryptionEnabled bool   `yaml:"encryption_enabled" envconfig:"ENCRYPTION_ENABLED"`
	DatabaseURL       string `yaml:"database_url" envconfig:"DATABASE_URL"`
}

// DefaultConfig returns an encrypted file store under the user data dir.
func DefaultConfig() Config {
	return Config{
		Backend:           BackendFile,
		DataDir:           "~/.local/share/facelive",
		EncryptionEnabled: true,
	}
}

// Validate checks the backend settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.DataDir == "" {
			return errors.New("storage data_dir must be set for the file backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("storage database_url must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid storage backend %q (must be %s or %s)", c.Backend, BackendFile, BackendPostgres)
	}
	return nil
}

// ErrSubjectNotFound is returned when the subject has no enrollments.
var ErrSubjectNotFound = errors.New("subject not found")

// ErrInvalidSubject is returned for subject IDs that are empty or contain
// characters outside [A-Za-z0-9._-].
var ErrInvalidSubject = errors.New("invalid subject id")

// ErrEmptyVector is returned when enrolling without an embedding.
var ErrEmptyVector = errors.New("enrollment has no vector")

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateSubject checks a subject ID.
func ValidateSubject(id string) error {
	if !subjectPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}
	return nil
}

// Prepare validates an enrollment and fills in its ID and timestamp.
func Prepare(subject string, e Enrollment) (Enrollment, error) {
	if err := ValidateSubject(subject); err != nil {
		return e, err
	}
	if len(e.Vector) == 0 {
		return e, ErrEmptyVector
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Vector = append([]float32(nil), e.Vector...)
	return e, nil
}

// Searcher is implemented by stores that rank a subject's enrollments by
// cosine similarity themselves.
type Searcher interface {
	BestMatch(ctx context.Context, subject string, probe []float32) (Enrollment, float64, error)
}
