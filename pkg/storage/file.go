package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/MrCodeEU/facelive/pkg/logging"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStorage stores one file per subject under <dataDir>/subjects.
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
	mu                sync.Mutex
}

var _ Store = (*FileStorage)(nil)

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	// Key is tied to this machine and user
	if encryptionEnabled {
		fs.encryptionKey = deriveKey()
	}

	if err := os.MkdirAll(fs.subjectsDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create subjects directory: %w", err)
	}

	return fs, nil
}

func deriveKey() [KeySize]byte {
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facelive-v1-salt")

	return sha256.Sum256([]byte(identity.String()))
}

func (fs *FileStorage) subjectsDir() string {
	return filepath.Join(fs.dataDir, "subjects")
}

func (fs *FileStorage) ext() string {
	if fs.encryptionEnabled {
		return ".enc"
	}
	return ".json"
}

func (fs *FileStorage) subjectPath(id string) string {
	return filepath.Join(fs.subjectsDir(), id+fs.ext())
}

// Enroll appends an enrollment to the subject's file.
func (fs *FileStorage) Enroll(ctx context.Context, subject string, e Enrollment) (Enrollment, error) {
	e, err := Prepare(subject, e)
	if err != nil {
		return e, err
	}
	if err := ctx.Err(); err != nil {
		return e, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, err := fs.load(subject)
	switch {
	case errors.Is(err, ErrSubjectNotFound):
		s = &Subject{ID: subject, CreatedAt: e.CreatedAt}
	case err != nil:
		return e, err
	}

	s.Enrollments = append(s.Enrollments, e)
	s.UpdatedAt = e.CreatedAt
	if err := fs.save(s); err != nil {
		return e, err
	}

	logging.Component("storage").WithFields(logging.Fields{
		"subject":     subject,
		"enrollments": len(s.Enrollments),
	}).Info("Enrollment stored")
	return e, nil
}

// Get loads a subject.
func (fs *FileStorage) Get(ctx context.Context, subject string) (*Subject, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.load(subject)
}

// List returns every subject sorted by ID. Files that fail to load are
// skipped with a warning.
func (fs *FileStorage) List(ctx context.Context) ([]Subject, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.subjectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []Subject{}, nil
		}
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}

	subjects := []Subject{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fs.ext()) {
			continue
		}
		s, err := fs.load(strings.TrimSuffix(name, fs.ext()))
		if err != nil {
			logging.Component("storage").WithError(err).WithField("file", name).Warn("Skipping unreadable subject file")
			continue
		}
		subjects = append(subjects, *s)
	}

	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

// Delete removes a subject and all its enrollments.
func (fs *FileStorage) Delete(ctx context.Context, subject string) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.subjectPath(subject)); err != nil {
		if os.IsNotExist(err) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("failed to delete subject: %w", err)
	}

	logging.Component("storage").WithField("subject", subject).Info("Subject deleted")
	return nil
}

// Close is a no-op.
func (fs *FileStorage) Close() error { return nil }

func (fs *FileStorage) load(id string) (*Subject, error) {
	data, err := os.ReadFile(fs.subjectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to read subject data: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt subject data: %w", err)
		}
	}

	var s Subject
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject data: %w", err)
	}
	return &s, nil
}

// save writes through a temporary file so a crash never leaves a torn file.
func (fs *FileStorage) save(s *Subject) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal subject data: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt subject data: %w", err)
		}
	}

	path := fs.subjectPath(s.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write subject data: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write subject data: %w", err)
	}

	logging.Debugf("Saved subject data for: %s", s.ID)
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}
