package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testVector(seed int) []float32 {
	v := make([]float32, 128)
	for j := range v {
		v[j] = float32(seed*128+j) / 1000.0
	}
	return v
}

func newStore(t *testing.T, encrypted bool) (*FileStorage, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFileStorage(dir, encrypted)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return fs, dir
}

func TestNewFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		encryption bool
	}{
		{"without encryption", filepath.Join(tmpDir, "test1"), false},
		{"with encryption", filepath.Join(tmpDir, "test2"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStorage(tt.dataDir, tt.encryption)
			if err != nil {
				t.Fatalf("NewFileStorage() error = %v", err)
			}
			if fs == nil {
				t.Fatal("NewFileStorage returned nil")
			}
			if _, err := os.Stat(filepath.Join(tt.dataDir, "subjects")); os.IsNotExist(err) {
				t.Error("subjects directory was not created")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"file without dir", Config{Backend: BackendFile}, true},
		{"postgres", Config{Backend: BackendPostgres, DatabaseURL: "postgres://localhost/facelive"}, false},
		{"postgres without url", Config{Backend: BackendPostgres}, true},
		{"unknown backend", Config{Backend: "s3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSubject(t *testing.T) {
	valid := []string{"alice", "user-42", "a.b_c"}
	invalid := []string{"", ".", "..", "../etc/passwd", "has space", "a/b"}

	for _, id := range valid {
		if err := ValidateSubject(id); err != nil {
			t.Errorf("expected %q to be valid, got %v", id, err)
		}
	}
	for _, id := range invalid {
		if err := ValidateSubject(id); !errors.Is(err, ErrInvalidSubject) {
			t.Errorf("expected ErrInvalidSubject for %q, got %v", id, err)
		}
	}
}

func TestPrepare(t *testing.T) {
	vec := testVector(0)
	e, err := Prepare("alice", Enrollment{Vector: vec})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected an ID to be assigned")
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	vec[0] = 99
	if e.Vector[0] == 99 {
		t.Error("expected the vector to be copied")
	}

	id := uuid.New()
	e, _ = Prepare("alice", Enrollment{ID: id, Vector: vec})
	if e.ID != id {
		t.Error("expected an existing ID to be kept")
	}

	if _, err := Prepare("alice", Enrollment{}); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("expected ErrEmptyVector, got %v", err)
	}
}

func TestFileStorage_EnrollAndGet(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		fs, _ := newStore(t, encrypted)
		ctx := context.Background()

		first, err := fs.Enroll(ctx, "alice", Enrollment{Vector: testVector(1), Source: "a.mp4"})
		if err != nil {
			t.Fatalf("Enroll failed: %v", err)
		}
		if _, err := fs.Enroll(ctx, "alice", Enrollment{Vector: testVector(2)}); err != nil {
			t.Fatalf("second Enroll failed: %v", err)
		}

		s, err := fs.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if s.ID != "alice" {
			t.Errorf("subject mismatch: got %s", s.ID)
		}
		if len(s.Enrollments) != 2 {
			t.Fatalf("expected 2 enrollments, got %d", len(s.Enrollments))
		}
		if s.Enrollments[0].ID != first.ID || s.Enrollments[0].Source != "a.mp4" {
			t.Errorf("first enrollment mismatch: %+v", s.Enrollments[0])
		}
		vectors := s.Vectors()
		if len(vectors[1]) != 128 || vectors[1][0] != testVector(2)[0] {
			t.Errorf("vector mismatch after reload (encrypted=%v)", encrypted)
		}
		if s.UpdatedAt.Before(s.CreatedAt) {
			t.Error("UpdatedAt should not precede CreatedAt")
		}
	}
}

func TestFileStorage_Encrypted(t *testing.T) {
	fs, dir := newStore(t, true)

	if _, err := fs.Enroll(context.Background(), "secret", Enrollment{Vector: testVector(0)}); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "subjects", "secret.enc"))
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	// First byte should not be '{' if encrypted
	if len(data) > 0 && data[0] == '{' {
		t.Error("file does not appear to be encrypted")
	}
	if _, err := os.Stat(filepath.Join(dir, "subjects", "secret.enc.tmp")); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFileStorage_GetNotFound(t *testing.T) {
	fs, _ := newStore(t, false)

	_, err := fs.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}

	_, err = fs.Get(context.Background(), "../escape")
	if !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("expected ErrInvalidSubject, got %v", err)
	}
}

func TestFileStorage_Delete(t *testing.T) {
	fs, _ := newStore(t, false)
	ctx := context.Background()

	if _, err := fs.Enroll(ctx, "bob", Enrollment{Vector: testVector(0)}); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := fs.Delete(ctx, "bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := fs.Get(ctx, "bob"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected subject to be gone, got %v", err)
	}
	if err := fs.Delete(ctx, "bob"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestFileStorage_List(t *testing.T) {
	fs, dir := newStore(t, false)
	ctx := context.Background()

	subjects, err := fs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subjects) != 0 {
		t.Errorf("expected no subjects, got %d", len(subjects))
	}

	for _, id := range []string{"carol", "alice", "bob"} {
		if _, err := fs.Enroll(ctx, id, Enrollment{Vector: testVector(0)}); err != nil {
			t.Fatalf("Enroll %s failed: %v", id, err)
		}
	}
	// Unreadable and foreign files are skipped
	_ = os.WriteFile(filepath.Join(dir, "subjects", "broken.json"), []byte("{"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "subjects", "notes.txt"), []byte("x"), 0600)

	subjects, err = fs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subjects) != 3 {
		t.Fatalf("expected 3 subjects, got %d", len(subjects))
	}
	if subjects[0].ID != "alice" || subjects[2].ID != "carol" {
		t.Errorf("expected sorted subjects, got %s..%s", subjects[0].ID, subjects[2].ID)
	}
}

func TestFileStorage_Canceled(t *testing.T) {
	fs, _ := newStore(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fs.Enroll(ctx, "alice", Enrollment{Vector: testVector(0)}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	fs, _ := newStore(t, true)

	plaintext := []byte("This is a test message for encryption")

	ciphertext, err := fs.encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Error("ciphertext should differ from plaintext")
	}

	decrypted, err := fs.decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("decrypted text doesn't match: got %s, want %s", string(decrypted), string(plaintext))
	}
}

func TestDecrypt_InvalidData(t *testing.T) {
	fs, _ := newStore(t, true)

	if _, err := fs.decrypt([]byte("short")); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for short data, got %v", err)
	}
	if _, err := fs.decrypt(make([]byte, 100)); err != ErrEncryption {
		t.Errorf("expected ErrEncryption for invalid data, got %v", err)
	}
}

func BenchmarkFileStorage_Enroll(b *testing.B) {
	fs, _ := NewFileStorage(b.TempDir(), true)
	ctx := context.Background()
	e := Enrollment{Vector: testVector(0), CreatedAt: time.Now()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fs.Delete(ctx, "bench")
		_, _ = fs.Enroll(ctx, "bench", e)
	}
}
