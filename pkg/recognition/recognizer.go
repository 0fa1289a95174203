// Package recognition extracts face descriptors with dlib via go-face and
// compares them.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Config holds face recognition settings.
type Config struct {
	// ModelPath must contain shape_predictor_5_face_landmarks.dat and
	// dlib_face_recognition_resnet_model_v1.dat.
	ModelPath string `yaml:"model_path" envconfig:"MODEL_PATH"`
	// Threshold is the minimum cosine similarity for a verify match.
	Threshold float64 `yaml:"threshold" envconfig:"THRESHOLD"`
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		ModelPath: "~/.local/share/facelive/models",
		Threshold: 0.35,
	}
}

// FaceEngine is the part of *face.Recognizer the extractor uses.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// DlibExtractor computes 128-dimensional dlib descriptors. go-face is not
// safe for concurrent use, so calls are serialized.
type DlibExtractor struct {
	engine    FaceEngine
	modelPath string
	loaded    bool
	mu        sync.Mutex
	factory   func(string) (FaceEngine, error)
}

// NewDlibExtractor creates an extractor; call LoadModels before use.
func NewDlibExtractor() *DlibExtractor {
	return &DlibExtractor{
		factory: func(path string) (FaceEngine, error) {
			return face.NewRecognizer(path)
		},
	}
}

// LoadModels loads the dlib models from modelPath. Loading twice is a no-op.
func (r *DlibExtractor) LoadModels(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	log := logging.Component("recognition")
	log.Infof("Loading face recognition models from: %s", modelPath)

	engine, err := r.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.engine = engine
	r.modelPath = modelPath
	r.loaded = true

	log.Info("Face recognition models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (r *DlibExtractor) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Close releases the recognizer resources.
func (r *DlibExtractor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.loaded = false
	return nil
}

// ExtractEmbedding returns the descriptor of the first face dlib reports, or
// nil when it finds none.
func (r *DlibExtractor) ExtractEmbedding(ctx context.Context, f video.Frame) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := f.JPEG()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil, ErrModelNotLoaded
	}

	faces, err := r.engine.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, nil
	}
	if len(faces) > 1 {
		logging.Component("recognition").Debugf("Frame %d has %d faces, using the first", f.Index, len(faces))
	}

	d := faces[0].Descriptor
	return append([]float32(nil), d[:]...), nil
}
