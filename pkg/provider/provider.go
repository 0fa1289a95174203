// Package provider builds the external face providers named in the
// configuration.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrCodeEU/facelive/pkg/liveness"
	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/provider/deepface"
	"github.com/MrCodeEU/facelive/pkg/provider/mesh"
	"github.com/MrCodeEU/facelive/pkg/provider/rekognition"
	"github.com/MrCodeEU/facelive/pkg/recognition"
)

// Provider names.
const (
	Mesh        = "mesh"
	Rekognition = "rekognition"
	DeepFace    = "deepface"
	Dlib        = "dlib"
	None        = "none"
)

// Config selects the provider for each role and carries their settings.
type Config struct {
	Locator  string `yaml:"locator" envconfig:"LOCATOR"`
	Embedder string `yaml:"embedder" envconfig:"EMBEDDER"`
	Spoof    string `yaml:"spoof" envconfig:"SPOOF"`
	// Timeout bounds each provider call during analysis.
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`

	Mesh        mesh.Config        `yaml:"mesh" envconfig:"MESH"`
	DeepFace    deepface.Config    `yaml:"deepface" envconfig:"DEEPFACE"`
	Rekognition rekognition.Config `yaml:"rekognition" envconfig:"REKOGNITION"`
}

// DefaultConfig returns mesh landmarks with dlib embeddings and no spoof
// scorer.
func DefaultConfig() Config {
	return Config{
		Locator:     Mesh,
		Embedder:    Dlib,
		Spoof:       None,
		Timeout:     10 * time.Second,
		Mesh:        mesh.DefaultConfig(),
		DeepFace:    deepface.DefaultConfig(),
		Rekognition: rekognition.DefaultConfig(),
	}
}

// Validate checks the provider names.
func (c Config) Validate() error {
	if c.Locator != Mesh && c.Locator != Rekognition {
		return fmt.Errorf("invalid locator %q (must be %s or %s)", c.Locator, Mesh, Rekognition)
	}
	if c.Embedder != Dlib && c.Embedder != DeepFace && c.Embedder != None {
		return fmt.Errorf("invalid embedder %q (must be %s, %s or %s)", c.Embedder, Dlib, DeepFace, None)
	}
	if c.Spoof != DeepFace && c.Spoof != None {
		return fmt.Errorf("invalid spoof scorer %q (must be %s or %s)", c.Spoof, DeepFace, None)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// Set holds the built providers. Embedder and Spoof may be nil.
type Set struct {
	Locator  liveness.Locator
	Embedder liveness.EmbeddingExtractor
	Spoof    liveness.SpoofScorer

	closers []io.Closer
}

// Close releases every provider.
func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Set) track(v any) {
	if c, ok := v.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// Builder constructors, replaceable in tests.
var (
	newRekognition = func(ctx context.Context, cfg rekognition.Config) (liveness.Locator, error) {
		return rekognition.NewProvider(ctx, cfg)
	}
	newDlib = func(modelPath string) (liveness.EmbeddingExtractor, error) {
		r := recognition.NewDlibExtractor()
		if err := r.LoadModels(modelPath); err != nil {
			return nil, err
		}
		return r, nil
	}
)

// Build constructs the configured providers once per process.
func Build(ctx context.Context, cfg Config, rec recognition.Config) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.Component("provider").WithFields(logging.Fields{
		"locator":  cfg.Locator,
		"embedder": cfg.Embedder,
		"spoof":    cfg.Spoof,
	})
	set := &Set{}

	switch cfg.Locator {
	case Mesh:
		set.Locator = mesh.NewClient(cfg.Mesh)
	case Rekognition:
		loc, err := newRekognition(ctx, cfg.Rekognition)
		if err != nil {
			return nil, fmt.Errorf("rekognition locator: %w", err)
		}
		set.Locator = loc
	}
	set.track(set.Locator)

	var df *deepface.Provider
	deepFace := func() *deepface.Provider {
		if df == nil {
			df = deepface.NewProvider(cfg.DeepFace)
			set.track(df)
		}
		return df
	}

	switch cfg.Embedder {
	case Dlib:
		emb, err := newDlib(rec.ModelPath)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("dlib embedder: %w", err)
		}
		set.Embedder = emb
		set.track(emb)
	case DeepFace:
		set.Embedder = deepFace()
	}

	if cfg.Spoof == DeepFace {
		set.Spoof = deepFace()
	}

	log.Debug("Providers ready")
	return set, nil
}
