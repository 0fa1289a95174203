package liveness

import (
	"context"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Locator finds the primary face of a frame. A nil set with a nil error
// means no face.
type Locator interface {
	Layout() geometry.Layout
	LocateFace(ctx context.Context, f video.Frame) (geometry.LandmarkSet, error)
}

// EmbeddingExtractor computes a face descriptor. A nil vector with a nil
// error means no confident face.
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, f video.Frame) ([]float32, error)
}

// SpoofScorer classifies a frame as real or spoof. A nil score with a nil
// error means no face.
type SpoofScorer interface {
	SpoofScore(ctx context.Context, f video.Frame) (*float64, error)
}

// SignalSource turns a sampled frame into FrameSignals. Extractor is the
// production implementation.
type SignalSource interface {
	Signals(ctx context.Context, f video.Frame) (FrameSignals, error)
}
