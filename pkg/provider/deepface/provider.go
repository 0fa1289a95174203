// Package deepface provides face embeddings and anti-spoofing through a
// DeepFace REST service.
package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/MrCodeEU/facelive/pkg/video"
)

// Provider extracts embeddings and spoof scores with DeepFace.
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider.
func NewProvider(config Config) *Provider {
	return &Provider{client: NewClient(config)}
}

func dataURI(f video.Frame) (string, error) {
	data, err := f.JPEG()
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// ExtractEmbedding returns the descriptor of the first face, nil when
// DeepFace finds none.
func (p *Provider) ExtractEmbedding(ctx context.Context, f video.Frame) ([]float32, error) {
	img, err := dataURI(f)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Represent(ctx, img, false)
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) && serr.noFace() {
			return nil, nil
		}
		return nil, fmt.Errorf("represent: %w", err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, nil
	}

	src := resp.Results[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

// SpoofScore runs the anti-spoofing model: 1 for a real face, 0 for a spoof
// and nil when no face was found.
func (p *Provider) SpoofScore(ctx context.Context, f video.Frame) (*float64, error) {
	img, err := dataURI(f)
	if err != nil {
		return nil, err
	}

	score := 1.0
	if _, err := p.client.Represent(ctx, img, true); err != nil {
		var serr *StatusError
		switch {
		case errors.As(err, &serr) && serr.spoof():
			score = 0
		case errors.As(err, &serr) && serr.noFace():
			return nil, nil
		default:
			return nil, fmt.Errorf("anti-spoofing: %w", err)
		}
	}
	return &score, nil
}

// Close is a no-op; the provider holds no connections of its own.
func (p *Provider) Close() error { return nil }
