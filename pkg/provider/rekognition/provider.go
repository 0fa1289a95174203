// Package rekognition locates faces with AWS Rekognition DetectFaces.
package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/video"
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"

	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
)

// API is the subset of the Rekognition client the locator uses.
type API interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Provider is a Locator backed by AWS Rekognition.
type Provider struct {
	api    API
	config Config
}

// NewProvider creates a provider using the AWS default credential chain.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithAPI(rekognition.NewFromConfig(awsCfg), cfg), nil
}

// NewWithAPI creates a provider around an existing client.
func NewWithAPI(api API, cfg Config) *Provider {
	return &Provider{api: api, config: cfg}
}

// Layout returns the packed Rekognition layout.
func (p *Provider) Layout() geometry.Layout { return Layout }

// LocateFace returns the landmarks of the most confident face above
// MinConfidence, nil when there is none.
func (p *Provider) LocateFace(ctx context.Context, f video.Frame) (geometry.LandmarkSet, error) {
	image, err := f.JPEG()
	if err != nil {
		return nil, err
	}
	if len(image) > maxImageSize {
		return nil, fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}

	output, err := p.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		return nil, parseError(err)
	}

	var best *types.FaceDetail
	for i := range output.FaceDetails {
		d := &output.FaceDetails[i]
		if d.Confidence == nil || *d.Confidence < p.config.MinConfidence {
			continue
		}
		if best == nil || *d.Confidence > *best.Confidence {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	return pack(best.Landmarks)
}

func pack(landmarks []types.Landmark) (geometry.LandmarkSet, error) {
	byType := make(map[types.LandmarkType]types.Landmark, len(landmarks))
	for _, l := range landmarks {
		byType[l.Type] = l
	}

	lm := make(geometry.LandmarkSet, len(packed))
	for i, t := range packed {
		l, ok := byType[t]
		if !ok || l.X == nil || l.Y == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingLandmark, t)
		}
		lm[i] = geometry.Point{X: float64(*l.X), Y: float64(*l.Y)}
	}
	return lm, nil
}

func parseError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied:
			return fmt.Errorf("detect faces: %w", ErrInvalidCredentials)
		case errCodeInvalidParameter, errCodeInvalidImageFormat, errCodeImageTooLarge:
			return fmt.Errorf("%w: %s", ErrInvalidImage, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("detect faces: %w", err)
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
