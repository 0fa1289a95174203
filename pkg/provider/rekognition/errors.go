package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates that Rekognition rejected the frame
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrMissingLandmark indicates a detection without one of the landmarks the layout needs
	ErrMissingLandmark = errors.New("rekognition face is missing a landmark")
)
