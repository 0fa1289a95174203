package deepface

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrInvalidResponse     = errors.New("invalid response from deepface")
)

// StatusError is a non-2xx answer of the DeepFace API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.Code, e.Body)
}

// noFace reports whether DeepFace rejected the image for lacking a face.
func (e *StatusError) noFace() bool {
	return e.Code < 500 && strings.Contains(e.Body, "Face could not be detected")
}

// spoof reports whether the anti-spoofing model rejected the image.
func (e *StatusError) spoof() bool {
	return e.Code < 500 && strings.Contains(e.Body, "Spoof detected")
}
