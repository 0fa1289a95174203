// Package liveness decides whether a face video shows a live person.
//
// Each sampled frame is reduced to FrameSignals, folded into a video-scoped
// State in frame order and, once the capture gates hold, used to capture one
// face embedding. The final Verdict is computed from the counters when
// sampling ends.
package liveness

import (
	"errors"
	"fmt"

	"github.com/MrCodeEU/facelive/pkg/tracker"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Thresholds holds every aggregation threshold.
type Thresholds struct {
	BlinkEAR          float64 `yaml:"blink_ear" envconfig:"BLINK_EAR"`
	MinBlinks         int     `yaml:"min_blinks" envconfig:"MIN_BLINKS"`
	MinMouthMovements int     `yaml:"min_mouth_movements" envconfig:"MIN_MOUTH_MOVEMENTS"`
	MinSkinFrames     int     `yaml:"min_skin_frames" envconfig:"MIN_SKIN_FRAMES"`
	MaxFaceDistance   float64 `yaml:"max_face_distance" envconfig:"MAX_FACE_DISTANCE"`
	MinFaceSize       float64 `yaml:"min_face_size" envconfig:"MIN_FACE_SIZE"`
	// SpoofValue is the spoof score that marks a frame as a spoof.
	SpoofValue float64 `yaml:"spoof_value" envconfig:"SPOOF_VALUE"`

	Tracker tracker.Config `yaml:"tracker" envconfig:"TRACKER"`
}

// DefaultThresholds returns the calibrated thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlinkEAR:          0.22,
		MinBlinks:         2,
		MinMouthMovements: 2,
		MinSkinFrames:     5,
		MaxFaceDistance:   0.3,
		MinFaceSize:       0.08,
		SpoofValue:        0,
		Tracker:           tracker.DefaultConfig(),
	}
}

// Validate checks that the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.BlinkEAR <= 0 {
		return fmt.Errorf("blink_ear must be positive, got %v", t.BlinkEAR)
	}
	if t.MinBlinks < 0 || t.MinMouthMovements < 0 || t.MinSkinFrames < 0 {
		return errors.New("minimum counts must not be negative")
	}
	if t.MaxFaceDistance <= 0 {
		return fmt.Errorf("max_face_distance must be positive, got %v", t.MaxFaceDistance)
	}
	if t.MinFaceSize < 0 {
		return fmt.Errorf("min_face_size must not be negative, got %v", t.MinFaceSize)
	}
	return nil
}

// Phase is a step of the per-video state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSampling
	PhaseLandmarkLookup
	PhaseSignalExtraction
	PhaseStateUpdate
	PhaseConditionCheck
	PhaseCapture
	PhaseFinalize
)

var phaseNames = [...]string{
	PhaseInit:             "init",
	PhaseSampling:         "sampling",
	PhaseLandmarkLookup:   "landmark_lookup",
	PhaseSignalExtraction: "signal_extraction",
	PhaseStateUpdate:      "state_update",
	PhaseConditionCheck:   "condition_check",
	PhaseCapture:          "capture",
	PhaseFinalize:         "finalize",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ErrSourceUnreadable is returned when the video cannot be opened. It is the
// video package sentinel so either can be matched with errors.Is.
var ErrSourceUnreadable = video.ErrSourceUnreadable

// ErrNoFaceInFrame marks a sampled frame without a usable face.
var ErrNoFaceInFrame = errors.New("no face in frame")

// ProviderError is a failed call to an external provider. It only costs the
// frame that signal.
type ProviderError struct {
	Provider string
	Phase    Phase
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider failed during %s: %v", e.Provider, e.Phase, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AnalysisError is a fatal error for one video.
type AnalysisError struct {
	Phase Phase
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed during %s: %v", e.Phase, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
