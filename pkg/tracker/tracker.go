// Package tracker holds the cross-frame memory of one video analysis.
//
// State is a value. Step never mutates its receiver; it returns the next state,
// so a caller can keep or compare earlier states freely.
package tracker

import (
	"math"

	"github.com/MrCodeEU/facelive/pkg/geometry"
)

// WindowSize is the number of recent movement magnitudes kept for the moving
// average.
const WindowSize = 10

// Config holds the tracker thresholds.
type Config struct {
	MovementThreshold   float64 `yaml:"movement_threshold" envconfig:"MOVEMENT_THRESHOLD"`
	CumulativeThreshold float64 `yaml:"cumulative_threshold" envconfig:"CUMULATIVE_THRESHOLD"`
	MouthThreshold      float64 `yaml:"mouth_threshold" envconfig:"MOUTH_THRESHOLD"`
	AngleThreshold      float64 `yaml:"angle_threshold" envconfig:"ANGLE_THRESHOLD"`
}

// DefaultConfig returns the calibrated tracker thresholds.
func DefaultConfig() Config {
	return Config{
		MovementThreshold:   0.02,
		CumulativeThreshold: 0.1,
		MouthThreshold:      0.02,
		AngleThreshold:      5,
	}
}

// Observation is what the tracker needs from one sampled frame. Landmarks is
// nil when no face was found; the other fields are then ignored.
type Observation struct {
	Landmarks geometry.LandmarkSet
	MAR       float64
	Angle     float64
	Skin      bool
}

// Update describes what changed in one step.
type Update struct {
	Movement      float64
	MouthMoved    bool
	AngleChange   float64
	FaceTurned    bool
	FirstMovement bool
}

// State is the cross-frame memory. The zero value is a fresh state.
type State struct {
	prev    geometry.LandmarkSet
	prevMAR float64

	window     [WindowSize]float64
	windowLen  int
	windowNext int
	cumulative float64
	moving     bool

	prevSkin   bool
	skinRun    int
	maxSkinRun int

	hasAngle     bool
	prevAngle    float64
	faceMovement bool
}

// Step folds one observation into the state and returns the next state.
func (s State) Step(cfg Config, obs Observation) (State, Update) {
	var u Update

	if obs.Landmarks == nil {
		s.prev = nil
		s.prevMAR = 0
		return s, u
	}

	if s.prev != nil {
		if m, err := geometry.Movement(s.prev, obs.Landmarks); err == nil {
			u.Movement = m
			s = s.pushMovement(m)
			if !s.moving && (m > cfg.MovementThreshold ||
				s.WindowMean() > cfg.MovementThreshold ||
				s.cumulative > cfg.CumulativeThreshold) {
				s.moving = true
				u.FirstMovement = true
			}
		}
		u.MouthMoved = math.Abs(obs.MAR-s.prevMAR) > cfg.MouthThreshold
	}
	s.prev = obs.Landmarks
	s.prevMAR = obs.MAR

	switch {
	case obs.Skin && s.prevSkin:
		s.skinRun++
	case obs.Skin:
		s.skinRun = 1
	default:
		s.skinRun = 0
	}
	s.prevSkin = obs.Skin
	s.maxSkinRun = max(s.maxSkinRun, s.skinRun)

	if s.hasAngle {
		u.AngleChange = math.Abs(obs.Angle - s.prevAngle)
		if u.AngleChange > cfg.AngleThreshold {
			s.faceMovement = true
			u.FaceTurned = true
		}
	}
	s.hasAngle = true
	s.prevAngle = obs.Angle

	return s, u
}

// pushMovement appends m to the ring buffer, evicting the oldest entry when
// full. The array is copied with the value receiver.
func (s State) pushMovement(m float64) State {
	s.window[s.windowNext] = m
	s.windowNext = (s.windowNext + 1) % WindowSize
	if s.windowLen < WindowSize {
		s.windowLen++
	}
	s.cumulative += m
	return s
}

// WindowMean is the mean of the recent movement magnitudes, 0 when empty.
func (s State) WindowMean() float64 {
	if s.windowLen == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < s.windowLen; i++ {
		sum += s.window[i]
	}
	return sum / float64(s.windowLen)
}

// Window returns the recent movement magnitudes, oldest first.
func (s State) Window() []float64 {
	out := make([]float64, 0, s.windowLen)
	start := (s.windowNext - s.windowLen + WindowSize) % WindowSize
	for i := 0; i < s.windowLen; i++ {
		out = append(out, s.window[(start+i)%WindowSize])
	}
	return out
}

// HasPrevious reports whether the last observation had a face.
func (s State) HasPrevious() bool { return s.prev != nil }

// CumulativeMovement is the total landmark displacement seen so far.
func (s State) CumulativeMovement() float64 { return s.cumulative }

// MovementDetected reports whether landmark movement was ever detected.
func (s State) MovementDetected() bool { return s.moving }

// SkinRun is the current run of consecutive skin frames.
func (s State) SkinRun() int { return s.skinRun }

// MaxSkinRun is the longest run of consecutive skin frames so far.
func (s State) MaxSkinRun() int { return s.maxSkinRun }

// FaceMovement reports whether the face angle ever changed beyond the
// threshold between two face frames.
func (s State) FaceMovement() bool { return s.faceMovement }
