package liveness

import (
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/tracker"
)

// State is the video-scoped accumulator. It is a value: Step and Capture
// return the next state and leave the receiver untouched.
type State struct {
	track tracker.State

	frames       int
	faces        int
	blinks       int
	mouthMoves   int
	skinFrames   int
	screenFrames int
	badTexture   int
	spoofFrames  int
	distanceSum  float64
	sizeSum      float64

	embedding      []float32
	captureFrame   int
	captureQuality *signals.Quality
}

// NewState returns the state of a video before its first frame.
func NewState() State {
	return State{captureFrame: -1}
}

// Step is the per-frame outcome of folding FrameSignals into the state.
type Step struct {
	FaceFound  bool
	Blink      bool
	MouthMoved bool
	FaceTurned bool
	Movement   float64
	Spoof      bool
	// Live is the frame-local liveness: blink, skin, mouth movement, real
	// texture, no screen artifacts and no spoof.
	Live bool
	// CaptureReady is true when every capture gate holds on this frame and
	// nothing was captured yet.
	CaptureReady bool
}

// Step folds one frame into the state.
func (s State) Step(th Thresholds, fs FrameSignals) (State, Step) {
	var st Step
	s.frames++

	if !fs.FaceFound {
		s.track, _ = s.track.Step(th.Tracker, tracker.Observation{})
		return s, st
	}

	st.FaceFound = true
	s.faces++

	st.Blink = fs.EAR < th.BlinkEAR
	if st.Blink {
		s.blinks++
	}

	var u tracker.Update
	s.track, u = s.track.Step(th.Tracker, tracker.Observation{
		Landmarks: fs.Landmarks,
		MAR:       fs.MAR,
		Angle:     fs.Angle,
		Skin:      fs.Reflectance.Skin,
	})
	st.MouthMoved = u.MouthMoved
	st.FaceTurned = u.FaceTurned
	st.Movement = u.Movement
	if st.MouthMoved {
		s.mouthMoves++
	}

	if fs.Reflectance.Skin {
		s.skinFrames++
	}
	s.distanceSum += fs.CenterDistance
	s.sizeSum += fs.FaceSize

	if fs.Artifacts.Detected() {
		s.screenFrames++
	}
	if !fs.Texture.RealSkin {
		s.badTexture++
	}
	st.Spoof = fs.SpoofScore != nil && *fs.SpoofScore == th.SpoofValue
	if st.Spoof {
		s.spoofFrames++
	}

	st.Live = st.Blink && fs.Reflectance.Skin && st.MouthMoved &&
		!fs.Artifacts.Detected() && fs.Texture.RealSkin && !st.Spoof

	st.CaptureReady = s.embedding == nil && !st.Spoof && s.gatesHold(th, s.track.SkinRun())
	return s, st
}

// gatesHold checks the counters and the running means against the
// thresholds using the given skin run.
func (s State) gatesHold(th Thresholds, skinRun int) bool {
	if s.faces == 0 {
		return false
	}
	n := float64(s.faces)
	return s.blinks >= th.MinBlinks &&
		s.mouthMoves >= th.MinMouthMovements &&
		skinRun >= th.MinSkinFrames &&
		s.track.FaceMovement() &&
		s.distanceSum/n < th.MaxFaceDistance &&
		s.sizeSum/n > th.MinFaceSize
}

// Capture records the embedding of frame. Only the first capture is kept.
func (s State) Capture(frame int, embedding []float32, quality *signals.Quality) State {
	if s.embedding != nil || embedding == nil {
		return s
	}
	s.embedding = append([]float32(nil), embedding...)
	s.captureFrame = frame
	s.captureQuality = quality
	return s
}

// Captured reports whether an embedding was captured.
func (s State) Captured() bool { return s.embedding != nil }

// Frames is the number of sampled frames folded so far.
func (s State) Frames() int { return s.frames }

// Faces is the number of sampled frames with a face.
func (s State) Faces() int { return s.faces }
