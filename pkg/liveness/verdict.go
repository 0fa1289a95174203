package liveness

import (
	"github.com/MrCodeEU/facelive/pkg/sampler"
	"github.com/MrCodeEU/facelive/pkg/signals"
)

// Verdict is the immutable outcome of one video analysis.
type Verdict struct {
	IsLive bool
	// Embedding is nil unless the capture gates held on some frame.
	Embedding   []float32
	Diagnostics Diagnostics
}

// Diagnostics exposes the counters and aggregates behind a verdict.
type Diagnostics struct {
	BlinkDetected    bool
	MouthMovement    bool
	SkinReflectance  bool
	FaceMovement     bool
	MovementDetected bool

	BlinkCount               int
	MouthMovementCount       int
	SkinReflectanceFrames    int
	ConsecutiveSkinFrames    int
	MaxConsecutiveSkinFrames int

	// Nil when no frame had a face.
	AverageFaceDistance *float64
	AverageFaceSize     *float64

	ScreenArtifactFrames int
	BadTextureFrames     int
	SpoofFrames          int
	FacesDetected        int

	FramesRead         int
	FramesSampled      int
	StopReason         sampler.StopReason
	CumulativeMovement float64
	Truncated          bool

	// Nil when nothing was captured.
	CaptureFrame   *int
	CaptureQuality *signals.Quality
}

// Verdict finalizes the state. The longest skin run and the final means are
// checked, not the values at capture time.
func (s State) Verdict(th Thresholds, stats sampler.Stats) Verdict {
	d := Diagnostics{
		BlinkDetected:            s.blinks > 0,
		MouthMovement:            s.mouthMoves > 0,
		SkinReflectance:          s.skinFrames > 0,
		FaceMovement:             s.track.FaceMovement(),
		MovementDetected:         s.track.MovementDetected(),
		BlinkCount:               s.blinks,
		MouthMovementCount:       s.mouthMoves,
		SkinReflectanceFrames:    s.skinFrames,
		ConsecutiveSkinFrames:    s.track.SkinRun(),
		MaxConsecutiveSkinFrames: s.track.MaxSkinRun(),
		ScreenArtifactFrames:     s.screenFrames,
		BadTextureFrames:         s.badTexture,
		SpoofFrames:              s.spoofFrames,
		FacesDetected:            s.faces,
		FramesRead:               stats.FramesRead,
		FramesSampled:            stats.FramesSampled,
		StopReason:               stats.Stop,
		CumulativeMovement:       s.track.CumulativeMovement(),
		Truncated:                stats.Truncated(),
		CaptureQuality:           s.captureQuality,
	}
	if s.faces > 0 {
		n := float64(s.faces)
		dist, size := s.distanceSum/n, s.sizeSum/n
		d.AverageFaceDistance = &dist
		d.AverageFaceSize = &size
	}
	if s.embedding != nil {
		frame := s.captureFrame
		d.CaptureFrame = &frame
	}

	live := s.gatesHold(th, s.track.MaxSkinRun()) &&
		s.screenFrames == 0 &&
		s.badTexture == 0

	var emb []float32
	if s.embedding != nil {
		emb = append([]float32(nil), s.embedding...)
	}
	return Verdict{IsLive: live, Embedding: emb, Diagnostics: d}
}
