package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrCodeEU/facelive/pkg/geometry"
)

func face(dx float64) geometry.LandmarkSet {
	return geometry.LandmarkSet{{X: 0.4 + dx, Y: 0.4}, {X: 0.6 + dx, Y: 0.6}}
}

func TestStep_FirstFaceRecordsOnly(t *testing.T) {
	cfg := DefaultConfig()
	s, u := State{}.Step(cfg, Observation{Landmarks: face(0), MAR: 0.3, Angle: 90, Skin: true})

	assert.True(t, s.HasPrevious())
	assert.Zero(t, u.Movement)
	assert.False(t, u.MouthMoved)
	assert.False(t, u.FaceTurned)
	assert.Zero(t, s.CumulativeMovement())
	assert.Empty(t, s.Window())
	assert.Equal(t, 1, s.SkinRun())
}

func TestStep_DoesNotMutateReceiver(t *testing.T) {
	cfg := DefaultConfig()
	s0, _ := State{}.Step(cfg, Observation{Landmarks: face(0), Skin: true})
	s1, _ := s0.Step(cfg, Observation{Landmarks: face(0.05), Skin: true})

	assert.Zero(t, s0.CumulativeMovement())
	assert.Equal(t, 1, s0.SkinRun())
	assert.InDelta(t, 0.05, s1.CumulativeMovement(), 1e-12)
	assert.Equal(t, 2, s1.SkinRun())
}

func TestStep_MovementDetection(t *testing.T) {
	tests := []struct {
		name  string
		steps []float64
		want  bool
	}{
		{name: "single large move", steps: []float64{0, 0.03}, want: true},
		{name: "small moves stay below", steps: []float64{0, 0.005, 0.01, 0.015}, want: false},
		{name: "cumulative drift", steps: func() []float64 {
			xs := make([]float64, 0, 13)
			for i := 0; i < 13; i++ {
				xs = append(xs, float64(i)*0.009)
			}
			return xs
		}(), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s State
			for _, dx := range tt.steps {
				s, _ = s.Step(DefaultConfig(), Observation{Landmarks: face(dx)})
			}
			assert.Equal(t, tt.want, s.MovementDetected())
		})
	}
}

func TestStep_MovementIsSticky(t *testing.T) {
	cfg := DefaultConfig()
	var s State
	s, _ = s.Step(cfg, Observation{Landmarks: face(0)})
	s, u := s.Step(cfg, Observation{Landmarks: face(0.1)})
	assert.True(t, u.FirstMovement)

	for i := 0; i < 15; i++ {
		s, u = s.Step(cfg, Observation{Landmarks: face(0.1)})
		assert.True(t, s.MovementDetected())
		assert.False(t, u.FirstMovement)
	}
}

func TestStep_WindowEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	var s State
	x := 0.0
	s, _ = s.Step(cfg, Observation{Landmarks: face(x)})
	for i := 1; i <= WindowSize+2; i++ {
		x += float64(i) * 0.001
		s, _ = s.Step(cfg, Observation{Landmarks: face(x)})
	}

	w := s.Window()
	assert.Len(t, w, WindowSize)
	assert.InDelta(t, 0.003, w[0], 1e-9)
	assert.InDelta(t, 0.012, w[WindowSize-1], 1e-9)
	assert.InDelta(t, 0.0075, s.WindowMean(), 1e-9)
}

func TestStep_MouthNeedsPreviousLandmarks(t *testing.T) {
	cfg := DefaultConfig()
	var s State
	s, _ = s.Step(cfg, Observation{Landmarks: face(0), MAR: 0.1})
	s, u := s.Step(cfg, Observation{Landmarks: face(0), MAR: 0.2})
	assert.True(t, u.MouthMoved)

	s, _ = s.Step(cfg, Observation{})
	assert.False(t, s.HasPrevious())

	_, u = s.Step(cfg, Observation{Landmarks: face(0), MAR: 0.5})
	assert.False(t, u.MouthMoved)
}

func TestStep_SkinRun(t *testing.T) {
	cfg := DefaultConfig()
	skin := []bool{true, true, true, false, true, true}
	wantRun := []int{1, 2, 3, 0, 1, 2}

	var s State
	for i, ok := range skin {
		s, _ = s.Step(cfg, Observation{Landmarks: face(0), Skin: ok})
		assert.Equal(t, wantRun[i], s.SkinRun(), "frame %d", i)
	}
	assert.Equal(t, 3, s.MaxSkinRun())
}

func TestStep_FaceLostKeepsRunAndAngle(t *testing.T) {
	cfg := DefaultConfig()
	var s State
	s, _ = s.Step(cfg, Observation{Landmarks: face(0), Angle: 90, Skin: true})
	s, _ = s.Step(cfg, Observation{Landmarks: face(0), Angle: 91, Skin: true})
	s, _ = s.Step(cfg, Observation{})

	assert.Equal(t, 2, s.SkinRun())
	s, u := s.Step(cfg, Observation{Landmarks: face(0), Angle: 97, Skin: true})
	assert.Equal(t, 3, s.SkinRun())
	assert.InDelta(t, 6, u.AngleChange, 1e-9)
	assert.True(t, u.FaceTurned)
	assert.True(t, s.FaceMovement())
	assert.Zero(t, u.Movement)
}

func TestStep_AngleBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	var s State
	for _, a := range []float64{90, 94, 98, 102} {
		s, _ = s.Step(cfg, Observation{Landmarks: face(0), Angle: a})
	}
	assert.False(t, s.FaceMovement())
}
