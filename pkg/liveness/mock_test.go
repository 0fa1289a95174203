package liveness

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/video"
)

type MockLocator struct {
	LayoutValue    geometry.Layout
	LocateFaceFunc func(ctx context.Context, f video.Frame) (geometry.LandmarkSet, error)
}

func (m *MockLocator) Layout() geometry.Layout { return m.LayoutValue }

func (m *MockLocator) LocateFace(ctx context.Context, f video.Frame) (geometry.LandmarkSet, error) {
	if m.LocateFaceFunc != nil {
		return m.LocateFaceFunc(ctx, f)
	}
	return nil, nil
}

type MockSpoofScorer struct {
	SpoofScoreFunc func(ctx context.Context, f video.Frame) (*float64, error)
}

func (m *MockSpoofScorer) SpoofScore(ctx context.Context, f video.Frame) (*float64, error) {
	if m.SpoofScoreFunc != nil {
		return m.SpoofScoreFunc(ctx, f)
	}
	return nil, nil
}

// MockEmbedder returns a vector tagged with the frame index and records every
// call.
type MockEmbedder struct {
	ExtractFunc func(ctx context.Context, f video.Frame) ([]float32, error)

	mu    sync.Mutex
	calls []int
}

func (m *MockEmbedder) ExtractEmbedding(ctx context.Context, f video.Frame) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, f.Index)
	m.mu.Unlock()
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, f)
	}
	return []float32{float32(f.Index), 1, 2}, nil
}

func (m *MockEmbedder) Calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.calls...)
}

// ScriptedSource returns prepared FrameSignals by frame index. Frames beyond
// the script have no face.
type ScriptedSource struct {
	Script []FrameSignals
	// Hook, when set, may adjust the scripted signals using the frame.
	Hook func(f video.Frame, fs FrameSignals) FrameSignals
	Err  map[int]error
}

func (s *ScriptedSource) Signals(_ context.Context, f video.Frame) (FrameSignals, error) {
	if err, ok := s.Err[f.Index]; ok {
		return FrameSignals{Index: f.Index}, err
	}
	if f.Index >= len(s.Script) {
		return FrameSignals{Index: f.Index}, ErrNoFaceInFrame
	}
	fs := s.Script[f.Index]
	fs.Index = f.Index
	if s.Hook != nil {
		fs = s.Hook(f, fs)
	}
	return fs, nil
}

// testLandmarks is a small face box around the frame centre.
var testLandmarks = geometry.LandmarkSet{{X: 0.35, Y: 0.3}, {X: 0.65, Y: 0.7}}

// face returns signals of a frame where a face was found but nothing fired.
func face() FrameSignals {
	return FrameSignals{
		FaceFound:      true,
		Landmarks:      testLandmarks,
		EAR:            0.3,
		MAR:            0.2,
		Angle:          90,
		CenterDistance: 0.1,
		FaceSize:       0.2,
		Texture:        signals.Texture{Uniformity: 0.05, RealSkin: true},
	}
}

// frames returns n in-memory frames showing a textured gray image.
func frames(n int) []video.Frame {
	out := make([]video.Frame, n)
	for i := range out {
		out[i] = video.Frame{Image: testImage(color.Gray{Y: 120}), Width: 64, Height: 48}
	}
	return out
}

func testImage(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	for x := 0; x < 64; x += 8 {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.Gray{Y: 200})
		}
	}
	return img
}

func sliceOpener(frames []video.Frame) video.Opener {
	return func(context.Context, string) (video.Source, error) {
		return video.NewSliceSource(frames), nil
	}
}
