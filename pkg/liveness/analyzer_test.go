package liveness

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"
	"time"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/sampler"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/video"
)

var everyFrame = sampler.Config{MaxFrames: 15, TargetSamples: 15}

func TestAnalyze_CapturesOnce(t *testing.T) {
	emb := &MockEmbedder{}
	a := NewAnalyzer(sliceOpener(frames(15)), nil, nil,
		WithSignalSource(&ScriptedSource{Script: gatedScript()}),
		WithEmbedder(emb),
		WithSampling(everyFrame),
	)

	v, err := a.Analyze(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if calls := emb.Calls(); !reflect.DeepEqual(calls, []int{9}) {
		t.Errorf("expected one embedding request at frame 9, got %v", calls)
	}
	if !v.IsLive {
		t.Errorf("expected live verdict, got %+v", v.Diagnostics)
	}
	if len(v.Embedding) == 0 || v.Embedding[0] != 9 {
		t.Errorf("unexpected embedding %v", v.Embedding)
	}
	if v.Diagnostics.CaptureQuality == nil {
		t.Error("expected capture quality for the captured frame")
	}
}

func TestAnalyze_EmbedderFindsNoFaceRetriesNextReadyFrame(t *testing.T) {
	script := gatedScript()
	script[10] = skin(script[10])

	emb := &MockEmbedder{}
	emb.ExtractFunc = func(_ context.Context, f video.Frame) ([]float32, error) {
		if f.Index == 9 {
			return nil, nil
		}
		return []float32{float32(f.Index)}, nil
	}
	a := NewAnalyzer(sliceOpener(frames(15)), nil, nil,
		WithSignalSource(&ScriptedSource{Script: script}),
		WithEmbedder(emb),
		WithSampling(everyFrame),
	)

	v, err := a.Analyze(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if calls := emb.Calls(); !reflect.DeepEqual(calls, []int{9, 10}) {
		t.Errorf("expected requests at frames 9 and 10, got %v", calls)
	}
	if *v.Diagnostics.CaptureFrame != 10 {
		t.Errorf("expected capture at frame 10, got %d", *v.Diagnostics.CaptureFrame)
	}
}

func TestAnalyze_EmbedderErrorIsNotFatal(t *testing.T) {
	emb := &MockEmbedder{ExtractFunc: func(context.Context, video.Frame) ([]float32, error) {
		return nil, errors.New("connection refused")
	}}
	a := NewAnalyzer(sliceOpener(frames(15)), nil, nil,
		WithSignalSource(&ScriptedSource{Script: gatedScript()}),
		WithEmbedder(emb),
		WithSampling(everyFrame),
	)

	v, err := a.Analyze(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsLive || v.Embedding != nil {
		t.Errorf("expected live verdict without embedding, got live=%v emb=%v", v.IsLive, v.Embedding)
	}
}

func gridImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	white := &image.Uniform{C: color.White}
	for i := 0; i < 8; i++ {
		y := 20 + i*48
		draw.Draw(img, image.Rect(0, y, 400, y+3), white, image.Point{}, draw.Src)
	}
	return img
}

func TestAnalyze_ScreenGridFrameFailsVerdict(t *testing.T) {
	fs := frames(15)
	fs[12] = video.Frame{Image: gridImage()}

	detector := signals.NewDetector(signals.DefaultConfig())
	src := &ScriptedSource{
		Script: gatedScript(),
		Hook: func(f video.Frame, s FrameSignals) FrameSignals {
			if f.Index != 12 {
				return s
			}
			im, err := signals.NewImage(f.Image)
			if err != nil {
				t.Fatalf("NewImage failed: %v", err)
			}
			defer im.Close()
			s.Artifacts, _ = detector.ScreenArtifacts(im)
			return s
		},
	}
	a := NewAnalyzer(sliceOpener(fs), nil, nil,
		WithSignalSource(src),
		WithEmbedder(&MockEmbedder{}),
		WithSampling(everyFrame),
	)

	v, err := a.Analyze(context.Background(), "replay.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if v.IsLive {
		t.Error("a screen artifact frame must fail the verdict")
	}
	if v.Diagnostics.ScreenArtifactFrames != 1 {
		t.Errorf("expected 1 screen artifact frame, got %d", v.Diagnostics.ScreenArtifactFrames)
	}
}

func TestAnalyze_TenFrameVideo(t *testing.T) {
	a := NewAnalyzer(sliceOpener(frames(10)), nil, nil,
		WithSignalSource(&ScriptedSource{}),
	)

	v, err := a.Analyze(context.Background(), "short.mp4")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	d := v.Diagnostics
	if d.FramesRead != 10 || d.FramesSampled != 3 {
		t.Errorf("expected 10 read and 3 sampled, got %d and %d", d.FramesRead, d.FramesSampled)
	}
	if d.StopReason != sampler.StopEndOfStream {
		t.Errorf("expected end of stream, got %s", d.StopReason)
	}
	if v.IsLive || d.AverageFaceDistance != nil {
		t.Error("faceless video must not be live and has no averages")
	}
}

func TestAnalyze_Unreadable(t *testing.T) {
	open := func(context.Context, string) (video.Source, error) {
		return nil, fmt.Errorf("%w: missing.mp4", video.ErrSourceUnreadable)
	}
	a := NewAnalyzer(open, nil, nil, WithSignalSource(&ScriptedSource{}))

	v, err := a.Analyze(context.Background(), "missing.mp4")
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("expected ErrSourceUnreadable, got %v", err)
	}
	var aerr *AnalysisError
	if !errors.As(err, &aerr) || aerr.Phase != PhaseInit {
		t.Errorf("expected AnalysisError in init, got %v", err)
	}
	if !reflect.DeepEqual(v, Verdict{}) {
		t.Errorf("no partial verdict expected, got %+v", v)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	run := func() Verdict {
		a := NewAnalyzer(sliceOpener(frames(15)), nil, nil,
			WithSignalSource(&ScriptedSource{Script: gatedScript()}),
			WithEmbedder(&MockEmbedder{}),
			WithSampling(everyFrame),
		)
		v, err := a.Analyze(context.Background(), "clip.mp4")
		if err != nil {
			t.Fatal(err)
		}
		return v
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ:\n%+v\n%+v", first, second)
	}
}

type slowSource struct {
	delay time.Duration
}

func (s slowSource) Signals(_ context.Context, f video.Frame) (FrameSignals, error) {
	time.Sleep(s.delay)
	fs := face()
	fs.Index = f.Index
	return fs, nil
}

func TestAnalyze_TimeoutTruncates(t *testing.T) {
	a := NewAnalyzer(sliceOpener(frames(30)), nil, nil,
		WithSignalSource(slowSource{delay: 30 * time.Millisecond}),
		WithSampling(sampler.Config{MaxFrames: 30, TargetSamples: 30}),
		WithTimeout(100*time.Millisecond),
	)

	v, err := a.Analyze(context.Background(), "slow.mp4")
	if err != nil {
		t.Fatalf("deadline must finalize, got %v", err)
	}
	if !v.Diagnostics.Truncated {
		t.Error("expected truncated diagnostics")
	}
	if v.Diagnostics.FramesSampled == 0 || v.Diagnostics.FramesSampled >= 30 {
		t.Errorf("unexpected sampled count %d", v.Diagnostics.FramesSampled)
	}
	if v.Diagnostics.FacesDetected != v.Diagnostics.FramesSampled {
		t.Errorf("every processed frame should be folded: %+v", v.Diagnostics)
	}
}

func TestAnalyze_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(sliceOpener(frames(5)), nil, nil, WithSignalSource(&ScriptedSource{}))
	_, err := a.Analyze(ctx, "clip.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyze_ReadErrorFinalizes(t *testing.T) {
	open := func(context.Context, string) (video.Source, error) {
		src := video.NewSliceSource(frames(8))
		src.Err = errors.New("corrupt packet")
		return src, nil
	}
	a := NewAnalyzer(open, nil, nil, WithSignalSource(&ScriptedSource{Script: gatedScript()}))

	v, err := a.Analyze(context.Background(), "corrupt.mp4")
	if err != nil {
		t.Fatalf("read errors must finalize, got %v", err)
	}
	if v.Diagnostics.StopReason != sampler.StopReadError || v.Diagnostics.FramesRead != 8 {
		t.Errorf("unexpected diagnostics %+v", v.Diagnostics)
	}
}

func TestAnalyze_ProviderErrorTreatedAsNoFace(t *testing.T) {
	src := &ScriptedSource{
		Script: gatedScript(),
		Err:    map[int]error{3: &ProviderError{Provider: "locator", Phase: PhaseLandmarkLookup, Err: context.DeadlineExceeded}},
	}
	a := NewAnalyzer(sliceOpener(frames(15)), nil, nil, WithSignalSource(src), WithSampling(everyFrame))

	v, err := a.Analyze(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if v.Diagnostics.FacesDetected != 14 {
		t.Errorf("expected 14 faces, got %d", v.Diagnostics.FacesDetected)
	}
}

// testLayout indexes a 20 point landmark set.
var testLayout = geometry.Layout{
	Name:         "test",
	Points:       20,
	LeftEye:      [6]int{0, 1, 2, 3, 4, 5},
	RightEye:     [6]int{6, 7, 8, 9, 10, 11},
	InnerLips:    [4][2]int{{12, 13}, {12, 13}, {12, 13}, {12, 13}},
	MouthCorners: [2]int{14, 15},
	NoseBridge:   16,
	Chin:         17,
}

func testFace() geometry.LandmarkSet {
	eye := func(dx float64) []geometry.Point {
		return []geometry.Point{
			{X: 0.40 + dx, Y: 0.40}, {X: 0.42 + dx, Y: 0.39}, {X: 0.44 + dx, Y: 0.39},
			{X: 0.46 + dx, Y: 0.40}, {X: 0.44 + dx, Y: 0.41}, {X: 0.42 + dx, Y: 0.41},
		}
	}
	lm := append(eye(0), eye(0.14)...)
	return append(lm,
		geometry.Point{X: 0.5, Y: 0.6}, geometry.Point{X: 0.5, Y: 0.62},
		geometry.Point{X: 0.45, Y: 0.61}, geometry.Point{X: 0.55, Y: 0.61},
		geometry.Point{X: 0.5, Y: 0.45}, geometry.Point{X: 0.5, Y: 0.75},
		geometry.Point{X: 0.3, Y: 0.3}, geometry.Point{X: 0.7, Y: 0.8},
	)
}

func TestExtractor_Signals(t *testing.T) {
	score := 1.0
	loc := &MockLocator{
		LayoutValue: testLayout,
		LocateFaceFunc: func(context.Context, video.Frame) (geometry.LandmarkSet, error) {
			return testFace(), nil
		},
	}
	spoof := &MockSpoofScorer{SpoofScoreFunc: func(context.Context, video.Frame) (*float64, error) {
		return &score, nil
	}}
	e := NewExtractor(loc, signals.NewDetector(signals.DefaultConfig()), spoof, time.Second)

	fs, err := e.Signals(context.Background(), frames(1)[0])
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	if !fs.FaceFound {
		t.Fatal("expected a face")
	}
	if d := fs.EAR - 0.25; d > 1e-9 || d < -1e-9 {
		t.Errorf("expected EAR 0.25, got %v", fs.EAR)
	}
	if d := fs.MAR - 0.2; d > 1e-9 || d < -1e-9 {
		t.Errorf("expected MAR 0.2, got %v", fs.MAR)
	}
	if d := fs.Angle - 90; d > 1e-9 || d < -1e-9 {
		t.Errorf("expected angle 90, got %v", fs.Angle)
	}
	if fs.SpoofScore == nil || *fs.SpoofScore != 1 {
		t.Errorf("expected spoof score 1, got %v", fs.SpoofScore)
	}
}

func TestExtractor_NoFaceAndFailures(t *testing.T) {
	detector := signals.NewDetector(signals.DefaultConfig())

	tests := []struct {
		name    string
		locate  func(context.Context, video.Frame) (geometry.LandmarkSet, error)
		wantErr func(error) bool
	}{
		{
			name:    "no face",
			locate:  func(context.Context, video.Frame) (geometry.LandmarkSet, error) { return nil, nil },
			wantErr: func(err error) bool { return errors.Is(err, ErrNoFaceInFrame) },
		},
		{
			name: "locator failure",
			locate: func(context.Context, video.Frame) (geometry.LandmarkSet, error) {
				return nil, errors.New("socket closed")
			},
			wantErr: func(err error) bool {
				var perr *ProviderError
				return errors.As(err, &perr) && perr.Phase == PhaseLandmarkLookup
			},
		},
		{
			name: "too few landmarks",
			locate: func(context.Context, video.Frame) (geometry.LandmarkSet, error) {
				return testFace()[:5], nil
			},
			wantErr: func(err error) bool { return errors.Is(err, ErrNoFaceInFrame) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&MockLocator{LayoutValue: testLayout, LocateFaceFunc: tt.locate}, detector, nil, 0)
			fs, err := e.Signals(context.Background(), frames(1)[0])
			if !tt.wantErr(err) {
				t.Errorf("unexpected error %v", err)
			}
			if fs.FaceFound {
				t.Error("expected no face")
			}
		})
	}
}

func TestAnalyzeBatch(t *testing.T) {
	open := func(_ context.Context, path string) (video.Source, error) {
		if path == "missing.mp4" {
			return nil, video.ErrSourceUnreadable
		}
		return video.NewSliceSource(frames(15)), nil
	}
	a := NewAnalyzer(open, nil, nil,
		WithSignalSource(&ScriptedSource{Script: gatedScript()}),
		WithEmbedder(&MockEmbedder{}),
		WithSampling(everyFrame),
	)

	paths := []string{"a.mp4", "missing.mp4", "b.mp4", "c.mp4"}
	results := a.AnalyzeBatch(context.Background(), paths, 2)

	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("result %d is for %s", i, r.Path)
		}
		if paths[i] == "missing.mp4" {
			if !errors.Is(r.Err, ErrSourceUnreadable) {
				t.Errorf("expected unreadable error, got %v", r.Err)
			}
			continue
		}
		if r.Err != nil || !r.Verdict.IsLive {
			t.Errorf("%s: err=%v live=%v", r.Path, r.Err, r.Verdict.IsLive)
		}
	}
}
