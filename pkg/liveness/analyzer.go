package liveness

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/sampler"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Analyzer runs the liveness pipeline over video files. It holds no per-video
// state and is safe for concurrent use when its providers are.
type Analyzer struct {
	open     video.Opener
	source   SignalSource
	embedder EmbeddingExtractor
	detector *signals.Detector

	thresholds      Thresholds
	sampling        sampler.Config
	timeout         time.Duration
	providerTimeout time.Duration
	progress        func(read, sampled int)
	log             *logrus.Entry
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThresholds sets the aggregation thresholds.
func WithThresholds(th Thresholds) Option {
	return func(a *Analyzer) { a.thresholds = th }
}

// WithSampling sets the frame budgets.
func WithSampling(cfg sampler.Config) Option {
	return func(a *Analyzer) { a.sampling = cfg }
}

// WithDetector sets the signal detector used for frame signals and capture
// quality.
func WithDetector(d *signals.Detector) Option {
	return func(a *Analyzer) { a.detector = d }
}

// WithEmbedder sets the embedding provider. Without one nothing is captured.
func WithEmbedder(e EmbeddingExtractor) Option {
	return func(a *Analyzer) { a.embedder = e }
}

// WithSignalSource replaces the default Extractor.
func WithSignalSource(src SignalSource) Option {
	return func(a *Analyzer) { a.source = src }
}

// WithTimeout bounds a whole video analysis. When it passes, the verdict is
// built from the frames already processed.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithProviderTimeout bounds each external provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.providerTimeout = d }
}

// WithProgress reports frames read and sampled after every read.
func WithProgress(fn func(read, sampled int)) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// NewAnalyzer creates an Analyzer. Frame signals come from an Extractor over
// locator unless WithSignalSource is given.
func NewAnalyzer(open video.Opener, locator Locator, spoof SpoofScorer, opts ...Option) *Analyzer {
	a := &Analyzer{
		open:            open,
		detector:        signals.NewDetector(signals.DefaultConfig()),
		thresholds:      DefaultThresholds(),
		sampling:        sampler.DefaultConfig(),
		providerTimeout: 10 * time.Second,
		log:             logging.Component("analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.source == nil {
		a.source = NewExtractor(locator, a.detector, spoof, a.providerTimeout)
	}
	return a
}

// Analyze opens path and runs the pipeline over it.
func (a *Analyzer) Analyze(ctx context.Context, path string) (Verdict, error) {
	log := a.log.WithFields(logging.Fields{
		"run_id": uuid.NewString(),
		"video":  path,
	})

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	src, err := a.open(ctx, path)
	if err != nil {
		log.WithError(err).Error("Could not open video file")
		return Verdict{}, &AnalysisError{Phase: PhaseInit, Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.WithError(err).Warn("Closing video source failed")
		}
	}()

	return a.run(ctx, src, log)
}

// AnalyzeSource runs the pipeline over an already opened source. The caller
// keeps ownership of src.
func (a *Analyzer) AnalyzeSource(ctx context.Context, src video.Source) (Verdict, error) {
	log := a.log.WithField("run_id", uuid.NewString())
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.run(ctx, src, log)
}

func (a *Analyzer) run(ctx context.Context, src video.Source, log *logrus.Entry) (Verdict, error) {
	state := NewState()
	opts := []sampler.Option{sampler.WithLogger(log.WithField("phase", PhaseSampling))}
	if a.progress != nil {
		opts = append(opts, sampler.WithProgress(a.progress))
	}

	stats, err := sampler.New(a.sampling, opts...).Run(ctx, src, func(ctx context.Context, f video.Frame) error {
		state = a.fold(ctx, state, f, log)
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Analysis aborted")
		return Verdict{}, &AnalysisError{Phase: PhaseSampling, Err: err}
	}

	v := state.Verdict(a.thresholds, stats)
	log.WithFields(logging.Fields{
		"phase":          PhaseFinalize,
		"is_live":        v.IsLive,
		"captured":       v.Embedding != nil,
		"frames_read":    stats.FramesRead,
		"frames_sampled": stats.FramesSampled,
		"faces":          v.Diagnostics.FacesDetected,
		"blinks":         v.Diagnostics.BlinkCount,
		"mouth":          v.Diagnostics.MouthMovementCount,
		"max_skin_run":   v.Diagnostics.MaxConsecutiveSkinFrames,
		"screen_frames":  v.Diagnostics.ScreenArtifactFrames,
		"bad_texture":    v.Diagnostics.BadTextureFrames,
		"truncated":      v.Diagnostics.Truncated,
	}).Info("Liveness verdict")
	return v, nil
}

// fold runs one sampled frame through signal extraction, the state update,
// the condition check and, when the gates hold, capture.
func (a *Analyzer) fold(ctx context.Context, state State, f video.Frame, log *logrus.Entry) State {
	flog := log.WithField("frame", f.Index)

	fs, err := a.source.Signals(ctx, f)
	var perr *ProviderError
	switch {
	case err == nil:
	case errors.Is(err, ErrNoFaceInFrame):
		flog.WithField("phase", PhaseLandmarkLookup).Debug("No face in frame")
	case errors.As(err, &perr):
		flog.WithError(err).WithField("phase", perr.Phase).Warn("Provider failed, frame treated as faceless")
	default:
		flog.WithError(err).WithField("phase", PhaseSignalExtraction).Warn("Frame signals unavailable")
	}
	if err != nil {
		fs = FrameSignals{Index: f.Index}
	}

	next, step := state.Step(a.thresholds, fs)
	flog.WithFields(logging.Fields{
		"phase":    PhaseStateUpdate,
		"face":     step.FaceFound,
		"ear":      fs.EAR,
		"mar":      fs.MAR,
		"blink":    step.Blink,
		"mouth":    step.MouthMoved,
		"skin":     fs.Reflectance.Skin,
		"skin_run": next.track.SkinRun(),
		"screen":   fs.Artifacts.Detected(),
		"texture":  fs.Texture.RealSkin,
		"spoof":    step.Spoof,
		"live":     step.Live,
	}).Debug("Frame folded")

	if step.Spoof {
		flog.WithField("phase", PhaseConditionCheck).Info("Spoof detected, frame not eligible for capture")
	}
	if !step.CaptureReady || a.embedder == nil {
		return next
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.providerTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.providerTimeout)
	}
	emb, err := a.embedder.ExtractEmbedding(callCtx, f)
	cancel()
	if err != nil {
		flog.WithError(&ProviderError{Provider: "embedding", Phase: PhaseCapture, Err: err}).Warn("Embedding unavailable")
		return next
	}
	if emb == nil {
		flog.WithField("phase", PhaseCapture).Debug("Embedding provider found no face")
		return next
	}

	quality, err := frameQuality(a.detector, f)
	if err != nil {
		flog.WithError(err).Debug("Capture quality unavailable")
	}
	flog.WithField("phase", PhaseCapture).Info("Captured face embedding from a live frame")
	return next.Capture(f.Index, emb, quality)
}
