package liveness

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/facelive/pkg/geometry"
	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// FrameSignals is everything measured on one sampled frame. When FaceFound is
// false only Index is meaningful.
type FrameSignals struct {
	Index     int
	FaceFound bool
	Landmarks geometry.LandmarkSet

	EAR            float64
	MAR            float64
	Angle          float64
	CenterDistance float64
	FaceSize       float64

	Reflectance signals.Reflectance
	Texture     signals.Texture
	Artifacts   signals.ScreenArtifacts

	// SpoofScore is nil when no scorer is configured or it saw no face.
	SpoofScore *float64
}

// Extractor measures FrameSignals with a landmark locator, the signal
// detectors and an optional spoof scorer.
type Extractor struct {
	locator  Locator
	detector *signals.Detector
	spoof    SpoofScorer
	timeout  time.Duration
	log      *logrus.Entry
}

// NewExtractor creates an Extractor. spoof may be nil. timeout bounds every
// provider call; zero leaves calls bounded only by ctx.
func NewExtractor(locator Locator, detector *signals.Detector, spoof SpoofScorer, timeout time.Duration) *Extractor {
	return &Extractor{
		locator:  locator,
		detector: detector,
		spoof:    spoof,
		timeout:  timeout,
		log:      logging.Component("extractor"),
	}
}

func (e *Extractor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Signals locates the face and runs every detector on the frame. A frame
// without a face yields FaceFound false and ErrNoFaceInFrame. Detector
// failures degrade to the detector's negative result.
func (e *Extractor) Signals(ctx context.Context, f video.Frame) (FrameSignals, error) {
	fs := FrameSignals{Index: f.Index}

	img, err := f.ToImage()
	if err != nil {
		return fs, err
	}

	callCtx, cancel := e.callContext(ctx)
	lm, err := e.locator.LocateFace(callCtx, f)
	cancel()
	if err != nil {
		return fs, &ProviderError{Provider: "locator", Phase: PhaseLandmarkLookup, Err: err}
	}
	if lm == nil {
		return fs, ErrNoFaceInFrame
	}
	layout := e.locator.Layout()
	if err := layout.Validate(lm); err != nil {
		return fs, errors.Join(ErrNoFaceInFrame, err)
	}

	fs.FaceFound = true
	fs.Landmarks = lm

	b := img.Bounds()
	px := lm.Scale(b.Dx(), b.Dy())
	if fs.EAR, err = geometry.CombinedEAR(px, layout); err != nil {
		e.log.WithError(err).WithField("frame", f.Index).Debug("Eye aspect ratio unavailable")
	}
	if fs.MAR, err = geometry.MouthAspectRatio(lm, layout); err != nil {
		e.log.WithError(err).WithField("frame", f.Index).Debug("Mouth aspect ratio unavailable")
	}
	fs.Angle, _ = geometry.FaceAngle(lm, layout)
	fs.CenterDistance, _ = geometry.CenterDistance(lm)
	fs.FaceSize, _ = geometry.FaceSize(lm)

	var wg sync.WaitGroup
	if e.spoof != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := e.callContext(ctx)
			defer cancel()
			score, err := e.spoof.SpoofScore(callCtx, f)
			if err != nil {
				e.log.WithError(&ProviderError{Provider: "spoof", Phase: PhaseSignalExtraction, Err: err}).
					WithField("frame", f.Index).Warn("Spoof score unavailable")
				return
			}
			fs.SpoofScore = score
		}()
	}

	im, err := signals.NewImage(img)
	if err != nil {
		wg.Wait()
		e.log.WithError(err).WithField("frame", f.Index).Warn("Frame could not be prepared for detectors")
		return fs, nil
	}
	defer im.Close()

	res, err := e.detector.Analyze(im, lm)
	if err != nil {
		e.log.WithError(err).WithField("frame", f.Index).Debug("Detector failed")
	}
	wg.Wait()

	fs.Reflectance = res.Reflectance
	fs.Texture = res.Texture
	fs.Artifacts = res.Artifacts
	return fs, nil
}

// Quality measures the capture quality of a frame.
func (e *Extractor) Quality(f video.Frame) (*signals.Quality, error) {
	return frameQuality(e.detector, f)
}

func frameQuality(d *signals.Detector, f video.Frame) (*signals.Quality, error) {
	img, err := f.ToImage()
	if err != nil {
		return nil, err
	}
	im, err := signals.NewImage(img)
	if err != nil {
		return nil, err
	}
	defer im.Close()
	q := d.Quality(im)
	return &q, nil
}
