// Package sampler pulls frames from a video source and hands every stride-th
// frame to a visitor, within a read budget and a sample budget.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// Config holds the frame budgets.
type Config struct {
	MaxFrames     int `yaml:"max_frames" envconfig:"MAX_FRAMES"`
	TargetSamples int `yaml:"target_samples" envconfig:"TARGET_SAMPLES"`
}

// DefaultConfig reads at most 120 frames and samples 30 of them.
func DefaultConfig() Config {
	return Config{MaxFrames: 120, TargetSamples: 30}
}

// Stride is the distance between sampled frames, never below 1.
func (c Config) Stride() int {
	if c.TargetSamples <= 0 {
		return 1
	}
	return max(1, c.MaxFrames/c.TargetSamples)
}

// Validate checks the budgets.
func (c Config) Validate() error {
	if c.MaxFrames <= 0 {
		return fmt.Errorf("max_frames must be positive, got %d", c.MaxFrames)
	}
	if c.TargetSamples <= 0 {
		return fmt.Errorf("target_samples must be positive, got %d", c.TargetSamples)
	}
	return nil
}

// StopReason tells why sampling ended.
type StopReason string

const (
	StopReadCap      StopReason = "read_cap"
	StopSampleTarget StopReason = "sample_target"
	StopEndOfStream  StopReason = "end_of_stream"
	StopReadError    StopReason = "read_error"
	StopDeadline     StopReason = "deadline"
	StopCanceled     StopReason = "canceled"
)

// Stats summarizes one run.
type Stats struct {
	FramesRead    int
	FramesSampled int
	Stop          StopReason
	// ReadErr is set when Stop is StopReadError.
	ReadErr error
}

// Truncated reports whether the run ended because its deadline passed.
func (s Stats) Truncated() bool {
	return s.Stop == StopDeadline
}

// Visitor receives each sampled frame. A returned error aborts the run.
type Visitor func(ctx context.Context, f video.Frame) error

// Option configures a Sampler.
type Option func(*Sampler)

// WithProgress registers a callback invoked after every frame read.
func WithProgress(fn func(read, sampled int)) Option {
	return func(s *Sampler) {
		s.progress = fn
	}
}

// WithLogger sets the log entry used for run events.
func WithLogger(entry *logrus.Entry) Option {
	return func(s *Sampler) {
		s.log = entry
	}
}

// Sampler drives a video source under a fixed budget.
type Sampler struct {
	cfg      Config
	log      *logrus.Entry
	progress func(read, sampled int)
}

// New creates a Sampler.
func New(cfg Config, opts ...Option) *Sampler {
	s := &Sampler{
		cfg: cfg,
		log: logging.Component("sampler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads frames sequentially and visits frame k when k is a multiple of
// the stride. Skipped frames are still read. A passed deadline or a read
// error ends the run without an error so the caller can finalize on what was
// seen; cancellation and visitor errors are returned.
func (s *Sampler) Run(ctx context.Context, src video.Source, visit Visitor) (Stats, error) {
	var st Stats
	stride := s.cfg.Stride()

	for {
		if st.FramesRead >= s.cfg.MaxFrames {
			st.Stop = StopReadCap
			break
		}
		if st.FramesSampled >= s.cfg.TargetSamples {
			st.Stop = StopSampleTarget
			break
		}
		if stop, err := contextStop(ctx); stop != "" {
			st.Stop = stop
			if err != nil {
				return st, err
			}
			break
		}

		f, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				st.Stop = StopEndOfStream
				break
			}
			if stop, cerr := contextStop(ctx); stop != "" {
				st.Stop = stop
				if cerr != nil {
					return st, cerr
				}
				break
			}
			s.log.WithError(err).WithField("frame", st.FramesRead).Warn("Frame read failed, finishing with frames seen so far")
			st.Stop = StopReadError
			st.ReadErr = err
			break
		}

		k := st.FramesRead
		st.FramesRead++
		if k%stride == 0 {
			st.FramesSampled++
			if err := visit(ctx, f); err != nil {
				return st, err
			}
		}
		if s.progress != nil {
			s.progress(st.FramesRead, st.FramesSampled)
		}
	}

	s.log.WithFields(logging.Fields{
		"frames_read":    st.FramesRead,
		"frames_sampled": st.FramesSampled,
		"stop":           st.Stop,
	}).Debug("Sampling finished")
	return st, nil
}

// contextStop classifies a finished context. Only cancellation is an error.
func contextStop(ctx context.Context) (StopReason, error) {
	switch err := ctx.Err(); {
	case err == nil:
		return "", nil
	case errors.Is(err, context.DeadlineExceeded):
		return StopDeadline, nil
	default:
		return StopCanceled, err
	}
}
