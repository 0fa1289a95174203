package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/liveness"
	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/provider"
	"github.com/MrCodeEU/facelive/pkg/report"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/video"
)

func newCheckCmd(a *app) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "check <video>",
		Short: "Check a video for liveness and print the result document",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, args[0], progress)
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "Show frame reading progress on stderr")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, path string, progress bool) error {
	v, err := a.analyze(cmd, path, progress)
	if err != nil {
		return err
	}
	return report.FromVerdict(*v).Write(cmd.OutOrStdout())
}

// newAnalyzer builds the providers and an analyzer over them. The caller
// closes the returned set.
func (a *app) newAnalyzer(ctx context.Context, opts ...liveness.Option) (*liveness.Analyzer, *provider.Set, error) {
	open, err := video.NewOpener(a.cfg.Video)
	if err != nil {
		return nil, nil, err
	}

	set, err := provider.Build(ctx, a.cfg.Providers, a.cfg.Recognition)
	if err != nil {
		return nil, nil, err
	}

	base := []liveness.Option{
		liveness.WithThresholds(a.cfg.Liveness),
		liveness.WithSampling(a.cfg.Sampling),
		liveness.WithDetector(signals.NewDetector(a.cfg.Signals)),
		liveness.WithEmbedder(set.Embedder),
		liveness.WithTimeout(a.cfg.Video.Timeout),
		liveness.WithProviderTimeout(a.cfg.Providers.Timeout),
	}
	return liveness.NewAnalyzer(open, set.Locator, set.Spoof, append(base, opts...)...), set, nil
}

// analyze runs the liveness check over one video. Every failure has already
// been printed as a failure document when an error is returned.
func (a *app) analyze(cmd *cobra.Command, path string, progress bool) (*liveness.Verdict, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logging.WithField("video", path)

	if _, err := os.Stat(path); err != nil {
		log.WithError(err).Error("Could not open video file")
		return nil, writeFailure(out, report.OpenFailureMessage, fmt.Errorf("%w: %v", liveness.ErrSourceUnreadable, err))
	}

	var opts []liveness.Option
	if progress {
		bar := newFrameBar(path, a.cfg.Sampling.MaxFrames, cmd.ErrOrStderr())
		defer func() { _ = bar.Finish() }()
		opts = append(opts, liveness.WithProgress(func(read, _ int) {
			_ = bar.Set(read)
		}))
	}

	analyzer, set, err := a.newAnalyzer(ctx, opts...)
	if err != nil {
		log.WithError(err).Error("Could not initialize providers")
		return nil, writeFailure(out, err.Error(), err)
	}
	defer func() {
		if err := set.Close(); err != nil {
			log.WithError(err).Warn("Closing providers failed")
		}
	}()

	v, err := analyzer.Analyze(ctx, path)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, liveness.ErrSourceUnreadable) {
			msg = report.OpenFailureMessage
		}
		return nil, writeFailure(out, msg, err)
	}
	return &v, nil
}

// writeFailure prints the failure document and returns the exit error.
func writeFailure(w io.Writer, msg string, err error) error {
	if werr := report.Failure(msg).Write(w); werr != nil {
		return werr
	}
	return &exitError{code: 1, err: err}
}

// newFrameBar shows frames read. Reads stop at maxFrames, so a longer video
// is shown against that budget.
func newFrameBar(path string, maxFrames int, w io.Writer) *progressbar.ProgressBar {
	total := video.ProbeFrameCount(path)
	if total <= 0 {
		total = -1
	} else if maxFrames > 0 {
		total = min(total, maxFrames)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Reading frames"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
