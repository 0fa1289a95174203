package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/liveness"
	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/report"
)

func newBatchCmd(a *app) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "batch <video>...",
		Short: "Check several videos in parallel, one JSON line per video",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return usageError(fmt.Errorf("--workers must be at least 1, got %d", workers))
			}
			return a.runBatch(cmd, args, workers)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Number of videos analyzed in parallel")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, paths []string, workers int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	analyzer, set, err := a.newAnalyzer(ctx)
	if err != nil {
		return writeFailure(out, err.Error(), err)
	}
	defer func() { _ = set.Close() }()

	failed := 0
	for _, r := range analyzer.AnalyzeBatch(ctx, paths, workers) {
		var doc report.Document
		switch {
		case r.Err == nil:
			doc = report.FromVerdict(r.Verdict)
		case errors.Is(r.Err, liveness.ErrSourceUnreadable):
			failed++
			doc = report.Failure(report.OpenFailureMessage)
		default:
			failed++
			doc = report.Failure(r.Err.Error())
		}
		if err := doc.With("video", r.Path).Write(out); err != nil {
			return err
		}
	}

	logging.WithFields(logging.Fields{"videos": len(paths), "failed": failed}).Info("Batch complete")
	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d videos failed", failed, len(paths))}
	}
	return nil
}
