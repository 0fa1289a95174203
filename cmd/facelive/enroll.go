package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/recognition"
	"github.com/MrCodeEU/facelive/pkg/report"
	"github.com/MrCodeEU/facelive/pkg/storage"
	"github.com/MrCodeEU/facelive/pkg/storage/pgstore"
)

// ErrNotEnrolled is returned when an enroll run produced nothing to store.
var ErrNotEnrolled = errors.New("no live face embedding captured")

// openStore opens the configured enrollment store.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	switch a.cfg.Storage.Backend {
	case storage.BackendPostgres:
		s, err := pgstore.New(ctx, a.cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := storage.NewFileStorage(a.cfg.Storage.DataDir, a.cfg.Storage.EncryptionEnabled)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// subjectFlag is validated in RunE so that a missing subject is an argument
// error.
func subjectFlag(cmd *cobra.Command, subject *string) {
	cmd.Flags().StringVarP(subject, "subject", "s", "", "Subject ID (required)")
}

func newEnrollCmd(a *app) *cobra.Command {
	var (
		subject  string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "enroll --subject ID <video>",
		Short: "Check a video and store its face embedding for a subject",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.ValidateSubject(subject); err != nil {
				return usageError(err)
			}
			return a.runEnroll(cmd, subject, args[0], progress)
		},
	}
	subjectFlag(cmd, &subject)
	cmd.Flags().BoolVar(&progress, "progress", false, "Show frame reading progress on stderr")
	return cmd
}

func (a *app) runEnroll(cmd *cobra.Command, subject, path string, progress bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logging.WithFields(logging.Fields{"subject": subject, "video": path})

	store, err := a.openStore(ctx)
	if err != nil {
		return writeFailure(out, err.Error(), err)
	}
	defer func() { _ = store.Close() }()

	v, err := a.analyze(cmd, path, progress)
	if err != nil {
		return err
	}

	doc := report.FromVerdict(*v).With("subject", subject)
	if !v.IsLive || v.Embedding == nil {
		log.WithFields(logging.Fields{"is_live": v.IsLive, "captured": v.Embedding != nil}).Warn("Nothing enrolled")
		if err := doc.With("enrolled", false).Write(out); err != nil {
			return err
		}
		return &exitError{code: 1, err: ErrNotEnrolled}
	}

	e, err := store.Enroll(ctx, subject, storage.Enrollment{Vector: v.Embedding, Source: path})
	if err != nil {
		log.WithError(err).Error("Storing enrollment failed")
		return writeFailure(out, err.Error(), err)
	}

	log.WithField("enrollment_id", e.ID).Info("Subject enrolled")
	return doc.With("enrolled", true).With("enrollment_id", e.ID.String()).Write(out)
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		subject  string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "verify --subject ID <video>",
		Short: "Check a video and compare its face embedding to a subject",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.ValidateSubject(subject); err != nil {
				return usageError(err)
			}
			return a.runVerify(cmd, subject, args[0], progress)
		},
	}
	subjectFlag(cmd, &subject)
	cmd.Flags().BoolVar(&progress, "progress", false, "Show frame reading progress on stderr")
	return cmd
}

func (a *app) runVerify(cmd *cobra.Command, subject, path string, progress bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logging.WithFields(logging.Fields{"subject": subject, "video": path})

	store, err := a.openStore(ctx)
	if err != nil {
		return writeFailure(out, err.Error(), err)
	}
	defer func() { _ = store.Close() }()

	v, err := a.analyze(cmd, path, progress)
	if err != nil {
		return err
	}

	doc := report.FromVerdict(*v).With("subject", subject)
	if v.Embedding == nil {
		log.Warn("No embedding captured, nothing to compare")
		return doc.With("match", false).With("similarity", nil).Write(out)
	}

	sim, err := a.bestSimilarity(ctx, store, subject, v.Embedding)
	if err != nil {
		log.WithError(err).Error("Comparison failed")
		return writeFailure(out, err.Error(), err)
	}

	match := v.IsLive && sim >= a.cfg.Recognition.Threshold
	log.WithFields(logging.Fields{"similarity": sim, "match": match}).Info("Subject verified")
	return doc.With("match", match).With("similarity", sim).Write(out)
}

// bestSimilarity returns the highest cosine similarity between probe and the
// subject's enrollments. Stores that search themselves are asked directly.
func (a *app) bestSimilarity(ctx context.Context, store storage.Store, subject string, probe []float32) (float64, error) {
	if s, ok := store.(storage.Searcher); ok {
		_, sim, err := s.BestMatch(ctx, subject, probe)
		return sim, err
	}

	sub, err := store.Get(ctx, subject)
	if err != nil {
		return 0, err
	}
	idx, sim, _ := recognition.Matcher{Threshold: a.cfg.Recognition.Threshold}.FindBestMatch(probe, sub.Vectors())
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", storage.ErrSubjectNotFound, subject)
	}
	return sim, nil
}
