package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/provider"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// extractResult is the document printed by extract.
type extractResult struct {
	Vector []float32 `json:"vector,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image>",
		Short: "Extract the face embedding of a still image",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd, args[0])
		},
	}
}

func (a *app) runExtract(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	log := logging.WithField("image", path)

	frame, err := video.LoadImage(path)
	if err != nil {
		log.WithError(err).Error("Could not load image")
		return writeExtract(out, extractResult{Error: "Could not load image"}, err)
	}

	set, err := provider.Build(cmd.Context(), a.cfg.Providers, a.cfg.Recognition)
	if err != nil {
		return writeExtract(out, extractResult{Error: err.Error()}, err)
	}
	defer func() { _ = set.Close() }()

	if set.Embedder == nil {
		err := errors.New("no embedding provider configured")
		return writeExtract(out, extractResult{Error: err.Error()}, err)
	}

	ctx := cmd.Context()
	if t := a.cfg.Providers.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	vec, err := set.Embedder.ExtractEmbedding(ctx, frame)
	if err != nil {
		log.WithError(err).Error("Embedding extraction failed")
		return writeExtract(out, extractResult{Error: err.Error()}, err)
	}
	if vec == nil {
		return writeExtract(out, extractResult{Error: "No face detected in the image"}, errors.New("no face detected"))
	}

	log.WithField("dimensions", len(vec)).Debug("Embedding extracted")
	return writeExtract(out, extractResult{Vector: vec}, nil)
}

func writeExtract(w io.Writer, res extractResult, cause error) error {
	if err := json.NewEncoder(w).Encode(res); err != nil {
		return err
	}
	if cause != nil {
		return &exitError{code: 1, err: cause}
	}
	return nil
}
