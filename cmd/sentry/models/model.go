// Package models builds the configured anomaly model.
package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/kedastral-sentry/cmd/sentry/config"
	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
)

// New creates the anomaly model named by cfg.Model.
func New(cfg *config.Config, logger *slog.Logger) (anomaly.Model, error) {
	contamination, err := anomaly.ParseContamination(cfg.Contamination)
	if err != nil {
		return nil, err
	}

	switch cfg.Model {
	case config.ModelIsolationForest:
		logger.Info("initializing isolation forest model",
			"trees", cfg.Trees,
			"sample_size", cfg.SampleSize,
			"contamination", anomaly.FormatContamination(contamination),
			"seed", cfg.Seed,
		)
		return &anomaly.IsolationForest{
			Trees:         cfg.Trees,
			SampleSize:    cfg.SampleSize,
			Contamination: contamination,
			Seed:          cfg.Seed,
		}, nil

	case config.ModelMAD:
		logger.Info("initializing MAD model", "contamination", anomaly.FormatContamination(contamination))
		return &anomaly.MAD{Contamination: contamination}, nil

	default:
		return nil, fmt.Errorf("invalid model type %q", cfg.Model)
	}
}
