// Package main fits the probability calibration artifact from closed trades
// matched to their predictions and writes the calibration report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"trade-outcome-lab/internal/calibration"
	"trade-outcome-lab/internal/config"
	"trade-outcome-lab/internal/di"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	from := flag.String("from", "", "earliest exit date to include (YYYY-MM-DD)")
	to := flag.String("to", "", "latest exit date to include (YYYY-MM-DD)")
	artifactPath := flag.String("out", "", "artifact path (default from config)")
	reportDir := flag.String("report-dir", "", "report directory (default from config)")
	modelVersion := flag.String("model-version", "", "model version recorded in the report")
	flag.Parse()

	if err := run(*configPath, *from, *to, *artifactPath, *reportDir, *modelVersion); err != nil {
		fmt.Fprintf(os.Stderr, "calibrate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, fromArg, toArg, artifactPath, reportDir, modelVersion string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if artifactPath == "" {
		artifactPath = cfg.Calibration.ArtifactPath
	}
	if reportDir == "" {
		reportDir = cfg.Calibration.ReportDir
	}
	from, err := parseOptionalDate("from", fromArg)
	if err != nil {
		return err
	}
	to, err := parseOptionalDate("to", toArg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	log, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	stores, cleanup, err := di.ProvideStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	monitor := di.ProvideMonitor(cfg, stores, log)
	samples, matched, err := monitor.CalibrationSamples(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no closed trades matched to predictions in range")
	}
	log.Info("calibration samples loaded", logger.Int("samples", len(samples)))

	now := time.Now().UTC()
	artifact, err := calibration.Fit(samples, calibration.FitOptions{
		Platt:   calibration.DefaultPlattOptions(),
		Weights: cfg.Calibration.Weights,
	}, now)
	if err != nil {
		return err
	}
	if err := calibration.SaveArtifact(artifactPath, artifact); err != nil {
		return err
	}

	fitRun := &domain.CalibrationRun{
		RunID:        uuid.NewString(),
		Kind:         domain.CalibrationRunFit,
		CreatedAt:    now,
		TradeCount:   len(samples),
		ECE:          artifact.Calibrated.ECE,
		MCE:          artifact.Calibrated.MCE,
		Brier:        artifact.Calibrated.Brier,
		ModelVersion: modelVersion,
	}
	if err := stores.Runs.Insert(ctx, fitRun); err != nil {
		return fmt.Errorf("record calibration run: %w", err)
	}

	report, err := reporting.NewGenerator(monitor).Generate(ctx, reporting.Input{
		Artifact:     artifact,
		Samples:      samples,
		Matched:      matched,
		ModelVersion: modelVersion,
		From:         from,
		To:           to,
	})
	if err != nil {
		return err
	}
	paths, err := reporting.WriteFiles(reportDir, report)
	if err != nil {
		return err
	}

	log.Info("calibration artifact written",
		logger.String("artifact", artifactPath),
		logger.Float64("ece_raw", artifact.Raw.ECE),
		logger.Float64("ece_calibrated", artifact.Calibrated.ECE),
		logger.Any("reports", paths),
	)
	return nil
}

func parseOptionalDate(name, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return &t, nil
}
