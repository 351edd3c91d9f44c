// Package main trains the logistic exit model from the price history of
// closed trades and writes the coefficient file the server loads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"trade-outcome-lab/internal/config"
	"trade-outcome-lab/internal/di"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/model"
)

// Bars before entry feed the trailing indicators.
const featureLookbackDays = 90

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	since := flag.String("since", "", "earliest exit date to train on (YYYY-MM-DD, default all)")
	out := flag.String("out", "", "coefficient file (default model.path from config)")
	epochs := flag.Int("epochs", 2000, "gradient descent epochs")
	lr := flag.Float64("lr", 0.1, "learning rate")
	l2 := flag.Float64("l2", 0.001, "L2 penalty")
	valSplit := flag.Float64("validation-split", 0.2, "fraction of samples held out")
	version := flag.String("version", "", "model version (default derived from training time)")
	flag.Parse()

	opts := model.TrainOptions{
		Epochs:          *epochs,
		LearningRate:    *lr,
		L2:              *l2,
		ValidationSplit: *valSplit,
		Version:         *version,
	}
	if err := run(*configPath, *since, *out, opts); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, since, out string, opts model.TrainOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if out == "" {
		out = cfg.Model.Path
	}
	start := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	if since != "" {
		if start, err = time.Parse("2006-01-02", since); err != nil {
			return fmt.Errorf("invalid -since: %w", err)
		}
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
	prices, closePrices, err := di.ProvidePriceProvider(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	defer closePrices()

	now := time.Now().UTC()
	trades, err := stores.Trades.GetClosedByExitRange(ctx, start, now)
	if err != nil {
		return fmt.Errorf("load closed trades: %w", err)
	}
	log.Info("building training set", logger.Int("trades", len(trades)))

	// Per-trade results keep exit order so the validation tail is the latest data.
	perTrade := make([][]model.Sample, len(trades))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Server.BatchWorkers)
	for i, t := range trades {
		g.Go(func() error {
			bars, err := prices.GetHistoricalPrices(gctx, t.Ticker, t.EntryDate.AddDate(0, 0, -featureLookbackDays), *t.ExitDate)
			if err != nil {
				log.Warn("skipping trade without prices", logger.String("trade_id", t.ID), logger.Error(err))
				return nil
			}
			samples, err := model.BuildSamples(t, bars)
			if err != nil {
				log.Warn("skipping trade", logger.String("trade_id", t.ID), logger.Error(err))
				return nil
			}
			perTrade[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var samples []model.Sample
	for _, s := range perTrade {
		samples = append(samples, s...)
	}

	coef, err := model.Train(samples, opts, now)
	if err != nil {
		return err
	}
	if err := model.SaveCoefficients(out, coef); err != nil {
		return err
	}

	log.Info("exit model trained",
		logger.String("path", out),
		logger.String("version", coef.Version),
		logger.Int("samples", coef.TrainingSamples),
		logger.Float64("validation_accuracy", coef.ValidationAccuracy),
	)
	return nil
}
