package di

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trade-outcome-lab/internal/api"
	"trade-outcome-lab/internal/config"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/pricefeed"
)

// App runs the HTTP API, the scheduled drift checker and the optional live
// bar stream until the context is canceled.
type App struct {
	cfg     *config.Config
	server  *api.Server
	checker *drift.Checker
	stream  *pricefeed.Stream // optional
	log     *logger.Logger
}

func ProvideApp(cfg *config.Config, server *api.Server, checker *drift.Checker, stream *pricefeed.Stream, log *logger.Logger) *App {
	return &App{cfg: cfg, server: server, checker: checker, stream: stream, log: log}
}

// Run blocks until ctx is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})

	g.Go(func() error {
		err := a.checker.Run(gctx, a.cfg.Calibration.CheckInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("drift checker: %w", err)
		}
		return nil
	})

	if a.stream != nil {
		g.Go(func() error {
			err := a.stream.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("price stream: %w", err)
			}
			return nil
		})
	}

	a.log.Info("service started",
		logger.String("addr", a.cfg.Server.Addr),
		logger.String("storage", a.cfg.Storage.Backend),
		logger.Bool("stream", a.stream != nil),
		logger.Duration("drift_interval", a.cfg.Calibration.CheckInterval),
	)
	return g.Wait()
}
