//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"trade-outcome-lab/internal/config"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ProvideLogger,

		// Infrastructure
		ProvideStores,
		ProvidePriceProvider,
		ProvideAlertPublisher,

		// Services
		ProvideScorer,
		ProvideCalibrator,
		ProvideLifecycle,
		ProvideEngine,
		ProvideMonitor,
		ProvideChecker,
		ProvideStream,

		// HTTP
		ProvideHandler,
		ProvideServer,

		ProvideApp,
	)
	return nil, nil, nil
}
