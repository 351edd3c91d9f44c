package di

import (
	"context"
	"errors"
	"fmt"

	"trade-outcome-lab/internal/api"
	"trade-outcome-lab/internal/calibration"
	"trade-outcome-lab/internal/config"
	"trade-outcome-lab/internal/counterfactual"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/lifecycle"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/model"
	"trade-outcome-lab/internal/notify"
	"trade-outcome-lab/internal/observability"
	"trade-outcome-lab/internal/pricefeed"
	"trade-outcome-lab/internal/storage"
	chstore "trade-outcome-lab/internal/storage/clickhouse"
	"trade-outcome-lab/internal/storage/memory"
	"trade-outcome-lab/internal/storage/migrations"
	pgstore "trade-outcome-lab/internal/storage/postgres"
)

// Stores groups the storage implementations selected by configuration.
type Stores struct {
	Trades      storage.TradeStore
	Audit       storage.AuditLogStore
	Predictions storage.PredictionLogStore
	PriceBars   storage.PriceBarStore
	Runs        storage.CalibrationRunStore
	Snapshots   storage.SnapshotReader
}

// ProvideLogger builds the root logger and applies the metrics namespace.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "log", Err: err}
	}
	if cfg.Metrics.Enabled {
		observability.Configure(cfg.Metrics.Namespace)
	}
	return log.With(logger.String("env", cfg.Environment)), nil
}

// ProvideStores opens the configured backend: in-process memory stores, or
// Postgres for trades, audit and prediction logs plus ClickHouse for price
// bars and calibration runs.
func ProvideStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stores, func(), error) {
	if cfg.Storage.Backend == config.BackendMemory {
		trades := memory.NewTradeStore()
		predictions := memory.NewPredictionLogStore()
		log.Warn("using in-memory storage; data is lost on restart")
		return &Stores{
			Trades:      trades,
			Audit:       memory.NewAuditLogStore(),
			Predictions: predictions,
			PriceBars:   memory.NewPriceBarStore(),
			Runs:        memory.NewCalibrationRunStore(),
			Snapshots:   memory.NewSnapshotReader(trades, predictions),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	var chConn *chstore.Conn
	if cfg.Storage.RunMigrations {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info("postgres migrations applied", logger.Int("files", len(applied)))

		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
	}

	stores := &Stores{
		Trades:      pgstore.NewTradeStore(pool),
		Audit:       pgstore.NewAuditLogStore(pool),
		Predictions: pgstore.NewPredictionLogStore(pool),
		Snapshots:   pgstore.NewSnapshotReader(pool),
		PriceBars:   chstore.NewPriceBarStore(chConn),
		Runs:        chstore.NewCalibrationRunStore(chConn),
	}
	cleanup := func() {
		_ = chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// ProvidePriceProvider chains the rate-limited HTTP client, the optional
// Redis cache and the stored price history.
func ProvidePriceProvider(ctx context.Context, cfg *config.Config, stores *Stores, log *logger.Logger) (pricefeed.Provider, func(), error) {
	pf := cfg.PriceFeed
	var upstream pricefeed.Provider = pricefeed.NewHTTPClient(pf.BaseURL, pf.APIKey,
		pricefeed.WithTimeout(pf.Timeout),
		pricefeed.WithMaxRetries(pf.MaxRetries),
		pricefeed.WithRetryDelay(pf.RetryDelay),
		pricefeed.WithLimiter(pricefeed.NewSlidingWindowLimiter(pf.RateLimit.Calls, pf.RateLimit.Window)),
	)

	cleanup := func() {}
	if pf.Cache.Enabled {
		client, err := pricefeed.NewRedisClient(ctx, pf.Cache.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("price cache: %w", err)
		}
		upstream = pricefeed.NewCachedProvider(upstream, client, pf.Cache.Redis.Prefix, pf.Cache.Redis.TTL, log)
		cleanup = func() { _ = client.Close() }
	}

	return pricefeed.NewHistoryProvider(stores.PriceBars, upstream, log), cleanup, nil
}

// ProvideScorer loads the exit model. A missing or invalid model fails
// startup unless model.optional is set.
func ProvideScorer(cfg *config.Config, log *logger.Logger) (*model.Scorer, error) {
	coef, err := model.LoadCoefficients(cfg.Model.Path)
	if err != nil {
		var ce *domain.ConfigurationError
		if cfg.Model.Optional && errors.As(err, &ce) {
			log.Warn("exit model unavailable", logger.Error(err))
			return nil, nil
		}
		return nil, err
	}
	scorer, err := model.NewScorer(coef)
	if err != nil {
		return nil, err
	}
	log.Info("exit model loaded", logger.String("version", scorer.Version()))
	return scorer, nil
}

// ProvideCalibrator loads the calibration artifact. Exit signals carry no
// calibrated probability while it is missing.
func ProvideCalibrator(cfg *config.Config, log *logger.Logger) (*calibration.Artifact, error) {
	artifact, err := calibration.LoadArtifact(cfg.Calibration.ArtifactPath)
	if err != nil {
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			log.Warn("calibration artifact unavailable", logger.Error(err))
			return nil, nil
		}
		return nil, err
	}
	log.Info("calibration artifact loaded",
		logger.Time("fitted_at", artifact.FittedAt),
		logger.Int("samples", artifact.NumSamples),
	)
	return artifact, nil
}

func ProvideLifecycle(stores *Stores, log *logger.Logger) *lifecycle.Service {
	return lifecycle.NewService(stores.Trades, stores.Audit, log)
}

func ProvideEngine(cfg *config.Config, stores *Stores, prices pricefeed.Provider, scorer *model.Scorer, log *logger.Logger) *counterfactual.Engine {
	opts := counterfactual.Options{
		Trades:   stores.Trades,
		Provider: prices,
		Logger:   log,
		Workers:  cfg.Server.BatchWorkers,
	}
	if scorer != nil {
		opts.Scorer = scorer
	}
	return counterfactual.NewEngine(opts)
}

func ProvideMonitor(cfg *config.Config, stores *Stores, log *logger.Logger) *drift.Monitor {
	return drift.NewMonitor(stores.Snapshots, cfg.Calibration.Drift, log)
}

// ProvideAlertPublisher publishes to Kafka when brokers are configured and
// to the log otherwise.
func ProvideAlertPublisher(cfg *config.Config, log *logger.Logger) (drift.AlertPublisher, func(), error) {
	if !cfg.Kafka.Enabled() {
		return notify.NewLogPublisher(log), func() {}, nil
	}
	p, err := notify.NewKafkaPublisher(cfg.Kafka, log)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}

func ProvideChecker(monitor *drift.Monitor, stores *Stores, publisher drift.AlertPublisher, scorer *model.Scorer, log *logger.Logger) *drift.Checker {
	version := ""
	if scorer != nil {
		version = scorer.Version()
	}
	return drift.NewChecker(monitor, stores.Runs, publisher, version, log)
}

func ProvideHandler(cfg *config.Config, svc *lifecycle.Service, engine *counterfactual.Engine, monitor *drift.Monitor,
	scorer *model.Scorer, artifact *calibration.Artifact, prices pricefeed.Provider, stores *Stores, log *logger.Logger) *api.Handler {
	deps := api.Deps{
		Lifecycle:      svc,
		Counterfactual: engine,
		Monitor:        monitor,
		Prices:         prices,
		Predictions:    stores.Predictions,
		ExitThreshold:  cfg.Model.ExitThreshold,
		Logger:         log,
	}
	if scorer != nil {
		deps.Scorer = scorer
	}
	if artifact != nil {
		deps.Calibrator = artifact
	}
	return api.NewHandler(deps)
}

func ProvideServer(cfg *config.Config, h *api.Handler, log *logger.Logger) *api.Server {
	opts := api.ServerOptions{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	return api.NewServer(h, opts, log)
}

// ProvideStream subscribes to live bars for the tickers of open trades and
// folds them into excursions. Nil when streaming is disabled.
func ProvideStream(cfg *config.Config, stores *Stores, svc *lifecycle.Service, log *logger.Logger) *pricefeed.Stream {
	if !cfg.PriceFeed.Stream.Enabled {
		return nil
	}
	tickers := func(ctx context.Context) ([]string, error) {
		open, err := stores.Trades.GetOpen(ctx)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(open))
		var out []string
		for _, t := range open {
			if _, ok := seen[t.Ticker]; !ok {
				seen[t.Ticker] = struct{}{}
				out = append(out, t.Ticker)
			}
		}
		return out, nil
	}
	handler := func(ctx context.Context, bar domain.PriceBar) error {
		_, err := svc.ApplyBar(ctx, bar)
		return err
	}
	return pricefeed.NewStream(cfg.PriceFeed.Stream.Config, cfg.PriceFeed.APIKey, tickers, handler, log)
}
