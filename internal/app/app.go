package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"TrendsCollector/internal/config"
	"TrendsCollector/internal/infrastructure/scheduler"
	"TrendsCollector/internal/infrastructure/storage"
	"TrendsCollector/internal/infrastructure/telegram"
	"TrendsCollector/internal/infrastructure/trends"
	"TrendsCollector/internal/logging"
	"TrendsCollector/internal/planner"
	"TrendsCollector/internal/ports"
	"TrendsCollector/internal/quality"
	"TrendsCollector/internal/retry"
	"TrendsCollector/internal/usecase"
)

// Application wires configuration to the collection pipeline and its
// collaborators.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	collector *usecase.Collector
}

// New validates configuration and builds a runnable application instance.
// Configuration errors are the only failures that abort before any query
// unit runs.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	provider := trends.NewClient("", cfg.Collection.IncludeLowVolumeRegions,
		baseLogger.With("component", "provider"))

	requestDelay := time.Duration(cfg.Collection.RequestDelaySeconds) * time.Second
	limiter := rate.NewLimiter(rate.Every(requestDelay), 1)

	var notifier ports.RunNotifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	collector := usecase.NewCollector(usecase.CollectorDeps{
		Provider: provider,
		Sink:     storage.NewPostgresSink(db),
		Planner:  planner.New(provider, limiter, baseLogger.With("component", "planner")),
		Retry: retry.New(retry.Policy{
			MaxAttempts:   cfg.Retry.MaxRetries,
			ErrorDelay:    time.Duration(cfg.Retry.RetryDelaySeconds) * time.Second,
			RateLimitBase: time.Duration(cfg.Retry.RateLimitDelaySeconds) * time.Second,
		}),
		Validator: quality.NewValidator(),
		Notifier:  notifier,
		Logger:    baseLogger.With("component", "collector"),
	}, usecase.CollectorParams{
		Terms:         cfg.Collection.Terms,
		Mode:          cfg.Collection.CollectionMode(),
		BatchSize:     cfg.Collection.BatchSize,
		WindowDays:    cfg.Collection.WindowDays,
		ExclusionDays: cfg.Collection.WindowExclusionDays,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		collector: collector,
	}, nil
}

// Run executes collection. In daemon mode it keeps running on the configured
// interval until the context is cancelled; otherwise it performs one run and
// returns its outcome.
func (a *Application) Run(ctx context.Context) error {
	if !a.cfg.Scheduler.Enabled {
		_, err := a.collector.Run(ctx)
		return err
	}

	interval := time.Duration(a.cfg.Scheduler.IntervalHours) * time.Hour
	driver := scheduler.NewTickerScheduler(interval)
	runner := usecase.NewScheduler(driver, a.collector, a.logger.With("component", "scheduler"))

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	if err := runner.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Close releases the storage connection.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
