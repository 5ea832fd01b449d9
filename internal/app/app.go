package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"p2pwatch/internal/alerting"
	"p2pwatch/internal/cache"
	"p2pwatch/internal/config"
	"p2pwatch/internal/fetcher"
	"p2pwatch/internal/model"
	"p2pwatch/internal/rawstore"
	"p2pwatch/internal/retry"
	"p2pwatch/internal/service"
	"p2pwatch/internal/storage"
	"p2pwatch/internal/storage/postgres"
	"p2pwatch/internal/storage/sqlite"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetcher() (*fetcher.Market, error) {
	body, err := a.Config.Endpoint.Body()
	if err != nil {
		return nil, err
	}
	opts := fetcher.MarketOptions{
		Endpoint: fetcher.Endpoint{
			URL:          a.Config.Endpoint.URL,
			Method:       a.Config.Endpoint.Method,
			Timeout:      a.Config.Endpoint.Timeout,
			Headers:      a.Config.Endpoint.Headers,
			BodyTemplate: body,
		},
		Retry: retry.Policy{
			MaxAttempts:         a.Config.Collector.Retry.MaxAttempts,
			InitialInterval:     a.Config.Collector.Retry.InitialInterval,
			MaxInterval:         a.Config.Collector.Retry.MaxInterval,
			Multiplier:          2,
			RandomizationFactor: 0.5,
		},
		RequestsPerSecond: a.Config.Collector.RequestsPerSecond,
		Burst:             a.Config.Collector.Burst,
		UserAgent:         a.Config.Endpoint.UserAgent,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return fetcher.NewMarket(opts, a.Logger), nil
}

func (a *App) rawStore() *rawstore.Store {
	return rawstore.New(a.Config.App.DataDir, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newCache() cache.QuoteCache {
	cfg := a.Config.Cache
	if cfg.Addr == "" {
		return nil
	}
	c, err := cache.NewRedisQuoteCache(cfg.Addr, cfg.Password, cfg.DB, a.Config.Alerting.Cooldown, cfg.Prefix)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("alert cache disabled")
		return nil
	}
	return c
}

// openStore opens the configured backend. A nil backend means persistence is off.
func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	var backend storage.Backend
	switch a.Config.Storage.Driver {
	case "":
		return nil, nil, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, a.Config.Storage)
		if err != nil {
			return nil, nil, err
		}
		backend = postgres.NewStore(pool)
	case "sqlite":
		store, err := sqlite.Open(a.Config.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		backend = store
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
	}

	if err := backend.EnsureSchema(ctx); err != nil {
		backend.Close()
		return nil, nil, err
	}
	return backend, backend.Close, nil
}

func (a *App) requireStore(ctx context.Context) (storage.Backend, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("storage.driver not configured")
	}
	return store, closeStore, nil
}

func (a *App) newService(store storage.Backend, notifier alerting.Notifier, quoteCache cache.QuoteCache) *service.Service {
	var (
		samples storage.QuoteSampleStore
		alerts  storage.AlertStore
		locker  storage.AdvisoryLocker
	)
	if store != nil {
		samples = store
		alerts = store
		if l, ok := store.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}
	return service.New(service.OptionsFromConfig(a.Config), samples, alerts, notifier, quoteCache, locker, a.Logger)
}

// BestOptions select the trade evaluated by Best.
type BestOptions struct {
	Day            string
	Direction      model.Direction
	Fiat           string
	Amount         decimal.Decimal
	PaymentMethods []string
	MerchantOnly   bool
	MinRating      float64
	// AllSnapshots searches every snapshot of the day instead of only the newest.
	AllSnapshots bool
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// BackfillOptions configure reprocessing of stored raw days.
type BackfillOptions struct {
	From   string
	To     string
	DryRun bool
}
