package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"p2pwatch/internal/fetcher"
	"p2pwatch/internal/metrics"
	"p2pwatch/internal/model"
	"p2pwatch/internal/scheduler"
)

// Sink durably records fetch attempts.
type Sink interface {
	Append(attempt model.FetchAttempt) (string, error)
}

// Options configure collection cycles.
type Options struct {
	Markets       []model.Market
	MaxPages      int
	Concurrency   int
	CountPath     string
	PageSizeField string
	Interval      time.Duration
	StartupDelay  time.Duration
}

// Collector fetches every page of every configured market into the raw store.
type Collector struct {
	opts    Options
	fetcher fetcher.PageFetcher
	sink    Sink
	logger  zerolog.Logger
	cycleID func() string
}

// New constructs a Collector.
func New(opts Options, pf fetcher.PageFetcher, sink Sink, logger zerolog.Logger) *Collector {
	return &Collector{
		opts:    opts,
		fetcher: pf,
		sink:    sink,
		logger:  logger.With().Str("component", "collector").Logger(),
		cycleID: uuid.NewString,
	}
}

// Run executes one cycle when once is set, otherwise repeats cycles every interval until
// ctx is cancelled. Only raw store failures end it with an error.
func (c *Collector) Run(ctx context.Context, once bool) error {
	if once {
		return c.RunCycle(ctx)
	}

	interval := c.opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sched := scheduler.New(scheduler.Options{Interval: interval, StartupDelay: c.opts.StartupDelay}, c.logger)

	err := sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return c.RunCycle(ctx)
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// RunCycle collects all markets in sequence. Page and market failures are recorded and
// logged; the returned error is always a storage failure or context cancellation.
func (c *Collector) RunCycle(ctx context.Context) error {
	started := time.Now()
	cycle := c.cycleID()
	logger := c.logger.With().Str("cycle_id", cycle).Logger()

	for _, market := range c.opts.Markets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.collectMarket(ctx, cycle, market, logger); err != nil {
			return err
		}
	}

	took := time.Since(started)
	metrics.ObserveCycle(took)
	logger.Info().Int("markets", len(c.opts.Markets)).Dur("took", took).Msg("cycle complete")
	return nil
}

func (c *Collector) collectMarket(ctx context.Context, cycle string, market model.Market, logger zerolog.Logger) error {
	first, err := c.fetchAndStore(ctx, cycle, market, 1, logger)
	if err != nil {
		return err
	}

	total := DeriveTotalPages(first, c.opts.CountPath, c.opts.PageSizeField)
	pages := PagesToFetch(total, c.opts.MaxPages)
	metrics.SetPagesPlanned(market.Name, pages)
	logger.Debug().Str("market", market.Name).Int("derived_pages", total).Int("pages", pages).Msg("pagination derived")

	if pages <= 1 {
		return nil
	}

	var g errgroup.Group
	if c.opts.Concurrency > 0 {
		g.SetLimit(c.opts.Concurrency)
	}
	for page := 2; page <= pages; page++ {
		page := page
		g.Go(func() error {
			_, err := c.fetchAndStore(ctx, cycle, market, page, logger)
			return err
		})
	}
	return g.Wait()
}

func (c *Collector) fetchAndStore(ctx context.Context, cycle string, market model.Market, page int, logger zerolog.Logger) (model.FetchAttempt, error) {
	started := time.Now()
	attempt := c.fetcher.FetchPage(ctx, market, page)
	attempt.CycleID = cycle
	metrics.ObserveFetch(attempt, time.Since(started))

	path, err := c.sink.Append(attempt)
	if err != nil {
		metrics.IncRawWriteError()
		return attempt, fmt.Errorf("store %s page %d: %w", market.Name, page, err)
	}

	switch {
	case attempt.Error != nil:
		logger.Warn().Str("market", market.Name).Int("page", page).Str("error", *attempt.Error).Msg("fetch failed")
	case attempt.HTTPStatus != nil && *attempt.HTTPStatus >= 400:
		logger.Warn().Str("market", market.Name).Int("page", page).Int("status", *attempt.HTTPStatus).Str("path", path).Msg("fetch http error")
	}
	return attempt, nil
}
