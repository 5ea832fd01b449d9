package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"p2pwatch/internal/collector"
	"p2pwatch/internal/metrics"
)

// Collect runs collection cycles into the raw store. With once set a single cycle runs.
func (a *App) Collect(ctx context.Context, once bool) error {
	pf, err := a.newFetcher()
	if err != nil {
		return err
	}

	if len(a.Config.Markets) == 0 {
		return errors.New("no markets configured")
	}

	c := collector.New(collector.Options{
		Markets:       a.Config.Markets,
		MaxPages:      a.Config.Collector.MaxPages,
		Concurrency:   a.Config.Collector.Concurrency,
		CountPath:     a.Config.Collector.CountPath,
		PageSizeField: a.Config.Collector.PageSizeField,
		Interval:      a.Config.Collector.Interval,
		StartupDelay:  a.Config.Collector.StartupDelay,
	}, pf, a.rawStore(), a.Logger)

	if once || a.Config.Metrics.Addr == "" {
		return c.Run(ctx, once)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.NewServer(a.Config.Metrics.Addr, a.Logger).Serve(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.Run(gctx, false)
	})

	a.Logger.Info().Str("metrics_addr", a.Config.Metrics.Addr).Msg("collector started")
	return g.Wait()
}
