package app

import (
	"context"
	"time"

	"p2pwatch/internal/storage"
)

// Quote evaluates bucketed two-leg quotes for a processed day, persisting samples and
// raising alerts through the configured sinks.
func (a *App) Quote(ctx context.Context, day string) ([]storage.QuoteSample, error) {
	offers, err := a.loadOffers(day)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("storage.driver not configured; quote samples will not be persisted")
	}
	if closeStore != nil {
		defer closeStore()
	}

	quoteCache := a.newCache()
	if quoteCache != nil {
		defer quoteCache.Close()
	}

	svc := a.newService(store, a.newNotifier(), quoteCache)
	samples, err := svc.Evaluate(ctx, offers)
	if err != nil {
		return samples, err
	}
	printSamples(a.Out, samples)

	if store != nil && a.Config.Alerting.Retention > 0 {
		cutoff := time.Now().UTC().Add(-a.Config.Alerting.Retention)
		if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
			a.Logger.Warn().Err(err).Time("cutoff", cutoff).Msg("alert retention prune failed")
		}
	}
	return samples, nil
}
