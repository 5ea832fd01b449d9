package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"p2pwatch/internal/archive"
	"p2pwatch/internal/extract"
	"p2pwatch/internal/metrics"
	"p2pwatch/internal/model"
	"p2pwatch/internal/offerfile"
	"p2pwatch/internal/queue"
	"p2pwatch/internal/rawstore"
)

// ProcessResult summarises one processed day.
type ProcessResult struct {
	Day      string
	Path     string
	Attempts int
	Offers   int
}

// Process extracts every offer from a day of raw attempts into the day's offer file,
// then publishes and archives it when those sinks are configured.
func (a *App) Process(ctx context.Context, day string) (ProcessResult, error) {
	if _, err := rawstore.ParseDay(day); err != nil {
		return ProcessResult{}, err
	}

	ex := extract.New(extract.DefaultPolicy(), a.Logger)
	offers := make([]model.Offer, 0)
	perMarket := map[string]int{}
	attempts := 0

	err := a.rawStore().ReadDay(day, func(attempt model.FetchAttempt) error {
		attempts++
		extracted := ex.ExtractOffers(attempt)
		perMarket[attempt.Market] += len(extracted)
		offers = append(offers, extracted...)
		return ctx.Err()
	})
	if err != nil {
		return ProcessResult{}, fmt.Errorf("read raw day %s: %w", day, err)
	}

	path := offerfile.Path(a.Config.App.DataDir, day)
	if err := offerfile.Write(path, offers); err != nil {
		return ProcessResult{}, err
	}
	for market, n := range perMarket {
		metrics.AddOffers(market, n)
	}

	a.Logger.Info().Str("day", day).
		Int("attempts", attempts).
		Int("offers", len(offers)).
		Str("path", path).
		Msg("day processed")

	if err := a.publish(ctx, offers); err != nil {
		a.Logger.Error().Err(err).Str("day", day).Msg("offer publish failed")
	}
	if err := a.archive(ctx, path, day); err != nil {
		a.Logger.Error().Err(err).Str("day", day).Msg("offer archive failed")
	}

	return ProcessResult{Day: day, Path: path, Attempts: attempts, Offers: len(offers)}, nil
}

func (a *App) publish(ctx context.Context, offers []model.Offer) error {
	if len(a.Config.Queue.Brokers) == 0 {
		return nil
	}
	w := queue.NewWriter(a.Config.Queue.Brokers, a.Config.Queue.Topic)
	defer w.Close()
	return queue.PublishOffers(ctx, w, offers)
}

func (a *App) archive(ctx context.Context, path, day string) error {
	if a.Config.Archive.Bucket == "" {
		return nil
	}
	u, err := archive.New(ctx, a.Config.Archive, a.Logger)
	if err != nil {
		return err
	}
	_, err = u.Upload(ctx, path, day)
	return err
}

// loadOffers reads a processed day. A missing file is reported as such.
func (a *App) loadOffers(day string) ([]model.Offer, error) {
	if _, err := rawstore.ParseDay(day); err != nil {
		return nil, err
	}
	path := offerfile.Path(a.Config.App.DataDir, day)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no processed offers for %s; run process --day %s first", day, day)
	}
	return offerfile.Read(path)
}

// Backfill processes every stored raw day within [From, To] and evaluates its quotes.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	days, err := a.rawStore().Days()
	if err != nil {
		return err
	}

	processed, failed := 0, 0
	for _, day := range days {
		if (opts.From != "" && day < opts.From) || (opts.To != "" && day > opts.To) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.DryRun {
			a.Logger.Info().Str("day", day).Msg("回填 dry-run：不会写入任何数据")
			continue
		}
		if _, err := a.Process(ctx, day); err != nil {
			failed++
			a.Logger.Error().Err(err).Str("day", day).Msg("回填失败")
			continue
		}
		if _, err := a.Quote(ctx, day); err != nil {
			failed++
			a.Logger.Error().Err(err).Str("day", day).Msg("回填报价失败")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分日期回填失败，请检查日志")
	}
	return nil
}
