package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"p2pwatch/internal/alerting"
	"p2pwatch/internal/cache"
	"p2pwatch/internal/config"
	"p2pwatch/internal/model"
	"p2pwatch/internal/pricing"
	"p2pwatch/internal/storage"
)

// Leg is one side of the two-leg trade.
type Leg struct {
	Fiat           string
	Amount         decimal.Decimal
	PaymentMethods []string
}

// Options configure quote evaluation and alerting.
type Options struct {
	Bucket       time.Duration
	Acquire      Leg
	Dispose      Leg
	MerchantOnly bool
	MinRating    float64

	AlertsOn     bool
	MinCrossRate decimal.Decimal
	Cooldown     time.Duration
	Channels     []string

	LockKey int64
}

// OptionsFromConfig maps the quote and alerting sections.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Bucket: cfg.Quote.Bucket,
		Acquire: Leg{
			Fiat:           cfg.Quote.Acquire.Fiat,
			Amount:         decimal.NewFromFloat(cfg.Quote.Acquire.Amount),
			PaymentMethods: cfg.Quote.Acquire.PaymentMethods,
		},
		Dispose: Leg{
			Fiat:           cfg.Quote.Dispose.Fiat,
			Amount:         decimal.NewFromFloat(cfg.Quote.Dispose.Amount),
			PaymentMethods: cfg.Quote.Dispose.PaymentMethods,
		},
		MerchantOnly: cfg.Quote.Constraints.MerchantOnly,
		MinRating:    cfg.Quote.Constraints.MinRating,
		AlertsOn:     cfg.Alerting.Enabled,
		Cooldown:     cfg.Alerting.Cooldown,
		Channels:     cfg.Alerting.Channels,
		LockKey:      cfg.Storage.AdvisoryLockKey,
	}
	if cfg.Alerting.MinCrossRate > 0 {
		opts.MinCrossRate = decimal.NewFromFloat(cfg.Alerting.MinCrossRate)
	}
	return opts
}

// Service turns offers into bucketed two-leg quotes and raises cross-rate alerts.
type Service struct {
	opts       Options
	store      storage.QuoteSampleStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	cache      cache.QuoteCache
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger
	now        func() time.Time

	mu         sync.Mutex
	lastAlerts map[string]time.Time
}

// New constructs the quote service. Every collaborator may be nil.
func New(opts Options, store storage.QuoteSampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, quoteCache cache.QuoteCache, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	if opts.Bucket <= 0 {
		opts.Bucket = time.Minute
	}
	return &Service{
		opts:       opts,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		cache:      quoteCache,
		locker:     locker,
		logger:     logger.With().Str("component", "quote_service").Logger(),
		now:        time.Now,
		lastAlerts: map[string]time.Time{},
	}
}

func (s *Service) constraints(leg Leg) pricing.Constraints {
	return pricing.Constraints{
		PaymentMethods: leg.PaymentMethods,
		MerchantOnly:   s.opts.MerchantOnly,
		MinRating:      s.opts.MinRating,
	}
}

// Evaluate 按时间桶（从旧到新）计算并持久化报价样本，仅最新的桶可以触发告警。
func (s *Service) Evaluate(ctx context.Context, offers []model.Offer) ([]storage.QuoteSample, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip evaluation because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	buckets := s.groupByBucket(offers)
	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	samples := make([]storage.QuoteSample, 0, len(keys))
	for i, bucket := range keys {
		sample, acq, dis := s.sample(bucket, buckets[bucket])
		samples = append(samples, sample)

		if s.store != nil {
			if err := s.store.UpsertQuoteSample(ctx, sample); err != nil {
				return samples, fmt.Errorf("upsert quote sample %s: %w", bucket.Format(time.RFC3339), err)
			}
		}

		s.logger.Debug().Time("bucket", bucket).
			Str("status", sample.Status).
			Str("cross_rate", sample.CrossRate.Decimal.String()).
			Msg("quote sampled")

		if i == len(keys)-1 && sample.Status == storage.StatusComplete {
			s.maybeAlert(ctx, sample, acq, dis)
		}
	}

	s.logger.Info().Int("buckets", len(samples)).Int("offers", len(offers)).Msg("quotes evaluated")
	return samples, nil
}

func (s *Service) groupByBucket(offers []model.Offer) map[time.Time][]model.Offer {
	out := map[time.Time][]model.Offer{}
	for _, o := range offers {
		if o.Fiat != s.opts.Acquire.Fiat && o.Fiat != s.opts.Dispose.Fiat {
			continue
		}
		b := o.TS.UTC().Truncate(s.opts.Bucket)
		out[b] = append(out[b], o)
	}
	return out
}

func (s *Service) sample(bucket time.Time, offers []model.Offer) (storage.QuoteSample, pricing.Result, pricing.Result) {
	acqOffers := pricing.Filter(offers, s.opts.Acquire.Fiat, pricing.SideFor(model.Acquire))
	disOffers := pricing.Filter(offers, s.opts.Dispose.Fiat, pricing.SideFor(model.Dispose))

	acq, acqOK := pricing.BestSingle(acqOffers, model.Acquire, s.opts.Acquire.Amount, s.constraints(s.opts.Acquire))
	dis, disOK := pricing.BestSingle(disOffers, model.Dispose, s.opts.Dispose.Amount, s.constraints(s.opts.Dispose))

	sample := storage.QuoteSample{
		Bucket:        bucket,
		AcquireFiat:   s.opts.Acquire.Fiat,
		DisposeFiat:   s.opts.Dispose.Fiat,
		AcquireOffers: len(acqOffers),
		DisposeOffers: len(disOffers),
		Status:        storage.StatusComplete,
		CreatedAt:     s.now().UTC(),
	}
	if acqOK {
		sample.AcquirePrice = decimal.NewNullDecimal(acq.Price)
	}
	if disOK {
		sample.DisposePrice = decimal.NewNullDecimal(dis.Price)
	}

	var missing []string
	if !acqOK {
		missing = append(missing, "acquire")
	}
	if !disOK {
		missing = append(missing, "dispose")
	}
	if len(missing) > 0 || acq.Price.IsZero() {
		msg := "no executable offer for " + strings.Join(missing, " and ")
		if len(missing) == 0 {
			msg = "acquire price is zero"
		}
		sample.Status = storage.StatusPartial
		sample.Error = &msg
		return sample, acq, dis
	}

	sample.CrossRate = decimal.NewNullDecimal(CrossRate(acq.Price, dis.Price))
	return sample, acq, dis
}

// CrossRate is dispose-fiat received per unit of acquire-fiat spent.
func CrossRate(acquirePrice, disposePrice decimal.Decimal) decimal.Decimal {
	return disposePrice.DivRound(acquirePrice, 8)
}

func (s *Service) maybeAlert(ctx context.Context, sample storage.QuoteSample, acq, dis pricing.Result) {
	if !s.opts.AlertsOn || s.opts.MinCrossRate.IsZero() || !sample.CrossRate.Valid {
		return
	}
	cross := sample.CrossRate.Decimal
	if cross.LessThan(s.opts.MinCrossRate) {
		return
	}

	pair := cache.PairKey(sample.AcquireFiat, sample.DisposeFiat)
	if s.coolingDown(ctx, pair, sample.Bucket) {
		s.logger.Debug().Str("pair", pair).Time("bucket", sample.Bucket).Msg("alert suppressed by cooldown")
		return
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			SampleTS:    sample.Bucket,
			AcquireFiat: sample.AcquireFiat,
			DisposeFiat: sample.DisposeFiat,
			CrossRate:   cross,
			Threshold:   s.opts.MinCrossRate,
			Channels:    s.opts.Channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", sample.Bucket).Msg("failed to persist alert record")
		}
	}

	if s.notifier != nil {
		note := alerting.Notification{
			Bucket:        sample.Bucket,
			AcquireFiat:   sample.AcquireFiat,
			DisposeFiat:   sample.DisposeFiat,
			AcquirePrice:  acq.Price,
			DisposePrice:  dis.Price,
			CrossRate:     cross,
			Threshold:     s.opts.MinCrossRate,
			AcquireAmount: s.opts.Acquire.Amount,
			Channels:      s.opts.Channels,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Time("bucket", sample.Bucket).Msg("failed to dispatch alert")
			return
		}
	}

	s.markAlerted(ctx, pair, sample.Bucket)
}

func (s *Service) coolingDown(ctx context.Context, pair string, at time.Time) bool {
	if s.opts.Cooldown <= 0 {
		return false
	}
	var (
		last  time.Time
		found bool
	)
	if s.cache != nil {
		var err error
		last, found, err = s.cache.LastAlert(ctx, pair)
		if err != nil {
			s.logger.Warn().Err(err).Str("pair", pair).Msg("alert cache lookup failed")
		}
	}
	if !found {
		s.mu.Lock()
		last, found = s.lastAlerts[pair]
		s.mu.Unlock()
	}
	return found && at.Sub(last) < s.opts.Cooldown
}

func (s *Service) markAlerted(ctx context.Context, pair string, at time.Time) {
	s.mu.Lock()
	s.lastAlerts[pair] = at
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.MarkAlert(ctx, pair, at); err != nil {
			s.logger.Warn().Err(err).Str("pair", pair).Msg("alert cache update failed")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
