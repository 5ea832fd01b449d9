package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"p2pwatch/internal/storage"
)

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS quote_samples (
    bucket_ts      TIMESTAMPTZ NOT NULL,
    acquire_fiat   TEXT        NOT NULL,
    dispose_fiat   TEXT        NOT NULL,
    acquire_price  NUMERIC,
    dispose_price  NUMERIC,
    cross_rate     NUMERIC,
    acquire_offers INTEGER     NOT NULL DEFAULT 0,
    dispose_offers INTEGER     NOT NULL DEFAULT 0,
    status         TEXT        NOT NULL,
    error          TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (bucket_ts, acquire_fiat, dispose_fiat)
);

CREATE TABLE IF NOT EXISTS alerts (
    id           BIGSERIAL PRIMARY KEY,
    sample_ts    TIMESTAMPTZ NOT NULL,
    acquire_fiat TEXT        NOT NULL,
    dispose_fiat TEXT        NOT NULL,
    cross_rate   NUMERIC     NOT NULL,
    threshold    NUMERIC     NOT NULL,
    channels     TEXT[]      NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (sample_ts, acquire_fiat, dispose_fiat)
);`

	upsertQuoteSampleSQL = `INSERT INTO quote_samples (
        bucket_ts,
        acquire_fiat,
        dispose_fiat,
        acquire_price,
        dispose_price,
        cross_rate,
        acquire_offers,
        dispose_offers,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7,$8,$9,$10
    )
    ON CONFLICT (bucket_ts, acquire_fiat, dispose_fiat) DO UPDATE
    SET
        acquire_price  = EXCLUDED.acquire_price,
        dispose_price  = EXCLUDED.dispose_price,
        cross_rate     = EXCLUDED.cross_rate,
        acquire_offers = EXCLUDED.acquire_offers,
        dispose_offers = EXCLUDED.dispose_offers,
        status         = EXCLUDED.status,
        error          = EXCLUDED.error;`

	selectSampleColumns = `SELECT
        bucket_ts,
        acquire_fiat,
        dispose_fiat,
        acquire_price::text,
        dispose_price::text,
        cross_rate::text,
        acquire_offers,
        dispose_offers,
        status,
        error,
        created_at
    FROM quote_samples`

	listSamplesBetweenSQL = selectSampleColumns + `
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = selectSampleColumns + `
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM quote_samples;`

	insertAlertSQL = `INSERT INTO alerts (
        sample_ts,
        acquire_fiat,
        dispose_fiat,
        cross_rate,
        threshold,
        channels
    ) VALUES (
        $1,$2,$3,$4::numeric,$5::numeric,$6
    )
    ON CONFLICT (sample_ts, acquire_fiat, dispose_fiat) DO UPDATE
    SET cross_rate = EXCLUDED.cross_rate,
        threshold  = EXCLUDED.threshold,
        channels   = EXCLUDED.channels
    RETURNING id, sample_ts, acquire_fiat, dispose_fiat, cross_rate::text, threshold::text, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        sample_ts,
        acquire_fiat,
        dispose_fiat,
        cross_rate::text,
        threshold::text,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store keeps quote samples and alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertQuoteSample persists or updates a quote sample.
func (s *Store) UpsertQuoteSample(ctx context.Context, sample storage.QuoteSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg any
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertQuoteSampleSQL,
		sample.Bucket,
		sample.AcquireFiat,
		sample.DisposeFiat,
		nullDecimalArg(sample.AcquirePrice),
		nullDecimalArg(sample.DisposePrice),
		nullDecimalArg(sample.CrossRate),
		sample.AcquireOffers,
		sample.DisposeOffers,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert quote sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]storage.QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]storage.QuoteSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	return collectSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return storage.AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SampleTS,
		alert.AcquireFiat,
		alert.DisposeFiat,
		alert.CrossRate.String(),
		alert.Threshold.String(),
		channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return storage.AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]storage.AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]storage.QuoteSample, error) {
	defer rows.Close()

	samples := make([]storage.QuoteSample, 0, capacity)
	for rows.Next() {
		sample, err := scanQuoteSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanQuoteSample(row pgx.Row) (storage.QuoteSample, error) {
	var (
		sample                     storage.QuoteSample
		acquire, dispose, cross    sql.NullString
		acquireOffers, disposeOffs int32
		errMsg                     sql.NullString
	)

	if err := row.Scan(
		&sample.Bucket,
		&sample.AcquireFiat,
		&sample.DisposeFiat,
		&acquire,
		&dispose,
		&cross,
		&acquireOffers,
		&disposeOffs,
		&sample.Status,
		&errMsg,
		&sample.CreatedAt,
	); err != nil {
		return storage.QuoteSample{}, err
	}

	var err error
	if sample.AcquirePrice, err = parseNullDecimal(acquire); err != nil {
		return storage.QuoteSample{}, fmt.Errorf("parse acquire price: %w", err)
	}
	if sample.DisposePrice, err = parseNullDecimal(dispose); err != nil {
		return storage.QuoteSample{}, fmt.Errorf("parse dispose price: %w", err)
	}
	if sample.CrossRate, err = parseNullDecimal(cross); err != nil {
		return storage.QuoteSample{}, fmt.Errorf("parse cross rate: %w", err)
	}
	sample.AcquireOffers = int(acquireOffers)
	sample.DisposeOffers = int(disposeOffs)
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}
	return sample, nil
}

func scanAlert(row pgx.Row) (storage.AlertRecord, error) {
	var (
		rec              storage.AlertRecord
		crossStr, thrStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SampleTS,
		&rec.AcquireFiat,
		&rec.DisposeFiat,
		&crossStr,
		&thrStr,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return storage.AlertRecord{}, err
	}

	var err error
	if rec.CrossRate, err = decimal.NewFromString(crossStr); err != nil {
		return storage.AlertRecord{}, fmt.Errorf("parse cross rate: %w", err)
	}
	if rec.Threshold, err = decimal.NewFromString(thrStr); err != nil {
		return storage.AlertRecord{}, fmt.Errorf("parse threshold: %w", err)
	}
	return rec, nil
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var (
	_ storage.Backend        = (*Store)(nil)
	_ storage.AdvisoryLocker = (*Store)(nil)
)
