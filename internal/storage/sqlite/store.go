package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"p2pwatch/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS quote_samples (
    bucket_us      INTEGER NOT NULL,
    acquire_fiat   TEXT    NOT NULL,
    dispose_fiat   TEXT    NOT NULL,
    acquire_price  TEXT,
    dispose_price  TEXT,
    cross_rate     TEXT,
    acquire_offers INTEGER NOT NULL DEFAULT 0,
    dispose_offers INTEGER NOT NULL DEFAULT 0,
    status         TEXT    NOT NULL,
    error          TEXT,
    created_us     INTEGER NOT NULL,
    PRIMARY KEY (bucket_us, acquire_fiat, dispose_fiat)
);

CREATE TABLE IF NOT EXISTS alerts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    sample_us    INTEGER NOT NULL,
    acquire_fiat TEXT    NOT NULL,
    dispose_fiat TEXT    NOT NULL,
    cross_rate   TEXT    NOT NULL,
    threshold    TEXT    NOT NULL,
    channels     TEXT    NOT NULL DEFAULT '[]',
    created_us   INTEGER NOT NULL,
    UNIQUE (sample_us, acquire_fiat, dispose_fiat)
);`

const sampleColumns = `bucket_us, acquire_fiat, dispose_fiat, acquire_price, dispose_price, cross_rate,
    acquire_offers, dispose_offers, status, error, created_us`

// Store keeps quote samples and alerts in a local SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its directory when missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *Store) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// UpsertQuoteSample persists or updates a quote sample.
func (s *Store) UpsertQuoteSample(ctx context.Context, sample storage.QuoteSample) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	const q = `INSERT INTO quote_samples (` + sampleColumns + `)
    VALUES (?,?,?,?,?,?,?,?,?,?,?)
    ON CONFLICT (bucket_us, acquire_fiat, dispose_fiat) DO UPDATE SET
        acquire_price  = excluded.acquire_price,
        dispose_price  = excluded.dispose_price,
        cross_rate     = excluded.cross_rate,
        acquire_offers = excluded.acquire_offers,
        dispose_offers = excluded.dispose_offers,
        status         = excluded.status,
        error          = excluded.error;`

	var errMsg any
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, err = db.ExecContext(ctx, q,
		sample.Bucket.UTC().UnixMicro(),
		sample.AcquireFiat,
		sample.DisposeFiat,
		nullDecimalArg(sample.AcquirePrice),
		nullDecimalArg(sample.DisposePrice),
		nullDecimalArg(sample.CrossRate),
		sample.AcquireOffers,
		sample.DisposeOffers,
		sample.Status,
		errMsg,
		s.now().UTC().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("upsert quote sample: %w", err)
	}
	return nil
}

// ListSamplesBetween lists samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]storage.QuoteSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM quote_samples WHERE bucket_us >= ? AND bucket_us < ? ORDER BY bucket_us;`,
		from.UTC().UnixMicro(), to.UTC().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]storage.QuoteSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM quote_samples ORDER BY bucket_us DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	return collectSamples(rows)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quote_samples;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return storage.AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}
	rawChannels, err := json.Marshal(channels)
	if err != nil {
		return storage.AlertRecord{}, fmt.Errorf("encode channels: %w", err)
	}

	const q = `INSERT INTO alerts (sample_us, acquire_fiat, dispose_fiat, cross_rate, threshold, channels, created_us)
    VALUES (?,?,?,?,?,?,?)
    ON CONFLICT (sample_us, acquire_fiat, dispose_fiat) DO UPDATE SET
        cross_rate = excluded.cross_rate,
        threshold  = excluded.threshold,
        channels   = excluded.channels
    RETURNING id, sample_us, acquire_fiat, dispose_fiat, cross_rate, threshold, channels, created_us;`

	row := db.QueryRowContext(ctx, q,
		alert.SampleTS.UTC().UnixMicro(),
		alert.AcquireFiat,
		alert.DisposeFiat,
		alert.CrossRate.String(),
		alert.Threshold.String(),
		string(rawChannels),
		s.now().UTC().UnixMicro(),
	)
	rec, err := scanAlert(row)
	if err != nil {
		return storage.AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, sample_us, acquire_fiat, dispose_fiat, cross_rate, threshold, channels, created_us
    FROM alerts ORDER BY created_us DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
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
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM alerts WHERE created_us < ?;`, olderThan.UTC().UnixMicro()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func collectSamples(rows *sql.Rows) ([]storage.QuoteSample, error) {
	defer rows.Close()

	samples := make([]storage.QuoteSample, 0)
	for rows.Next() {
		sample, err := scanQuoteSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func scanQuoteSample(row scanner) (storage.QuoteSample, error) {
	var (
		sample                  storage.QuoteSample
		bucketUS, createdUS     int64
		acquire, dispose, cross sql.NullString
		errMsg                  sql.NullString
	)
	if err := row.Scan(
		&bucketUS,
		&sample.AcquireFiat,
		&sample.DisposeFiat,
		&acquire,
		&dispose,
		&cross,
		&sample.AcquireOffers,
		&sample.DisposeOffers,
		&sample.Status,
		&errMsg,
		&createdUS,
	); err != nil {
		return storage.QuoteSample{}, err
	}

	sample.Bucket = time.UnixMicro(bucketUS).UTC()
	sample.CreatedAt = time.UnixMicro(createdUS).UTC()

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
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}
	return sample, nil
}

func scanAlert(row scanner) (storage.AlertRecord, error) {
	var (
		rec                 storage.AlertRecord
		sampleUS, createdUS int64
		crossStr, thrStr    string
		rawChannels         string
	)
	if err := row.Scan(&rec.ID, &sampleUS, &rec.AcquireFiat, &rec.DisposeFiat, &crossStr, &thrStr, &rawChannels, &createdUS); err != nil {
		return storage.AlertRecord{}, err
	}
	rec.SampleTS = time.UnixMicro(sampleUS).UTC()
	rec.CreatedAt = time.UnixMicro(createdUS).UTC()

	var err error
	if rec.CrossRate, err = decimal.NewFromString(crossStr); err != nil {
		return storage.AlertRecord{}, fmt.Errorf("parse cross rate: %w", err)
	}
	if rec.Threshold, err = decimal.NewFromString(thrStr); err != nil {
		return storage.AlertRecord{}, fmt.Errorf("parse threshold: %w", err)
	}
	if err := json.Unmarshal([]byte(rawChannels), &rec.Channels); err != nil {
		return storage.AlertRecord{}, fmt.Errorf("decode channels: %w", err)
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

var _ storage.Backend = (*Store)(nil)
