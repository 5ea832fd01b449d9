package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured indicates the backend was not initialised.
var ErrNotConfigured = errors.New("storage: backend not configured")

// QuoteSampleStore defines operations for quote sample persistence.
type QuoteSampleStore interface {
	UpsertQuoteSample(ctx context.Context, sample QuoteSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]QuoteSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]QuoteSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend is a complete quote history store.
type Backend interface {
	QuoteSampleStore
	AlertStore
	EnsureSchema(ctx context.Context) error
	Close()
}
