package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample statuses.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// QuoteSample is the best two-leg quote observed in one time bucket.
type QuoteSample struct {
	Bucket        time.Time
	AcquireFiat   string
	DisposeFiat   string
	AcquirePrice  decimal.NullDecimal
	DisposePrice  decimal.NullDecimal
	CrossRate     decimal.NullDecimal
	AcquireOffers int
	DisposeOffers int
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID          int64
	SampleTS    time.Time
	AcquireFiat string
	DisposeFiat string
	CrossRate   decimal.Decimal
	Threshold   decimal.Decimal
	Channels    []string
	CreatedAt   time.Time
}
