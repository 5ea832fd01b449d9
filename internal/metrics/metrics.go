// Package metrics holds the Prometheus collectors updated by collection and processing.
//
//	p2pwatch_fetch_attempts_total{market,outcome}  outcome: ok|http_error|failed
//	p2pwatch_fetch_duration_seconds{market}
//	p2pwatch_pages_planned{market}
//	p2pwatch_cycle_duration_seconds
//	p2pwatch_offers_extracted_total{market}
//	p2pwatch_raw_write_errors_total
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"p2pwatch/internal/model"
)

const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeFailed    = "failed"
)

var (
	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2pwatch_fetch_attempts_total",
			Help: "Stored fetch attempts by outcome",
		},
		[]string{"market", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "p2pwatch_fetch_duration_seconds",
			Help:    "Wall time of one page fetch including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"market"},
	)

	pagesPlanned = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "p2pwatch_pages_planned",
			Help: "Pages scheduled for the market in the latest cycle",
		},
		[]string{"market"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "p2pwatch_cycle_duration_seconds",
			Help:    "Duration of a full collection cycle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	offersExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2pwatch_offers_extracted_total",
			Help: "Canonical offers produced by processing",
		},
		[]string{"market"},
	)

	rawWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "p2pwatch_raw_write_errors_total",
			Help: "Raw store appends that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(fetchAttempts, fetchDuration, pagesPlanned, cycleDuration, offersExtracted, rawWriteErrors)
}

// Outcome classifies a stored attempt.
func Outcome(a model.FetchAttempt) string {
	switch {
	case a.Failed() || a.HTTPStatus == nil:
		return OutcomeFailed
	case *a.HTTPStatus >= http.StatusBadRequest:
		return OutcomeHTTPError
	default:
		return OutcomeOK
	}
}

// ObserveFetch records one completed page fetch.
func ObserveFetch(a model.FetchAttempt, took time.Duration) {
	fetchAttempts.WithLabelValues(a.Market, Outcome(a)).Inc()
	fetchDuration.WithLabelValues(a.Market).Observe(took.Seconds())
}

// SetPagesPlanned records how many pages a market will fetch this cycle.
func SetPagesPlanned(market string, pages int) {
	pagesPlanned.WithLabelValues(market).Set(float64(pages))
}

// ObserveCycle records the duration of a collection cycle.
func ObserveCycle(took time.Duration) {
	cycleDuration.Observe(took.Seconds())
}

// AddOffers counts offers extracted for a market.
func AddOffers(market string, n int) {
	if n > 0 {
		offersExtracted.WithLabelValues(market).Add(float64(n))
	}
}

// IncRawWriteError counts a failed raw store append.
func IncRawWriteError() {
	rawWriteErrors.Inc()
}
