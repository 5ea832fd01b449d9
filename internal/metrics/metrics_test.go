package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/model"
)

func TestOutcome(t *testing.T) {
	ok, bad := 200, 503
	msg := "eof"

	assert.Equal(t, OutcomeOK, Outcome(model.FetchAttempt{HTTPStatus: &ok}))
	assert.Equal(t, OutcomeHTTPError, Outcome(model.FetchAttempt{HTTPStatus: &bad}))
	assert.Equal(t, OutcomeFailed, Outcome(model.FetchAttempt{Error: &msg}))
}

func TestObserveFetchCountsByOutcome(t *testing.T) {
	status := 200
	a := model.FetchAttempt{Market: "metrics_test", HTTPStatus: &status}

	before := testutil.ToFloat64(fetchAttempts.WithLabelValues("metrics_test", OutcomeOK))
	ObserveFetch(a, 120*time.Millisecond)
	ObserveFetch(a, 80*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(fetchAttempts.WithLabelValues("metrics_test", OutcomeOK)))
}

func TestServerRoutes(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	SetPagesPlanned("metrics_route", 3)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `p2pwatch_pages_planned{market="metrics_route"} 3`)
}
