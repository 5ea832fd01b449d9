package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"p2pwatch/internal/model"
	"p2pwatch/internal/retry"
)

const defaultUserAgent = "p2pwatch/1.0"

// Endpoint describes the upstream listing request.
type Endpoint struct {
	URL          string
	Method       string
	Timeout      time.Duration
	Headers      map[string]string
	BodyTemplate map[string]any
}

// MarketOptions parameterise the listing fetcher.
type MarketOptions struct {
	Endpoint          Endpoint
	Retry             retry.Policy
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// Market fetches listing pages from the marketplace.
type Market struct {
	opts    MarketOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewMarket constructs a listing fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Endpoint.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Endpoint.Method))
	if method == "" {
		method = http.MethodPost
	}
	opts.Endpoint.Method = method

	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Market{
		opts:    opts,
		logger:  logger.With().Str("component", "market_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		now:     time.Now,
	}
}

// FetchPage requests one page and records the outcome. Failures after the retry budget
// is spent are recorded with an error and no status.
func (m *Market) FetchPage(ctx context.Context, market model.Market, page int) model.FetchAttempt {
	ep := m.opts.Endpoint
	body := BuildBody(ep.BodyTemplate, Vars{
		Fiat:         market.Fiat,
		Side:         market.Side.String(),
		EndpointSide: market.EndpointSide,
		Page:         page,
	})

	attempt := model.FetchAttempt{
		FormatVersion:  model.RawFormatVersion,
		TS:             m.now().UTC(),
		Market:         market.Name,
		Fiat:           market.Fiat,
		Side:           market.Side,
		Page:           page,
		RequestURL:     ep.URL,
		RequestMethod:  ep.Method,
		RequestHeaders: model.SanitizeHeaders(ep.Headers),
		RequestBody:    body,
	}

	var (
		status int
		text   string
	)
	err := m.opts.Retry.Do(ctx, func(ctx context.Context) error {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		var reqErr error
		status, text, reqErr = m.request(ctx, body)
		return reqErr
	}, func(n int, err error, wait time.Duration) {
		m.logger.Debug().Err(err).
			Str("market", market.Name).
			Int("page", page).
			Int("attempt", n).
			Dur("wait", wait).
			Msg("retrying page fetch")
	})

	if err != nil {
		msg := err.Error()
		attempt.Error = &msg
		return attempt
	}

	if status >= http.StatusBadRequest {
		m.logger.Warn().
			Str("market", market.Name).
			Int("page", page).
			Int("status", status).
			Msg("upstream returned error status")
	}

	attempt.HTTPStatus = &status
	attempt.ResponseText = &text
	return attempt
}

func (m *Market) request(ctx context.Context, body map[string]any) (int, string, error) {
	req, err := m.newRequest(ctx, body)
	if err != nil {
		return 0, "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, string(payload), nil
}

func (m *Market) newRequest(ctx context.Context, body map[string]any) (*http.Request, error) {
	ep := m.opts.Endpoint

	var (
		req *http.Request
		err error
	)
	if ep.Method == http.MethodGet {
		u, parseErr := url.Parse(ep.URL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse endpoint url: %w", parseErr)
		}
		q := u.Query()
		for k, v := range body {
			q.Set(k, queryValue(v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal request body: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, ep.Method, ep.URL, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func queryValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}

// ErrNoEndpoint indicates a fetcher was built without an endpoint URL.
var ErrNoEndpoint = errors.New("endpoint url not configured")

// Validate checks the options before any request is attempted.
func (o MarketOptions) Validate() error {
	if strings.TrimSpace(o.Endpoint.URL) == "" {
		return ErrNoEndpoint
	}
	switch strings.ToUpper(o.Endpoint.Method) {
	case "", http.MethodGet, http.MethodPost:
		return nil
	default:
		return fmt.Errorf("unsupported endpoint method %q", o.Endpoint.Method)
	}
}

var _ PageFetcher = (*Market)(nil)
