package model

import (
	"strings"
	"time"
)

// RawFormatVersion tags every persisted fetch attempt.
const RawFormatVersion = "rawfetch-v1"

// Asset is the traded asset for every offer.
const Asset = "USDT"

// Side is the advertised side of an offer as requested from the marketplace.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) String() string {
	return string(s)
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Direction is the caller's trade intent relative to the asset.
type Direction string

const (
	// Acquire buys the asset with fiat; it is served by SELL-side offers.
	Acquire Direction = "acquire"
	// Dispose sells the asset for fiat; it is served by BUY-side offers.
	Dispose Direction = "dispose"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Acquire || d == Dispose
}

// Market describes one configured listing query.
type Market struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Fiat         string `mapstructure:"fiat" yaml:"fiat"`
	Side         Side   `mapstructure:"side" yaml:"side"`
	EndpointSide string `mapstructure:"endpoint_side" yaml:"endpoint_side"`
}

// FetchAttempt is one recorded request/response round trip. It is immutable once written.
type FetchAttempt struct {
	FormatVersion  string            `json:"format_version"`
	TS             time.Time         `json:"ts_utc"`
	CycleID        string            `json:"cycle_id,omitempty"`
	Market         string            `json:"market"`
	Fiat           string            `json:"fiat"`
	Side           Side              `json:"side"`
	Page           int               `json:"page"`
	RequestURL     string            `json:"request_url"`
	RequestMethod  string            `json:"request_method"`
	RequestHeaders map[string]string `json:"request_headers"`
	RequestBody    map[string]any    `json:"request_body"`
	HTTPStatus     *int              `json:"http_status"`
	ResponseText   *string           `json:"response_text"`
	Error          *string           `json:"error"`
}

// Failed reports whether no response was obtained.
func (a FetchAttempt) Failed() bool {
	return a.Error != nil
}

// Offer is one advertiser's listing observed at one moment.
type Offer struct {
	TS             time.Time
	Asset          string
	Fiat           string
	Side           Side
	Price          float64
	MinFiat        float64
	MaxFiat        float64
	PaymentMethods []string
	IsMerchant     *bool
	Rating         *float64
	AdvertiserKey  *string
	Market         string
	Page           int
}

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-api-key":     {},
	"x-csrf-token":  {},
	"guid":          {},
	"risktoken":     {},
	"traceparent":   {},
}

// IsSensitiveHeader reports whether name belongs to the stripped header set.
func IsSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// SanitizeHeaders returns a copy of headers without credentials or session identifiers.
func SanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSensitiveHeader(k) {
			continue
		}
		out[k] = v
	}
	return out
}
