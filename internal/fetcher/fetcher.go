package fetcher

import (
	"context"

	"p2pwatch/internal/model"
)

// PageFetcher retrieves one listing page for a market. It never fails: transport
// errors are reported inside the returned attempt.
type PageFetcher interface {
	FetchPage(ctx context.Context, market model.Market, page int) model.FetchAttempt
}
