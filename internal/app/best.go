package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"p2pwatch/internal/pricing"
)

// Best prints the best executable offer of a processed day.
func (a *App) Best(_ context.Context, opts BestOptions) (pricing.Result, bool, error) {
	if !opts.Direction.Valid() {
		return pricing.Result{}, false, fmt.Errorf("direction must be acquire or dispose, got %q", opts.Direction)
	}
	if !opts.Amount.IsPositive() {
		return pricing.Result{}, false, errors.New("amount must be greater than zero")
	}

	offers, err := a.loadOffers(opts.Day)
	if err != nil {
		return pricing.Result{}, false, err
	}
	if opts.Fiat != "" {
		offers = pricing.Filter(offers, opts.Fiat, pricing.SideFor(opts.Direction))
	}

	c := pricing.Constraints{
		PaymentMethods: opts.PaymentMethods,
		MerchantOnly:   opts.MerchantOnly,
		MinRating:      opts.MinRating,
	}

	var (
		res   pricing.Result
		found bool
	)
	if opts.AllSnapshots {
		res, found = pricing.BestSingle(offers, opts.Direction, opts.Amount, c)
	} else {
		res, found = pricing.BestLatest(offers, opts.Direction, opts.Amount, c)
	}

	if !found {
		fmt.Fprintln(a.Out, "no executable offer")
		return pricing.Result{}, false, nil
	}

	o := res.Offer
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (UTC)\t%s\n", o.TS.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Market\t%s (page %d)\n", o.Market, o.Page)
	fmt.Fprintf(writer, "Price\t%s %s/%s\n", res.Price.String(), o.Fiat, o.Asset)
	fmt.Fprintf(writer, "Limits\t%g - %g %s\n", o.MinFiat, o.MaxFiat, o.Fiat)
	fmt.Fprintf(writer, "Payments\t%s\n", strings.Join(o.PaymentMethods, ", "))
	if o.AdvertiserKey != nil {
		fmt.Fprintf(writer, "Advertiser\t%s\n", *o.AdvertiserKey)
	}
	writer.Flush()
	return res, true, nil
}
