package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"p2pwatch/internal/storage"
)

// Show prints recent samples, or recent alerts when requested.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		printAlerts(a.Out, alerts)
		return nil
	}

	samples, err := store.ListRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	printSamples(a.Out, samples)
	return nil
}

func printSamples(out io.Writer, samples []storage.QuoteSample) {
	if len(samples) == 0 {
		fmt.Fprintln(out, "no samples found")
		return
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tAcquire\tDispose\tCross\tOffers\tStatus\tError")

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = sanitizeInline(*sample.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s/%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.AcquireFiat,
			sample.DisposeFiat,
			formatNullDecimal(sample.AcquirePrice, 4),
			formatNullDecimal(sample.DisposePrice, 4),
			formatNullDecimal(sample.CrossRate, 4),
			sample.AcquireOffers,
			sample.DisposeOffers,
			sample.Status,
			errMsg,
		)
	}
	writer.Flush()
}

func printAlerts(out io.Writer, alerts []storage.AlertRecord) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tBucket\tPair\tCross\tThreshold\tChannels")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s/%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.SampleTS.UTC().Format(time.RFC3339),
			alert.AcquireFiat,
			alert.DisposeFiat,
			alert.CrossRate.StringFixed(4),
			alert.Threshold.StringFixed(4),
			strings.Join(alert.Channels, ","),
		)
	}
	writer.Flush()
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
