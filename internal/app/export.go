package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"p2pwatch/internal/storage"
)

// Export renders quote history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Quote.Bucket)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			if errors.Is(err, errTooFewPoints) {
				a.Logger.Warn().Msg("not enough complete samples to chart")
				return nil
			}
			return err
		}
	}

	return nil
}

var errTooFewPoints = errors.New("at least two complete samples are required")

func downsampleSamples(samples []storage.QuoteSample, max int) []storage.QuoteSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.QuoteSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.QuoteSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"bucket_ts", "acquire_fiat", "dispose_fiat", "acquire_price", "dispose_price", "cross_rate", "acquire_offers", "dispose_offers", "status", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = *sample.Error
		}
		record := []string{
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.AcquireFiat,
			sample.DisposeFiat,
			nullDecimalString(sample.AcquirePrice),
			nullDecimalString(sample.DisposePrice),
			nullDecimalString(sample.CrossRate),
			strconv.Itoa(sample.AcquireOffers),
			strconv.Itoa(sample.DisposeOffers),
			sample.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.QuoteSample) error {
	var (
		x       []time.Time
		cross   []float64
		acquire []float64
	)
	for _, sample := range samples {
		if !sample.CrossRate.Valid {
			continue
		}
		x = append(x, sample.Bucket)
		cross = append(cross, sample.CrossRate.Decimal.InexactFloat64())
		acquire = append(acquire, sample.AcquirePrice.Decimal.InexactFloat64())
	}
	if len(x) < 2 {
		return errTooFewPoints
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	pair := samples[0].AcquireFiat + "/" + samples[0].DisposeFiat
	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Cross rate (" + pair + ")",
			ValueFormatter: rateFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Acquire price (" + samples[0].AcquireFiat + "/USDT)",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Cross rate",
				XValues: x,
				YValues: cross,
			},
			chart.TimeSeries{
				Name:    "Acquire price",
				XValues: x,
				YValues: acquire,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
