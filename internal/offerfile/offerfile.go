package offerfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"p2pwatch/internal/model"
)

const parallelism = 4

type offerRecord struct {
	TSUTC          int64    `parquet:"name=ts_utc, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Asset          string   `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fiat           string   `parquet:"name=fiat, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side           string   `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price          float64  `parquet:"name=price_fiat_per_usdt, type=DOUBLE"`
	MinFiat        float64  `parquet:"name=min_fiat, type=DOUBLE"`
	MaxFiat        float64  `parquet:"name=max_fiat, type=DOUBLE"`
	PaymentMethods []string `parquet:"name=payment_methods, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	IsMerchant     *bool    `parquet:"name=is_merchant, type=BOOLEAN, repetitiontype=OPTIONAL"`
	Rating         *float64 `parquet:"name=rating, type=DOUBLE, repetitiontype=OPTIONAL"`
	AdvertiserKey  *string  `parquet:"name=advertiser_key, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Market         string   `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Page           int64    `parquet:"name=page, type=INT64"`
}

// Path is the processed offers file for day under dataDir.
func Path(dataDir, day string) string {
	return filepath.Join(dataDir, "processed", "offers", day+".parquet")
}

// Days lists the processed days under dataDir in ascending order.
func Days(dataDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "processed", "offers", "*.parquet"))
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		days = append(days, base[:len(base)-len(".parquet")])
	}
	return days, nil
}

// Write replaces path with a snappy-compressed file holding offers. The schema is
// written even when offers is empty.
func Write(path string, offers []model.Offer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create offers dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := writeFile(tmp, offers); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename offers file: %w", err)
	}
	return nil
}

func writeFile(path string, offers []model.Offer) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("open offers file: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(offerRecord), parallelism)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, o := range offers {
		if err := pw.Write(toRecord(o)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("write offer: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("finalize offers file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close offers file: %w", err)
	}
	return nil
}

// Read loads every offer stored in path.
func Read(path string) ([]model.Offer, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open offers file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(offerRecord), parallelism)
	if err != nil {
		return nil, fmt.Errorf("new parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n == 0 {
		return []model.Offer{}, nil
	}
	rows := make([]offerRecord, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read offers: %w", err)
	}

	offers := make([]model.Offer, 0, len(rows))
	for _, r := range rows {
		offers = append(offers, fromRecord(r))
	}
	return offers, nil
}

func toRecord(o model.Offer) offerRecord {
	methods := o.PaymentMethods
	if methods == nil {
		methods = []string{}
	}
	asset := o.Asset
	if asset == "" {
		asset = model.Asset
	}
	return offerRecord{
		TSUTC:          o.TS.UTC().UnixMicro(),
		Asset:          asset,
		Fiat:           o.Fiat,
		Side:           o.Side.String(),
		Price:          o.Price,
		MinFiat:        o.MinFiat,
		MaxFiat:        o.MaxFiat,
		PaymentMethods: methods,
		IsMerchant:     o.IsMerchant,
		Rating:         o.Rating,
		AdvertiserKey:  o.AdvertiserKey,
		Market:         o.Market,
		Page:           int64(o.Page),
	}
}

func fromRecord(r offerRecord) model.Offer {
	methods := r.PaymentMethods
	if methods == nil {
		methods = []string{}
	}
	return model.Offer{
		TS:             time.UnixMicro(r.TSUTC).UTC(),
		Asset:          r.Asset,
		Fiat:           r.Fiat,
		Side:           model.Side(r.Side),
		Price:          r.Price,
		MinFiat:        r.MinFiat,
		MaxFiat:        r.MaxFiat,
		PaymentMethods: methods,
		IsMerchant:     r.IsMerchant,
		Rating:         r.Rating,
		AdvertiserKey:  r.AdvertiserKey,
		Market:         r.Market,
		Page:           int(r.Page),
	}
}
