package offerfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestWriteReadRoundTrip(t *testing.T) {
	path := Path(t.TempDir(), "2025-03-01")
	ts := time.Date(2025, 3, 1, 10, 30, 15, 123456000, time.UTC)

	offers := []model.Offer{
		{
			TS: ts, Asset: model.Asset, Fiat: "RUB", Side: model.SideSell,
			Price: 92.37, MinFiat: 1000, MaxFiat: 250000.5,
			PaymentMethods: []string{"Tinkoff", "SBP"},
			IsMerchant:     ptr(true), Rating: ptr(98.5), AdvertiserKey: ptr("u-77"),
			Market: "rub_sell", Page: 3,
		},
		{
			TS: ts, Asset: model.Asset, Fiat: "VND", Side: model.SideBuy,
			Price: 24810, MinFiat: 500000, MaxFiat: 20000000,
			PaymentMethods: []string{},
			Market:         "vnd_buy", Page: 1,
		},
	}

	require.NoError(t, Write(path, offers))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range offers {
		want := offers[i]
		have := got[i]
		assert.True(t, want.TS.Equal(have.TS))
		assert.Equal(t, want.Asset, have.Asset)
		assert.Equal(t, want.Fiat, have.Fiat)
		assert.Equal(t, want.Side, have.Side)
		assert.InDelta(t, want.Price, have.Price, 1e-9)
		assert.InDelta(t, want.MinFiat, have.MinFiat, 1e-9)
		assert.InDelta(t, want.MaxFiat, have.MaxFiat, 1e-9)
		assert.Equal(t, want.PaymentMethods, have.PaymentMethods)
		assert.Equal(t, want.IsMerchant, have.IsMerchant)
		assert.Equal(t, want.Rating, have.Rating)
		assert.Equal(t, want.AdvertiserKey, have.AdvertiserKey)
		assert.Equal(t, want.Market, have.Market)
		assert.Equal(t, want.Page, have.Page)
	}
}

func TestWriteEmptyDayKeepsSchema(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "2025-03-02")

	require.NoError(t, Write(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	days, err := Days(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-02"}, days)
}

func TestWriteReplacesExistingFile(t *testing.T) {
	path := Path(t.TempDir(), "2025-03-03")
	o := model.Offer{TS: time.Now().UTC(), Fiat: "RUB", Side: model.SideSell, Price: 1, MinFiat: 1, MaxFiat: 2, Market: "rub_sell", Page: 1}

	require.NoError(t, Write(path, []model.Offer{o, o}))
	require.NoError(t, Write(path, []model.Offer{o}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, model.Asset, got[0].Asset)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.parquet"))
	assert.Error(t, err)
}
