package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pwatch/internal/model"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func sellOffer(price, lo, hi float64, methods ...string) model.Offer {
	return model.Offer{TS: t0, Asset: model.Asset, Fiat: "RUB", Side: model.SideSell, Price: price, MinFiat: lo, MaxFiat: hi, PaymentMethods: methods}
}

func buyOffer(price, lo, hi float64, methods ...string) model.Offer {
	return model.Offer{TS: t0, Asset: model.Asset, Fiat: "VND", Side: model.SideBuy, Price: price, MinFiat: lo, MaxFiat: hi, PaymentMethods: methods}
}

func ptr[T any](v T) *T { return &v }

func TestBestSingleAcquirePicksMinimum(t *testing.T) {
	offers := []model.Offer{
		sellOffer(3.1, 100, 10000),
		sellOffer(2.9, 100, 10000),
		sellOffer(3.0, 100, 10000),
	}
	res, ok := BestSingle(offers, model.Acquire, decimal.NewFromInt(500), Constraints{})
	require.True(t, ok)
	assert.Equal(t, "2.9", res.Price.String())
	assert.Equal(t, 2.9, res.Offer.Price)
}

func TestBestSingleDisposePicksMaximum(t *testing.T) {
	offers := []model.Offer{
		buyOffer(24500, 1_000_000, 50_000_000),
		buyOffer(24800, 1_000_000, 50_000_000),
		buyOffer(24600, 1_000_000, 50_000_000),
	}
	res, ok := BestSingle(offers, model.Dispose, decimal.NewFromInt(500), Constraints{})
	require.True(t, ok)
	assert.Equal(t, "24800", res.Price.String())
}

func TestBestSingleIgnoresWrongSide(t *testing.T) {
	offers := []model.Offer{buyOffer(1, 0, 1e9), sellOffer(2, 0, 1e9)}

	res, ok := BestSingle(offers, model.Acquire, decimal.NewFromInt(10), Constraints{})
	require.True(t, ok)
	assert.Equal(t, model.SideSell, res.Offer.Side)

	res, ok = BestSingle(offers, model.Dispose, decimal.NewFromInt(10), Constraints{})
	require.True(t, ok)
	assert.Equal(t, model.SideBuy, res.Offer.Side)
}

func TestBestSingleAbsentWhenAmountOutsideWindows(t *testing.T) {
	offers := []model.Offer{sellOffer(90, 1000, 5000), sellOffer(91, 6000, 9000)}
	_, ok := BestSingle(offers, model.Acquire, decimal.NewFromInt(5500), Constraints{})
	assert.False(t, ok)

	// Dispose converts the asset quantity at the offer's own price: 10 * 25000 = 250000.
	buys := []model.Offer{buyOffer(25000, 300_000, 1_000_000)}
	_, ok = BestSingle(buys, model.Dispose, decimal.NewFromInt(10), Constraints{})
	assert.False(t, ok)
	_, ok = BestSingle(buys, model.Dispose, decimal.NewFromInt(12), Constraints{})
	assert.True(t, ok)
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	o := sellOffer(90, 1000, 5000)
	assert.True(t, Executable(o, model.Acquire, decimal.NewFromInt(1000)))
	assert.True(t, Executable(o, model.Acquire, decimal.NewFromInt(5000)))
	assert.False(t, Executable(o, model.Acquire, decimal.RequireFromString("5000.01")))

	// 0.1 * 30 must land exactly on the bound.
	b := buyOffer(30, 3, 10)
	assert.True(t, Executable(b, model.Dispose, decimal.RequireFromString("0.1")))
}

func TestBestSingleAbsentWithoutPaymentOverlap(t *testing.T) {
	offers := []model.Offer{sellOffer(90, 0, 1e6, "Tinkoff"), sellOffer(91, 0, 1e6, "Sber")}
	_, ok := BestSingle(offers, model.Acquire, decimal.NewFromInt(100), Constraints{PaymentMethods: []string{"Cash"}})
	assert.False(t, ok)

	res, ok := BestSingle(offers, model.Acquire, decimal.NewFromInt(100), Constraints{PaymentMethods: []string{"Sber", "Cash"}})
	require.True(t, ok)
	assert.Equal(t, 91.0, res.Offer.Price)
}

func TestConstraints(t *testing.T) {
	unknown := sellOffer(1, 0, 1)
	merchant := sellOffer(1, 0, 1)
	merchant.IsMerchant = ptr(true)
	notMerchant := sellOffer(1, 0, 1)
	notMerchant.IsMerchant = ptr(false)

	only := Constraints{MerchantOnly: true}
	assert.True(t, only.Allows(merchant))
	assert.False(t, only.Allows(notMerchant))
	assert.False(t, only.Allows(unknown))

	rated := sellOffer(1, 0, 1)
	rated.Rating = ptr(4.2)
	minRating := Constraints{MinRating: 4.5}
	assert.False(t, minRating.Allows(rated))
	assert.True(t, minRating.Allows(unknown))
	assert.True(t, Constraints{MinRating: 4.2}.Allows(rated))
}

func TestBestSingleTieKeepsFirst(t *testing.T) {
	a := sellOffer(90, 0, 1e6)
	a.AdvertiserKey = ptr("first")
	b := sellOffer(90, 0, 1e6)
	b.AdvertiserKey = ptr("second")

	res, ok := BestSingle([]model.Offer{a, b}, model.Acquire, decimal.NewFromInt(1), Constraints{})
	require.True(t, ok)
	assert.Equal(t, "first", *res.Offer.AdvertiserKey)
}

func TestBestSingleUnknownDirection(t *testing.T) {
	_, ok := BestSingle([]model.Offer{sellOffer(1, 0, 10)}, model.Direction("hold"), decimal.NewFromInt(1), Constraints{})
	assert.False(t, ok)
}

func TestLatestSnapshotAndHistory(t *testing.T) {
	older := sellOffer(95, 0, 1e6)
	older.TS = t0.Add(-time.Minute)
	newer1 := sellOffer(92, 0, 1e6)
	newer2 := sellOffer(91, 0, 1e6)
	cheapButOld := sellOffer(80, 0, 1e6)
	cheapButOld.TS = t0.Add(-time.Minute)

	offers := []model.Offer{newer1, older, cheapButOld, newer2}

	snap := LatestSnapshot(offers)
	assert.Len(t, snap, 2)

	res, ok := BestLatest(offers, model.Acquire, decimal.NewFromInt(10), Constraints{})
	require.True(t, ok)
	assert.Equal(t, 91.0, res.Offer.Price)

	points := BestPerSnapshot(offers, model.Acquire, decimal.NewFromInt(10), Constraints{})
	require.Len(t, points, 2)
	assert.True(t, points[0].TS.Equal(t0.Add(-time.Minute)))
	assert.Equal(t, "80", points[0].Result.Price.String())
	assert.Equal(t, "91", points[1].Result.Price.String())

	assert.Nil(t, LatestSnapshot(nil))
}

func TestFilterAndSideFor(t *testing.T) {
	offers := []model.Offer{sellOffer(1, 0, 1), buyOffer(2, 0, 1)}
	assert.Len(t, Filter(offers, "RUB", model.SideSell), 1)
	assert.Empty(t, Filter(offers, "RUB", model.SideBuy))
	assert.Equal(t, model.SideSell, SideFor(model.Acquire))
	assert.Equal(t, model.SideBuy, SideFor(model.Dispose))
}
