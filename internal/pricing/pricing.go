package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"p2pwatch/internal/model"
)

// Constraints narrow which offers a caller is willing to trade with.
type Constraints struct {
	// PaymentMethods, when non-empty, requires an offer to accept at least one of them.
	PaymentMethods []string
	// MerchantOnly excludes offers whose merchant flag is false or unknown.
	MerchantOnly bool
	// MinRating excludes offers with a known rating below it. Unknown ratings pass.
	MinRating float64
}

// Result is the selected offer and its unit price.
type Result struct {
	Offer model.Offer
	Price decimal.Decimal
}

// Point is the best result of one snapshot.
type Point struct {
	TS     time.Time
	Result Result
}

// Allows reports whether o satisfies every constraint.
func (c Constraints) Allows(o model.Offer) bool {
	if c.MerchantOnly && (o.IsMerchant == nil || !*o.IsMerchant) {
		return false
	}
	if o.Rating != nil && *o.Rating < c.MinRating {
		return false
	}
	if len(c.PaymentMethods) > 0 && !overlaps(o.PaymentMethods, c.PaymentMethods) {
		return false
	}
	return true
}

// Executable reports whether o can serve amount in the given direction. For Acquire,
// amount is fiat; for Dispose it is an asset quantity converted at the offer's price.
func Executable(o model.Offer, direction model.Direction, amount decimal.Decimal) bool {
	var fiat decimal.Decimal
	switch direction {
	case model.Acquire:
		if o.Side != model.SideSell {
			return false
		}
		fiat = amount
	case model.Dispose:
		if o.Side != model.SideBuy {
			return false
		}
		fiat = amount.Mul(decimal.NewFromFloat(o.Price))
	default:
		return false
	}
	lo := decimal.NewFromFloat(o.MinFiat)
	hi := decimal.NewFromFloat(o.MaxFiat)
	return fiat.GreaterThanOrEqual(lo) && fiat.LessThanOrEqual(hi)
}

// Eligible keeps the offers that pass constraints and are executable, in input order.
func Eligible(offers []model.Offer, direction model.Direction, amount decimal.Decimal, c Constraints) []model.Offer {
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if !c.Allows(o) || !Executable(o, direction, amount) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// BestSingle selects the cheapest eligible SELL offer when acquiring and the highest
// eligible BUY offer when disposing. Ties keep the first encountered.
func BestSingle(offers []model.Offer, direction model.Direction, amount decimal.Decimal, c Constraints) (Result, bool) {
	return pick(Eligible(offers, direction, amount, c), direction)
}

// BestLatest is BestSingle restricted to the newest snapshot among eligible offers.
func BestLatest(offers []model.Offer, direction model.Direction, amount decimal.Decimal, c Constraints) (Result, bool) {
	return pick(LatestSnapshot(Eligible(offers, direction, amount, c)), direction)
}

// BestPerSnapshot returns the best eligible offer of every observation timestamp, oldest first.
func BestPerSnapshot(offers []model.Offer, direction model.Direction, amount decimal.Decimal, c Constraints) []Point {
	groups := map[int64][]model.Offer{}
	var order []int64
	for _, o := range Eligible(offers, direction, amount, c) {
		key := o.TS.UnixMicro()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], o)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	points := make([]Point, 0, len(order))
	for _, key := range order {
		if res, ok := pick(groups[key], direction); ok {
			points = append(points, Point{TS: res.Offer.TS, Result: res})
		}
	}
	return points
}

// LatestSnapshot returns the offers sharing the newest observation timestamp.
func LatestSnapshot(offers []model.Offer) []model.Offer {
	if len(offers) == 0 {
		return nil
	}
	latest := offers[0].TS
	for _, o := range offers[1:] {
		if o.TS.After(latest) {
			latest = o.TS
		}
	}
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.TS.Equal(latest) {
			out = append(out, o)
		}
	}
	return out
}

// Filter keeps offers of the given fiat and side.
func Filter(offers []model.Offer, fiat string, side model.Side) []model.Offer {
	out := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Fiat == fiat && o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

// SideFor is the offer side that serves a direction.
func SideFor(direction model.Direction) model.Side {
	if direction == model.Dispose {
		return model.SideBuy
	}
	return model.SideSell
}

func pick(candidates []model.Offer, direction model.Direction) (Result, bool) {
	var (
		best  Result
		found bool
	)
	for _, o := range candidates {
		price := decimal.NewFromFloat(o.Price)
		if !found || better(price, best.Price, direction) {
			best = Result{Offer: o, Price: price}
			found = true
		}
	}
	return best, found
}

func better(candidate, current decimal.Decimal, direction model.Direction) bool {
	if direction == model.Dispose {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}

func overlaps(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
