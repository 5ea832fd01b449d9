package extract

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"p2pwatch/internal/model"
)

// Extractor turns stored fetch attempts into canonical offers.
type Extractor struct {
	policy Policy
	logger zerolog.Logger
}

// New constructs an Extractor. A zero policy behaves like DefaultPolicy.
func New(policy Policy, logger zerolog.Logger) *Extractor {
	return &Extractor{
		policy: policy.normalized(),
		logger: logger.With().Str("component", "extractor").Logger(),
	}
}

// ExtractOffers returns the offers found in the attempt's response body. Malformed input
// yields no offers; items missing a price or either bound are dropped.
func (e *Extractor) ExtractOffers(attempt model.FetchAttempt) []model.Offer {
	if attempt.ResponseText == nil || *attempt.ResponseText == "" {
		return nil
	}
	body := *attempt.ResponseText
	if !gjson.Valid(body) {
		e.logger.Debug().Str("market", attempt.Market).Int("page", attempt.Page).Msg("response body is not json")
		return nil
	}

	items, ok := FindOfferList(gjson.Parse(body), e.policy)
	if !ok {
		e.logger.Debug().Str("market", attempt.Market).Int("page", attempt.Page).Msg("no offer list found")
		return nil
	}

	offers := make([]model.Offer, 0, len(items))
	dropped := 0
	for _, item := range items {
		offer, ok := mapItem(item)
		if !ok {
			dropped++
			continue
		}
		offer.TS = attempt.TS.UTC()
		offer.Asset = model.Asset
		offer.Fiat = attempt.Fiat
		offer.Side = attempt.Side
		offer.Market = attempt.Market
		offer.Page = attempt.Page
		offers = append(offers, offer)
	}

	if dropped > 0 {
		e.logger.Debug().
			Str("market", attempt.Market).
			Int("page", attempt.Page).
			Int("dropped", dropped).
			Msg("items missing required fields")
	}
	return offers
}

// ExtractOffers runs the default extractor without logging.
func ExtractOffers(attempt model.FetchAttempt) []model.Offer {
	return New(DefaultPolicy(), zerolog.Nop()).ExtractOffers(attempt)
}

// fields is an item viewed through its preferred sub-object.
type fields struct {
	primary   map[string]gjson.Result
	secondary map[string]gjson.Result
}

func (f fields) first(keys []string) (gjson.Result, bool) {
	if v, ok := firstPresent(f.primary, keys); ok {
		return v, true
	}
	return firstPresent(f.secondary, keys)
}

func mapItem(item gjson.Result) (model.Offer, bool) {
	top := item.Map()
	adv := fields{primary: subObject(top, advertisementKeys), secondary: top}
	who := fields{primary: subObject(top, advertiserKeys), secondary: top}

	price, ok := numberField(adv, PriceKeys)
	if !ok {
		return model.Offer{}, false
	}
	minFiat, ok := numberField(adv, MinKeys)
	if !ok {
		return model.Offer{}, false
	}
	maxFiat, ok := numberField(adv, MaxKeys)
	if !ok {
		return model.Offer{}, false
	}

	offer := model.Offer{
		Price:          price,
		MinFiat:        minFiat,
		MaxFiat:        maxFiat,
		PaymentMethods: paymentMethods(adv),
	}

	if v, ok := who.first(MerchantKeys); ok {
		offer.IsMerchant = merchantFlag(v)
	}
	if v, ok := who.first(RatingKeys); ok {
		if r, ok := ParseNumber(v); ok {
			offer.Rating = &r
		}
	}
	if v, ok := who.first(AdvertiserKeys); ok {
		offer.AdvertiserKey = advertiserKey(v)
	}
	return offer, true
}

func numberField(f fields, keys []string) (float64, bool) {
	v, ok := f.first(keys)
	if !ok {
		return 0, false
	}
	return ParseNumber(v)
}

func subObject(top map[string]gjson.Result, keys []string) map[string]gjson.Result {
	for _, k := range keys {
		if v, ok := top[k]; ok && v.IsObject() {
			return v.Map()
		}
	}
	return nil
}

func firstPresent(obj map[string]gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// paymentMethods accepts a list of names, a list of objects or an object keyed by method.
func paymentMethods(f fields) []string {
	methods := []string{}
	raw, ok := f.first(PaymentKeys)
	if !ok {
		return methods
	}

	seen := map[string]struct{}{}
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		methods = append(methods, name)
	}

	switch {
	case raw.IsArray():
		for _, elem := range raw.Array() {
			switch {
			case elem.Type == gjson.String:
				add(elem.Str)
			case elem.IsObject():
				obj := elem.Map()
				for _, k := range paymentNameKeys {
					if v, ok := obj[k]; ok && truthy(v) {
						add(scalarString(v))
						break
					}
				}
			}
		}
	case raw.IsObject():
		raw.ForEach(func(key, _ gjson.Result) bool {
			add(key.String())
			return true
		})
	}
	return methods
}

// merchantFlag returns nil when the value does not clearly state a yes or no.
func merchantFlag(v gjson.Result) *bool {
	var b bool
	switch v.Type {
	case gjson.True:
		b = true
	case gjson.False:
		b = false
	case gjson.Number:
		b = v.Num != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "1", "yes":
			b = true
		case "false", "0", "no":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

func advertiserKey(v gjson.Result) *string {
	switch v.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		s := scalarString(v)
		if s == "" {
			return nil
		}
		return &s
	default:
		return nil
	}
}

func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return strings.TrimSpace(v.Raw)
	default:
		return v.String()
	}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True:
		return true
	default:
		return false
	}
}
