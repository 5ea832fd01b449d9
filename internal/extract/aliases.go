package extract

// Ordered alias keys per canonical field. The first key present with a non-null value wins.
var (
	PriceKeys      = []string{"price", "unitPrice", "priceValue", "rate", "unit_price"}
	MinKeys        = []string{"minAmount", "minFiat", "minOrderAmount", "min", "min_amount"}
	MaxKeys        = []string{"maxAmount", "maxFiat", "maxOrderAmount", "max", "max_amount"}
	PaymentKeys    = []string{"payment", "payments", "paymentMethods", "payment_methods", "payMethods"}
	MerchantKeys   = []string{"isMerchant", "merchant", "is_merchant"}
	RatingKeys     = []string{"rating", "userRating", "user_rating", "score"}
	AdvertiserKeys = []string{"userId", "uid", "advertiserId", "advertiser_id", "nickName", "nickname"}
)

// Sub-objects consulted before the item itself.
var (
	advertisementKeys = []string{"adv", "advertisement"}
	advertiserKeys    = []string{"advertiser", "user"}
)

// Fields read from a payment method object, in priority order.
var paymentNameKeys = []string{"name", "paymentMethodName", "identifier", "id", "key"}

// Containers under "result" tried before the tree search.
var wellKnownListKeys = []string{"items", "data", "list", "rows"}
