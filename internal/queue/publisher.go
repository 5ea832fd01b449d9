package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"p2pwatch/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type offerMessage struct {
	TS             time.Time  `json:"ts_utc"`
	Asset          string     `json:"asset"`
	Fiat           string     `json:"fiat"`
	Side           model.Side `json:"side"`
	Price          float64    `json:"price_fiat_per_usdt"`
	MinFiat        float64    `json:"min_fiat"`
	MaxFiat        float64    `json:"max_fiat"`
	PaymentMethods []string   `json:"payment_methods"`
	IsMerchant     *bool      `json:"is_merchant"`
	Rating         *float64   `json:"rating"`
	AdvertiserKey  *string    `json:"advertiser_key"`
	Market         string     `json:"market"`
	Page           int        `json:"page"`
}

// PublishOffers writes one message per offer keyed by market, page and timestamp.
func PublishOffers(ctx context.Context, writer MessageWriter, offers []model.Offer) error {
	if writer == nil || len(offers) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(offers))
	for _, o := range offers {
		payload, err := json.Marshal(offerMessage{
			TS:             o.TS.UTC(),
			Asset:          o.Asset,
			Fiat:           o.Fiat,
			Side:           o.Side,
			Price:          o.Price,
			MinFiat:        o.MinFiat,
			MaxFiat:        o.MaxFiat,
			PaymentMethods: o.PaymentMethods,
			IsMerchant:     o.IsMerchant,
			Rating:         o.Rating,
			AdvertiserKey:  o.AdvertiserKey,
			Market:         o.Market,
			Page:           o.Page,
		})
		if err != nil {
			return fmt.Errorf("marshal offer %s/%d: %w", o.Market, o.Page, err)
		}
		key := fmt.Sprintf("%s-%d-%d", o.Market, o.Page, o.TS.UnixNano())
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: payload})
	}
	return writer.WriteMessages(ctx, msgs...)
}

// NewWriter builds a Kafka writer for the offer topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

var _ MessageWriter = (*kafka.Writer)(nil)
