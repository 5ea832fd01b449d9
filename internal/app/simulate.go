package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"p2pwatch/internal/model"
)

// SimulateAlert 用给定的买入/卖出价格构造一个合成时间桶，走完整的报价与告警流程。
func (a *App) SimulateAlert(ctx context.Context, acquirePrice, disposePrice decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	q := a.Config.Quote
	ts := time.Now().UTC()
	disposeFiat := decimal.NewFromFloat(q.Dispose.Amount).Mul(disposePrice).InexactFloat64()
	offers := []model.Offer{
		{
			TS: ts, Asset: model.Asset, Fiat: q.Acquire.Fiat, Side: model.SideSell,
			Price: acquirePrice.InexactFloat64(), MinFiat: 0, MaxFiat: q.Acquire.Amount * 2,
			PaymentMethods: q.Acquire.PaymentMethods, Market: "simulated",
		},
		{
			TS: ts, Asset: model.Asset, Fiat: q.Dispose.Fiat, Side: model.SideBuy,
			Price: disposePrice.InexactFloat64(), MinFiat: 0, MaxFiat: disposeFiat * 2,
			PaymentMethods: q.Dispose.PaymentMethods, Market: "simulated",
		},
	}
	merchant := true
	for i := range offers {
		offers[i].IsMerchant = &merchant
	}

	svc := a.newService(nil, notifier, nil)
	samples, err := svc.Evaluate(ctx, offers)
	if err != nil {
		return err
	}
	printSamples(a.Out, samples)
	return nil
}
