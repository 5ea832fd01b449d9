package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"p2pwatch/internal/app"
	"p2pwatch/internal/model"
)

var (
	bestDay          string
	bestDirection    string
	bestFiat         string
	bestAmount       float64
	bestPayments     []string
	bestMerchantOnly bool
	bestMinRating    float64
	bestAll          bool
)

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Find the best executable offer for a trade",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bestAmount <= 0 {
			return errors.New("--amount must be greater than zero")
		}
		direction := model.Direction(bestDirection)
		if !direction.Valid() {
			return fmt.Errorf("--direction must be acquire or dispose, got %q", bestDirection)
		}

		_, _, err := getApp().Best(cmd.Context(), app.BestOptions{
			Day:            dayOrToday(bestDay),
			Direction:      direction,
			Fiat:           bestFiat,
			Amount:         decimal.NewFromFloat(bestAmount),
			PaymentMethods: bestPayments,
			MerchantOnly:   bestMerchantOnly,
			MinRating:      bestMinRating,
			AllSnapshots:   bestAll,
		})
		return err
	},
}

func init() {
	bestCmd.Flags().StringVar(&bestDay, "day", "", "Processed UTC day (YYYY-MM-DD, defaults to today)")
	bestCmd.Flags().StringVar(&bestDirection, "direction", string(model.Acquire), "acquire (buy USDT with fiat) or dispose (sell USDT for fiat)")
	bestCmd.Flags().StringVar(&bestFiat, "fiat", "", "Restrict to one fiat currency")
	bestCmd.Flags().Float64Var(&bestAmount, "amount", 0, "Fiat amount to spend when acquiring, USDT amount when disposing")
	bestCmd.Flags().StringSliceVar(&bestPayments, "payment", nil, "Accepted payment methods (repeatable)")
	bestCmd.Flags().BoolVar(&bestMerchantOnly, "merchant-only", false, "Only consider merchant advertisers")
	bestCmd.Flags().Float64Var(&bestMinRating, "min-rating", 0, "Minimum advertiser rating")
	bestCmd.Flags().BoolVar(&bestAll, "all-snapshots", false, "Search every snapshot of the day instead of the newest")
}
