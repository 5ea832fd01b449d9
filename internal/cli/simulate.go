package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateAcquire float64
	simulateDispose float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次交叉汇率并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAcquire <= 0 || simulateDispose <= 0 {
			return errors.New("--acquire 与 --dispose 必须大于 0")
		}

		return getApp().SimulateAlert(cmd.Context(), decimal.NewFromFloat(simulateAcquire), decimal.NewFromFloat(simulateDispose))
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateAcquire, "acquire", 0, "买入腿价格 (法币/USDT)")
	simulateCmd.Flags().Float64Var(&simulateDispose, "dispose", 0, "卖出腿价格 (法币/USDT)")
}
