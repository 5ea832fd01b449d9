package cli

import (
	"github.com/spf13/cobra"
)

var quoteDay string

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Evaluate bucketed two-leg quotes for a processed day",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Quote(cmd.Context(), dayOrToday(quoteDay))
		return err
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteDay, "day", "", "Processed UTC day (YYYY-MM-DD, defaults to today)")
}
