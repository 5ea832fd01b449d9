package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"p2pwatch/internal/rawstore"
)

var processDay string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract offers from a day of raw captures into the processed offer file",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().Process(cmd.Context(), dayOrToday(processDay))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d attempts, %d offers -> %s\n", res.Day, res.Attempts, res.Offers, res.Path)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processDay, "day", "", "UTC day to process (YYYY-MM-DD, defaults to today)")
}

func dayOrToday(day string) string {
	if day != "" {
		return day
	}
	return rawstore.DayOf(time.Now())
}
