package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"p2pwatch/internal/app"
	"p2pwatch/internal/rawstore"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Process and quote every stored raw day in a range",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, day := range []string{backfillFrom, backfillTo} {
			if day == "" {
				continue
			}
			if _, err := rawstore.ParseDay(day); err != nil {
				return err
			}
		}
		if backfillFrom != "" && backfillTo != "" && backfillFrom > backfillTo {
			return fmt.Errorf("--from must not be after --to")
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			From:   backfillFrom,
			To:     backfillTo,
			DryRun: backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First UTC day (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last UTC day (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "List the days without processing them")
}
