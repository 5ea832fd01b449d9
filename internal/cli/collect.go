package cli

import (
	"github.com/spf13/cobra"
)

var collectOnce bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch every page of every configured market into the raw store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Collect(cmd.Context(), collectOnce)
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectOnce, "once", false, "Run a single collection cycle and exit")
}
