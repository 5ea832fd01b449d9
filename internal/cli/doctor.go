package cli

import (
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Print the effective configuration and data status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Doctor(cmd.Context())
	},
}
