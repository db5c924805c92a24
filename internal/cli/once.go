package cli

import (
	"github.com/spf13/cobra"

	"coverwatcher/internal/app"
)

var onceSimulate bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single decision cycle and print the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.OnceOptions{
			Simulate: onceSimulate,
		}
		return getApp().Once(cmd.Context(), opts)
	},
}

func init() {
	onceCmd.Flags().BoolVar(&onceSimulate, "simulate", false, "Skip cover service calls and report would-be positions")
}
