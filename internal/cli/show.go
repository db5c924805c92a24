package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"coverwatcher/internal/app"
)

var (
	showLimit     int
	showMovements bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent decision cycles or cover movements",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:     showLimit,
			Movements: showMovements,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showMovements, "movements", false, "Show recorded cover movements instead of cycles")
}
