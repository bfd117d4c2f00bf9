package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "itinerary-cli",
	Short: "Reconcile free-text travel updates into trip itineraries",
	Long:  "Turns pasted confirmations, emails and notes into a day-by-day itinerary, merging each update into the trip and asking when an update could mean more than one item.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
