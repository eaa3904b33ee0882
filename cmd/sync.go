package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"klinevault/internal/orchestrator"
)

var (
	syncSymbols []string
	syncForce   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch archives and rebuild the store",
	Long: `Fetch missing archive partitions and rebuild canonical and resampled tables.
    ex) klinevault sync --symbols BTCUSDT,ETHUSDT --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, syncForce)
		if err != nil {
			return err
		}
		report, err := a.syncOnce(cmd.Context(), syncSymbols)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d symbols failed: %s", len(report.Failed), report.Total(), orchestrator.FailedSummary(report.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringSliceVarP(&syncSymbols, "symbols", "s", nil, "Symbols to sync (default: whole universe)")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Rebuild artifacts even when they are current")
}
