package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"klinevault/internal/sanitizer"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize FILE...",
	Short: "Repair raw kline CSV files in place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			res, err := sanitizer.RepairWithResult(path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s\terror: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "%s\tkept=%d dropped=%d header_inserted=%t\n", path, res.Kept, res.Dropped, res.HeaderInserted)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be repaired", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)
}
