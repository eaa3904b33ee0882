package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"klinevault/config"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the symbol universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		list, err := a.universe(cmd.Context(), args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range list {
			fmt.Fprintf(out, "%s\t%s\n", s.Name, s.OnboardDate.Format(config.DateLayout))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
}
