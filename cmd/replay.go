package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"klinevault/internal/source"
	"klinevault/internal/symbols"
)

var (
	replaySymbol    string
	replayTimeframe string
	replayLookback  int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay stored bars as sliding windows",
	Long: `Replay a stored table as windows of --lookback bars and print the newest bar of each.
    ex) klinevault replay --symbol BTCUSDT --timeframe 1h --lookback 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}

		events := make(chan source.Event, 64)
		src := source.NewStoreSource(a.store, symbols.Normalize(replaySymbol), replayTimeframe, events)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return src.Start(ctx, replayLookback) })
		g.Go(func() error {
			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					if ev.Kind == source.Stop {
						return nil
					}
					last, _ := ev.Window.Last()
					fmt.Fprintf(out, "%s\t%g\t%g\n", last.OpenTime.Format("2006-01-02T15:04:05Z"), last.Close, last.CumReturn)
				}
			}
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySymbol, "symbol", "", "Symbol to replay")
	replayCmd.Flags().StringVarP(&replayTimeframe, "timeframe", "t", "", "Timeframe (default: canonical table)")
	replayCmd.Flags().IntVarP(&replayLookback, "lookback", "l", 1, "Bars per window")
	_ = replayCmd.MarkFlagRequired("symbol")
}
