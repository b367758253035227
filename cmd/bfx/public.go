package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/bfx/pkg/client"
)

var publicCmd = &cobra.Command{
	Use:   "public",
	Short: "Exchange-wide public data",
}

func init() {
	publicCmd.AddCommand(platformStatusCmd, availPairsCmd, availCurrenciesCmd,
		exRateCmd, derivStatusCmd, statCmd, fundingStatsCmd)

	statCmd.Flags().StringVar(&statKey, "key", "", "pos.size, funding.size, credits.size, credits.size.sym, vol.1d, vol.7d, vol.30d or vwap")
	statCmd.Flags().StringVar(&statSidePair, "side-pair", "", "trading pair for credits.size.sym (default tBTCUSD)")
	statCmd.Flags().BoolVar(&statShort, "short", false, "short side for pos.size")
	_ = statCmd.MarkFlagRequired("key")
	statHistory.register(statCmd)
	fundingStatsHistory.register(fundingStatsCmd)
}

var platformStatusCmd = &cobra.Command{
	Use:   "platform-status",
	Short: "Show whether the platform is operative",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		st, err := c.PlatformStatus(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, st, func(w io.Writer) {
			if st.Operative {
				row(w, "operative")
			} else {
				row(w, "maintenance")
			}
		})
	},
}

var availPairsCmd = &cobra.Command{
	Use:   "avail-pairs",
	Short: "List the exchange's trading pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		pairs, err := c.ExchangePairs(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, pairs, func(w io.Writer) {
			for _, p := range pairs {
				row(w, p)
			}
		})
	},
}

var availCurrenciesCmd = &cobra.Command{
	Use:   "avail-currencies",
	Short: "List the exchange's currencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		ccys, err := c.Currencies(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, ccys, func(w io.Writer) {
			for _, ccy := range ccys {
				row(w, ccy)
			}
		})
	},
}

var exRateCmd = &cobra.Command{
	Use:     "ex-rate FROM TO",
	Short:   "Show the exchange rate between two currencies",
	Example: "  bfx public ex-rate BTC USD",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		rate, err := c.ExchangeRate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		out := map[string]any{"from": args[0], "to": args[1], "rate": rate}
		return render(cmd, out, func(w io.Writer) {
			row(w, "FROM", "TO", "RATE")
			row(w, args[0], args[1], rate)
		})
	},
}

var derivStatusCmd = &cobra.Command{
	Use:     "deriv-status KEYS",
	Short:   "Show derivatives status for comma-separated keys, or ALL",
	Example: "  bfx public deriv-status tBTCF0:USTF0,tETHF0:USTF0",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		st, err := c.DerivativesStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, st, func(w io.Writer) {
			row(w, "KEY", "TIME", "DERIV PRICE", "SPOT PRICE", "MARK PRICE", "FUNDING", "OPEN INTEREST")
			for _, s := range st {
				row(w, s.Key, s.Time, s.DerivPrice, s.SpotPrice, s.MarkPrice, s.CurrentFunding, s.OpenInterest)
			}
		})
	},
}

var (
	statKey      string
	statSidePair string
	statShort    bool
	statHistory  historyFlags
)

var statCmd = &cobra.Command{
	Use:   "stat SYMBOL",
	Short: "Show a stats1 series",
	Example: `  bfx public stat tBTCUSD --key pos.size --short
  bfx public stat fUSD --key credits.size.sym --side-pair tETHUSD
  bfx public stat BFX --key vol.1d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := client.ParseStatKey(statKey)
		if err != nil {
			return err
		}
		hp, err := statHistory.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		stats, err := c.Stats(cmd.Context(), client.StatParams{
			Key:           key,
			Symbol:        args[0],
			SidePair:      statSidePair,
			Short:         statShort,
			HistoryParams: hp,
		})
		if err != nil {
			return err
		}
		return render(cmd, stats, func(w io.Writer) {
			row(w, "TIME", "VALUE")
			for _, s := range stats {
				row(w, s.Time, s.Value)
			}
		})
	},
}

var fundingStatsHistory historyFlags

var fundingStatsCmd = &cobra.Command{
	Use:   "funding-stats SYMBOL",
	Short: "Show funding statistics for a funding currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := fundingStatsHistory.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		stats, err := c.FundingStats(cmd.Context(), args[0], hp)
		if err != nil {
			return err
		}
		return render(cmd, stats, func(w io.Writer) {
			row(w, "TIME", "FRR", "AVG PERIOD", "AMOUNT", "AMOUNT USED", "BELOW THRESHOLD")
			for _, s := range stats {
				row(w, s.Time, s.FRR, s.AvgPeriod, s.FundingAmount, s.FundingAmountUsed, s.FundingBelowThreshold)
			}
		})
	},
}
