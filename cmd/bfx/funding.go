package main

import (
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/bfx/pkg/client"
)

var fundingCmd = &cobra.Command{
	Use:   "funding",
	Short: "Funding market data, offers and credits",
}

func init() {
	fundingCmd.AddCommand(fundingBookCmd, fundingRawBookCmd, fundingTickerCmd,
		fundingCandlesCmd, fundingTradesCmd, submitOfferCmd, cancelOfferCmd,
		cancelAllOffersCmd, offersCmd, creditsCmd, histOffersCmd, histCreditsCmd)

	fundingBookCmd.Flags().StringVarP(&fundingBookPrec, "precision", "p", "P0", "rate aggregation level, P0 to P4")

	cf := fundingCandlesCmd.Flags()
	cf.StringVar(&fundingCandles.timeFrame, "time-frame", "1m", "candle width: 1m 5m 15m 30m 1h 3h 6h 12h 1D 1W 14D 1M")
	cf.IntVar(&fundingCandles.period, "period", 2, "offer period in days, 2 to 120")
	cf.IntVar(&fundingCandles.aggPeriod, "agg-period", 0, "aggregate offers with periods in a window: 10, 30 or 120")
	fundingCandles.history.register(fundingCandlesCmd)
	fundingTradesHistory.register(fundingTradesCmd)

	of := submitOfferCmd.Flags()
	of.StringVar(&submitOffer.offerType, "type", string(client.FundingOfferLimit), "LIMIT, FRRDELTAVAR or FRRDELTAFIX")
	of.StringVar(&submitOffer.amount, "amount", "", "amount to lend; negative to borrow")
	of.StringVar(&submitOffer.rate, "rate", "", "daily rate, or the FRR delta for FRR offers")
	of.IntVar(&submitOffer.period, "period", 2, "period in days, 2 to 120")
	of.Int64Var(&submitOffer.flags, "flags", 0, "offer flags")
	_ = submitOfferCmd.MarkFlagRequired("amount")
	_ = submitOfferCmd.MarkFlagRequired("rate")

	histOffersHistory.register(histOffersCmd)
	histCreditsHistory.register(histCreditsCmd)
}

// ── market data ─────────────────────────────────────────────────────────────

var fundingBookPrec string

var fundingBookCmd = &cobra.Command{
	Use:   "book SYMBOL",
	Short: "Show the aggregated funding book of a currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prec, err := client.ParseBookPrecision(fundingBookPrec)
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		book, err := c.FundingBook(cmd.Context(), args[0], prec)
		if err != nil {
			return err
		}
		return render(cmd, book, func(w io.Writer) {
			row(w, "SIDE", "RATE", "PERIOD", "COUNT", "AMOUNT")
			for _, e := range book {
				row(w, fundingSide(e.Amount), e.Rate, e.Period, e.Count, e.Amount.Abs())
			}
		})
	},
}

var fundingRawBookCmd = &cobra.Command{
	Use:   "raw-book SYMBOL",
	Short: "Show every offer in the funding book of a currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		book, err := c.FundingRawBook(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, book, func(w io.Writer) {
			row(w, "OFFER", "SIDE", "RATE", "PERIOD", "AMOUNT")
			for _, e := range book {
				row(w, e.OfferID, fundingSide(e.Amount), e.Rate, e.Period, e.Amount.Abs())
			}
		})
	},
}

var fundingTickerCmd = &cobra.Command{
	Use:   "ticker SYMBOL",
	Short: "Show the ticker of a funding currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		t, err := c.FundingTicker(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, t, func(w io.Writer) {
			row(w, "FRR", "BID", "BID PERIOD", "ASK", "ASK PERIOD", "LAST", "VOLUME", "HIGH", "LOW")
			row(w, t.FRR, t.Bid, t.BidPeriod, t.Ask, t.AskPeriod, t.LastPrice, t.Volume, t.High, t.Low)
		})
	},
}

var fundingCandles struct {
	timeFrame string
	period    int
	aggPeriod int
	history   historyFlags
}

var fundingCandlesCmd = &cobra.Command{
	Use:     "candles SYMBOL",
	Short:   "Show candles of a funding currency for one offer period",
	Example: "  bfx funding candles fUSD --time-frame 1h --period 30 --agg-period 10",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := client.ParseCandleTimeFrame(fundingCandles.timeFrame)
		if err != nil {
			return err
		}
		hp, err := fundingCandles.history.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		candles, err := c.FundingCandles(cmd.Context(), args[0], client.FundingCandleParams{
			TimeFrame: tf,
			Period:    fundingCandles.period,
			AggPeriod: fundingCandles.aggPeriod,
		}, hp)
		if err != nil {
			return err
		}
		return render(cmd, candles, func(w io.Writer) { candleTable(w, candles) })
	},
}

var fundingTradesHistory historyFlags

var fundingTradesCmd = &cobra.Command{
	Use:   "trades SYMBOL",
	Short: "Show recent public funding trades",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := fundingTradesHistory.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		trades, err := c.FundingTrades(cmd.Context(), args[0], hp)
		if err != nil {
			return err
		}
		return render(cmd, trades, func(w io.Writer) {
			row(w, "ID", "TIME", "AMOUNT", "RATE", "PERIOD")
			for _, t := range trades {
				row(w, t.ID, t.Time, t.Amount, t.Rate, t.Period)
			}
		})
	},
}

// ── offers and credits ──────────────────────────────────────────────────────

var submitOffer struct {
	offerType    string
	amount, rate string
	period       int
	flags        int64
}

var submitOfferCmd = &cobra.Command{
	Use:     "submit SYMBOL",
	Short:   "Submit a funding offer",
	Example: "  bfx funding submit fUSD --amount 500 --rate 0.0002 --period 2",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := client.ParseFundingOfferType(submitOffer.offerType)
		if err != nil {
			return err
		}
		amount, err := parseDecimal("amount", submitOffer.amount)
		if err != nil {
			return err
		}
		rate, err := parseDecimal("rate", submitOffer.rate)
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		o, err := c.SubmitFundingOffer(cmd.Context(), client.FundingOfferRequest{
			Symbol: args[0],
			Type:   typ,
			Amount: amount,
			Rate:   rate,
			Period: submitOffer.period,
			Flags:  submitOffer.flags,
		})
		if err != nil {
			return err
		}
		return render(cmd, o, func(w io.Writer) { offerTable(w, []client.FundingOffer{*o}) })
	},
}

var cancelOfferCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a funding offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		o, err := c.CancelFundingOffer(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd, o, func(w io.Writer) { offerTable(w, []client.FundingOffer{*o}) })
	},
}

var cancelAllOffersCmd = &cobra.Command{
	Use:     "cancel-all SYMBOL",
	Short:   "Cancel every funding offer in the symbol's currency",
	Example: "  bfx funding cancel-all fUSD",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		n, err := c.CancelAllFundingOffers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, n, func(w io.Writer) {
			row(w, "STATUS", "MESSAGE")
			row(w, n.Status, n.Text)
		})
	},
}

var offersCmd = &cobra.Command{
	Use:   "offers SYMBOL",
	Short: "List active funding offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		offers, err := c.FundingOffers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, offers, func(w io.Writer) { offerTable(w, offers) })
	},
}

var histOffersHistory historyFlags

var histOffersCmd = &cobra.Command{
	Use:   "hist-offers SYMBOL",
	Short: "List past funding offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := histOffersHistory.params()
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		offers, err := c.FundingOffersHistory(cmd.Context(), args[0], hp)
		if err != nil {
			return err
		}
		return render(cmd, offers, func(w io.Writer) { offerTable(w, offers) })
	},
}

var creditsCmd = &cobra.Command{
	Use:   "credits SYMBOL",
	Short: "List funds lent or borrowed in open positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		credits, err := c.FundingCredits(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, credits, func(w io.Writer) { creditTable(w, credits) })
	},
}

var histCreditsHistory historyFlags

var histCreditsCmd = &cobra.Command{
	Use:   "hist-credits SYMBOL",
	Short: "List past funding credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := histCreditsHistory.params()
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		credits, err := c.FundingCreditsHistory(cmd.Context(), args[0], hp)
		if err != nil {
			return err
		}
		return render(cmd, credits, func(w io.Writer) { creditTable(w, credits) })
	},
}

func offerTable(w io.Writer, offers []client.FundingOffer) {
	row(w, "ID", "SYMBOL", "TYPE", "AMOUNT", "ORIGINAL", "RATE", "PERIOD", "STATUS", "CREATED")
	for _, o := range offers {
		row(w, o.ID, o.Symbol, string(o.Type), o.Amount, o.AmountOrig, o.Rate, o.Period, o.Status, o.Created)
	}
}

func creditTable(w io.Writer, credits []client.FundingCredit) {
	row(w, "ID", "SYMBOL", "SIDE", "AMOUNT", "RATE", "PERIOD", "STATUS", "OPENED", "PAIR")
	for _, fc := range credits {
		row(w, fc.ID, fc.Symbol, creditSide(fc.Side), fc.Amount, fc.Rate, fc.Period, fc.Status, fc.Opened, fc.Pair)
	}
}

// fundingSide names book levels: positive amounts are offers to lend.
func fundingSide(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "bid"
	}
	return "offer"
}

func creditSide(s int64) string {
	switch s {
	case 1:
		return "lender"
	case -1:
		return "borrower"
	}
	return "both"
}
