package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/bfx/pkg/client"
)

var tradingCmd = &cobra.Command{
	Use:   "trading",
	Short: "Trading pair market data and orders",
}

func init() {
	tradingCmd.AddCommand(tradingBookCmd, tradingRawBookCmd, tradingTickerCmd,
		tradingCandlesCmd, tradingTradesCmd, ordersCmd, histOrdersCmd,
		submitOrderCmd, updateOrderCmd, cancelOrderCmd, cancelAllOrdersCmd)

	tradingBookCmd.Flags().StringVarP(&tradingBookPrec, "precision", "p", "P0", "price aggregation level, P0 to P4")
	tradingCandlesCmd.Flags().StringVar(&tradingCandlesTF, "time-frame", "1m", "candle width: 1m 5m 15m 30m 1h 3h 6h 12h 1D 1W 14D 1M")
	tradingCandlesHistory.register(tradingCandlesCmd)
	tradingTradesHistory.register(tradingTradesCmd)

	ordersCmd.Flags().StringVar(&ordersFilter.symbol, "symbol", "", "only orders on this pair")
	ordersCmd.Flags().Int64Var(&ordersFilter.gid, "gid", 0, "only orders in this group")
	ordersCmd.Flags().Int64Var(&ordersFilter.cid, "cid", 0, "client order id")
	ordersCmd.Flags().StringVar(&ordersFilter.cidDate, "cid-date", "", "date of the client order id, YYYY-MM-DD")
	ordersCmd.Flags().Int64SliceVar(&ordersFilter.ids, "id", nil, "order ids")

	histOrdersCmd.Flags().StringVar(&histOrdersSymbol, "symbol", "", "only orders on this pair")
	histOrdersHistory.register(histOrdersCmd)

	sf := submitOrderCmd.Flags()
	sf.StringVar(&submitOrder.orderType, "type", "EXCHANGE LIMIT", "order type, e.g. \"EXCHANGE LIMIT\" or exchange-market")
	sf.StringVar(&submitOrder.amount, "amount", "", "amount; negative to sell")
	sf.StringVar(&submitOrder.price, "price", "", "price; ignored for market orders")
	sf.IntVar(&submitOrder.leverage, "lev", 0, "leverage for derivatives")
	sf.StringVar(&submitOrder.priceTrailing, "price-trailing", "", "trailing price for trailing stops")
	sf.StringVar(&submitOrder.priceAuxLimit, "price-aux-limit", "", "limit price for stop limit orders")
	sf.StringVar(&submitOrder.priceOCOStop, "price-oco-stop", "", "stop price of the OCO pair")
	sf.Int64Var(&submitOrder.gid, "gid", 0, "group id")
	sf.Int64Var(&submitOrder.cid, "cid", 0, "client order id")
	sf.Int64Var(&submitOrder.flags, "flags", 0, "order flags")
	sf.StringVar(&submitOrder.tif, "tif", "", "cancel automatically at this time, RFC 3339")
	_ = submitOrderCmd.MarkFlagRequired("amount")

	uf := updateOrderCmd.Flags()
	uf.StringVar(&updateOrder.amount, "amount", "", "new amount")
	uf.StringVar(&updateOrder.price, "price", "", "new price")
	uf.StringVar(&updateOrder.delta, "delta", "", "change the amount by this much")
	uf.IntVar(&updateOrder.leverage, "lev", 0, "new leverage")
	uf.StringVar(&updateOrder.priceTrailing, "price-trailing", "", "new trailing price")
	uf.StringVar(&updateOrder.priceAuxLimit, "price-aux-limit", "", "new auxiliary limit price")
	uf.Int64Var(&updateOrder.gid, "gid", 0, "new group id")
	uf.Int64Var(&updateOrder.cid, "cid", 0, "new client order id")
	uf.StringVar(&updateOrder.cidDate, "cid-date", "", "date of the client order id, YYYY-MM-DD")
	uf.Int64Var(&updateOrder.flags, "flags", 0, "new flags")
	uf.StringVar(&updateOrder.tif, "tif", "", "new cancel time, RFC 3339")

	cancelOrderCmd.Flags().Int64Var(&cancelOrder.ID, "id", 0, "order id")
	cancelOrderCmd.Flags().Int64Var(&cancelOrder.ClientID, "cid", 0, "client order id")
	cancelOrderCmd.Flags().StringVar(&cancelOrder.ClientIDDate, "cid-date", "", "date of the client order id, YYYY-MM-DD")
	cancelOrderCmd.MarkFlagsOneRequired("id", "cid")
	cancelOrderCmd.MarkFlagsMutuallyExclusive("id", "cid")
	cancelOrderCmd.MarkFlagsRequiredTogether("cid", "cid-date")
}

// ── market data ─────────────────────────────────────────────────────────────

var tradingBookPrec string

var tradingBookCmd = &cobra.Command{
	Use:   "book SYMBOL",
	Short: "Show the aggregated order book of a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prec, err := client.ParseBookPrecision(tradingBookPrec)
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		book, err := c.TradingBook(cmd.Context(), args[0], prec)
		if err != nil {
			return err
		}
		return render(cmd, book, func(w io.Writer) {
			row(w, "SIDE", "PRICE", "COUNT", "AMOUNT")
			for _, e := range book {
				row(w, side(e.Amount), e.Price, e.Count, e.Amount.Abs())
			}
		})
	},
}

var tradingRawBookCmd = &cobra.Command{
	Use:   "raw-book SYMBOL",
	Short: "Show every order in the book of a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		book, err := c.TradingRawBook(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, book, func(w io.Writer) {
			row(w, "ORDER", "SIDE", "PRICE", "AMOUNT")
			for _, e := range book {
				row(w, e.OrderID, side(e.Amount), e.Price, e.Amount.Abs())
			}
		})
	},
}

var tradingTickerCmd = &cobra.Command{
	Use:   "ticker SYMBOL",
	Short: "Show the ticker of a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		t, err := c.TradingTicker(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, t, func(w io.Writer) {
			row(w, "BID", "BID SIZE", "ASK", "ASK SIZE", "LAST", "CHANGE", "VOLUME", "HIGH", "LOW")
			row(w, t.Bid, t.BidSize, t.Ask, t.AskSize, t.LastPrice, t.DailyChangeRelative, t.Volume, t.High, t.Low)
		})
	},
}

var (
	tradingCandlesTF      string
	tradingCandlesHistory historyFlags
)

var tradingCandlesCmd = &cobra.Command{
	Use:   "candles SYMBOL",
	Short: "Show candles of a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := client.ParseCandleTimeFrame(tradingCandlesTF)
		if err != nil {
			return err
		}
		hp, err := tradingCandlesHistory.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		candles, err := c.TradingCandles(cmd.Context(), args[0], tf, hp)
		if err != nil {
			return err
		}
		return render(cmd, candles, func(w io.Writer) { candleTable(w, candles) })
	},
}

var tradingTradesHistory historyFlags

var tradingTradesCmd = &cobra.Command{
	Use:   "trades SYMBOL",
	Short: "Show recent public trades of a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := tradingTradesHistory.params()
		if err != nil {
			return err
		}
		c, err := newPublicClient()
		if err != nil {
			return err
		}
		trades, err := c.TradingTrades(cmd.Context(), args[0], hp)
		if err != nil {
			return err
		}
		return render(cmd, trades, func(w io.Writer) {
			row(w, "ID", "TIME", "SIDE", "AMOUNT", "PRICE")
			for _, t := range trades {
				row(w, t.ID, t.Time, side(t.Amount), t.Amount.Abs(), t.Price)
			}
		})
	},
}

// ── orders ──────────────────────────────────────────────────────────────────

var ordersFilter struct {
	symbol  string
	ids     []int64
	gid     int64
	cid     int64
	cidDate string
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List active orders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		orders, err := c.Orders(cmd.Context(), client.OrderFilter{
			Symbol:       ordersFilter.symbol,
			IDs:          ordersFilter.ids,
			GroupID:      ordersFilter.gid,
			ClientID:     ordersFilter.cid,
			ClientIDDate: ordersFilter.cidDate,
		})
		if err != nil {
			return err
		}
		return render(cmd, orders, func(w io.Writer) { orderTable(w, orders) })
	},
}

var (
	histOrdersSymbol  string
	histOrdersHistory historyFlags
)

var histOrdersCmd = &cobra.Command{
	Use:   "hist-orders",
	Short: "List closed and cancelled orders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hp, err := histOrdersHistory.params()
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		orders, err := c.OrdersHistory(cmd.Context(), histOrdersSymbol, hp)
		if err != nil {
			return err
		}
		return render(cmd, orders, func(w io.Writer) { orderTable(w, orders) })
	},
}

var submitOrder struct {
	orderType     string
	amount, price string
	leverage      int
	priceTrailing string
	priceAuxLimit string
	priceOCOStop  string
	gid, cid      int64
	flags         int64
	tif           string
}

var submitOrderCmd = &cobra.Command{
	Use:   "submit SYMBOL",
	Short: "Submit a new order",
	Example: `  bfx trading submit tBTCUSD --type "EXCHANGE LIMIT" --amount 0.01 --price 30000
  bfx trading submit tETHUSD --type exchange-market --amount -0.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildOrderRequest(args[0])
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		orders, err := c.SubmitOrder(cmd.Context(), req)
		if err != nil {
			return err
		}
		return render(cmd, orders, func(w io.Writer) { orderTable(w, orders) })
	},
}

func buildOrderRequest(symbol string) (client.OrderRequest, error) {
	typ, err := client.ParseOrderType(submitOrder.orderType)
	if err != nil {
		return client.OrderRequest{}, err
	}
	req := client.OrderRequest{
		Symbol:   symbol,
		Type:     typ,
		Leverage: submitOrder.leverage,
		GroupID:  submitOrder.gid,
		ClientID: submitOrder.cid,
		Flags:    submitOrder.flags,
	}
	if req.Amount, err = parseDecimal("amount", submitOrder.amount); err != nil {
		return req, err
	}
	if submitOrder.price != "" {
		if req.Price, err = parseDecimal("price", submitOrder.price); err != nil {
			return req, err
		}
	}
	if req.PriceTrailing, err = optionalDecimal("price-trailing", submitOrder.priceTrailing); err != nil {
		return req, err
	}
	if req.PriceAuxLimit, err = optionalDecimal("price-aux-limit", submitOrder.priceAuxLimit); err != nil {
		return req, err
	}
	if req.PriceOCOStop, err = optionalDecimal("price-oco-stop", submitOrder.priceOCOStop); err != nil {
		return req, err
	}
	if req.TimeInForce, err = parseTime("tif", submitOrder.tif); err != nil {
		return req, err
	}
	return req, nil
}

var updateOrder struct {
	amount, price, delta string
	leverage             int
	priceTrailing        string
	priceAuxLimit        string
	gid, cid             int64
	cidDate              string
	flags                int64
	tif                  string
}

var updateOrderCmd = &cobra.Command{
	Use:     "update ID",
	Short:   "Change an active order",
	Example: "  bfx trading update 1185815098 --price 31000",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := buildOrderUpdate(args[0])
		if err != nil {
			return err
		}
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		o, err := c.UpdateOrder(cmd.Context(), u)
		if err != nil {
			return err
		}
		return render(cmd, o, func(w io.Writer) { orderTable(w, []client.Order{*o}) })
	},
}

func buildOrderUpdate(idArg string) (client.OrderUpdate, error) {
	id, err := parseID(idArg)
	if err != nil {
		return client.OrderUpdate{}, err
	}
	u := client.OrderUpdate{
		ID:           id,
		Leverage:     updateOrder.leverage,
		GroupID:      updateOrder.gid,
		ClientID:     updateOrder.cid,
		ClientIDDate: updateOrder.cidDate,
		Flags:        updateOrder.flags,
	}
	for _, f := range []struct {
		name string
		val  string
		dst  **decimal.Decimal
	}{
		{"amount", updateOrder.amount, &u.Amount},
		{"price", updateOrder.price, &u.Price},
		{"delta", updateOrder.delta, &u.Delta},
		{"price-trailing", updateOrder.priceTrailing, &u.PriceTrailing},
		{"price-aux-limit", updateOrder.priceAuxLimit, &u.PriceAuxLimit},
	} {
		if *f.dst, err = optionalDecimal(f.name, f.val); err != nil {
			return u, err
		}
	}
	if u.TimeInForce, err = parseTime("tif", updateOrder.tif); err != nil {
		return u, err
	}
	return u, nil
}

var cancelOrder client.OrderCancel

var cancelOrderCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an order by id, or by client id and date",
	Example: `  bfx trading cancel --id 1185815098
  bfx trading cancel --cid 42 --cid-date 2024-05-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		o, err := c.CancelOrder(cmd.Context(), cancelOrder)
		if err != nil {
			return err
		}
		return render(cmd, o, func(w io.Writer) { orderTable(w, []client.Order{*o}) })
	},
}

var cancelAllOrdersCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every active order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthClient()
		if err != nil {
			return err
		}
		orders, err := c.CancelAllOrders(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, orders, func(w io.Writer) { orderTable(w, orders) })
	},
}

// ── tables and parsing ──────────────────────────────────────────────────────

func orderTable(w io.Writer, orders []client.Order) {
	row(w, "ID", "SYMBOL", "TYPE", "SIDE", "AMOUNT", "ORIGINAL", "PRICE", "AVG PRICE", "STATUS", "CREATED")
	for _, o := range orders {
		row(w, o.ID, o.Symbol, string(o.Type), side(o.AmountOrig), o.Amount.Abs(), o.AmountOrig.Abs(),
			o.Price, o.PriceAvg, o.Status, o.Created)
	}
}

func candleTable(w io.Writer, candles []client.Candle) {
	row(w, "TIME", "OPEN", "CLOSE", "HIGH", "LOW", "VOLUME")
	for _, c := range candles {
		row(w, c.Time, c.Open, c.Close, c.High, c.Low, c.Volume)
	}
}

func side(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "sell"
	}
	return "buy"
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: --%s %q is not a number", client.ErrInvalidArgument, name, s)
	}
	return d, nil
}

func optionalDecimal(name, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseDecimal(name, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not an id", client.ErrInvalidArgument, s)
	}
	return id, nil
}
