package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// bookLength is the number of price levels requested from book endpoints.
const bookLength = "250"

// Per-endpoint limits enforced by the exchange.
const (
	maxTradesLimit       = 10000
	maxCandlesLimit      = 10000
	maxStatsLimit        = 10000
	maxFundingStatsLimit = 250
)

// PlatformStatus reports whether the exchange is operative.
type PlatformStatus struct {
	Operative bool `json:"operative"`
}

func (s *PlatformStatus) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 1, "platform status")
	if err != nil {
		return err
	}
	s.Operative = r.i64(0) == 1
	return nil
}

// TradingTicker is the ticker of a trading pair.
type TradingTicker struct {
	Bid                 decimal.Decimal `json:"bid"`
	BidSize             decimal.Decimal `json:"bid_size"`
	Ask                 decimal.Decimal `json:"ask"`
	AskSize             decimal.Decimal `json:"ask_size"`
	DailyChange         decimal.Decimal `json:"daily_change"`
	DailyChangeRelative decimal.Decimal `json:"daily_change_relative"`
	LastPrice           decimal.Decimal `json:"last_price"`
	Volume              decimal.Decimal `json:"volume"`
	High                decimal.Decimal `json:"high"`
	Low                 decimal.Decimal `json:"low"`
}

func (t *TradingTicker) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 10, "trading ticker")
	if err != nil {
		return err
	}
	*t = TradingTicker{
		Bid: r.dec(0), BidSize: r.dec(1), Ask: r.dec(2), AskSize: r.dec(3),
		DailyChange: r.dec(4), DailyChangeRelative: r.dec(5), LastPrice: r.dec(6),
		Volume: r.dec(7), High: r.dec(8), Low: r.dec(9),
	}
	return nil
}

// FundingTicker is the ticker of a funding currency.
type FundingTicker struct {
	FRR                decimal.Decimal `json:"frr"`
	Bid                decimal.Decimal `json:"bid"`
	BidPeriod          int64           `json:"bid_period"`
	BidSize            decimal.Decimal `json:"bid_size"`
	Ask                decimal.Decimal `json:"ask"`
	AskPeriod          int64           `json:"ask_period"`
	AskSize            decimal.Decimal `json:"ask_size"`
	DailyChange        decimal.Decimal `json:"daily_change"`
	DailyChangePerc    decimal.Decimal `json:"daily_change_perc"`
	LastPrice          decimal.Decimal `json:"last_price"`
	Volume             decimal.Decimal `json:"volume"`
	High               decimal.Decimal `json:"high"`
	Low                decimal.Decimal `json:"low"`
	FRRAmountAvailable decimal.Decimal `json:"frr_amount_available"`
}

func (t *FundingTicker) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 13, "funding ticker")
	if err != nil {
		return err
	}
	*t = FundingTicker{
		FRR: r.dec(0), Bid: r.dec(1), BidPeriod: r.i64(2), BidSize: r.dec(3),
		Ask: r.dec(4), AskPeriod: r.i64(5), AskSize: r.dec(6),
		DailyChange: r.dec(7), DailyChangePerc: r.dec(8), LastPrice: r.dec(9),
		Volume: r.dec(10), High: r.dec(11), Low: r.dec(12), FRRAmountAvailable: r.dec(15),
	}
	return nil
}

// TradingBookEntry is one aggregated price level. Positive amounts are bids.
type TradingBookEntry struct {
	Price  decimal.Decimal `json:"price"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func (e *TradingBookEntry) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 3, "trading book entry")
	if err != nil {
		return err
	}
	*e = TradingBookEntry{Price: r.dec(0), Count: r.i64(1), Amount: r.dec(2)}
	return nil
}

// TradingRawBookEntry is one order in the raw book.
type TradingRawBookEntry struct {
	OrderID int64           `json:"order_id"`
	Price   decimal.Decimal `json:"price"`
	Amount  decimal.Decimal `json:"amount"`
}

func (e *TradingRawBookEntry) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 3, "raw trading book entry")
	if err != nil {
		return err
	}
	*e = TradingRawBookEntry{OrderID: r.i64(0), Price: r.dec(1), Amount: r.dec(2)}
	return nil
}

// FundingBookEntry is one aggregated rate level.
type FundingBookEntry struct {
	Rate   decimal.Decimal `json:"rate"`
	Period int64           `json:"period"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func (e *FundingBookEntry) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 4, "funding book entry")
	if err != nil {
		return err
	}
	*e = FundingBookEntry{Rate: r.dec(0), Period: r.i64(1), Count: r.i64(2), Amount: r.dec(3)}
	return nil
}

// FundingRawBookEntry is one offer in the raw funding book.
type FundingRawBookEntry struct {
	OfferID int64           `json:"offer_id"`
	Period  int64           `json:"period"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
}

func (e *FundingRawBookEntry) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 4, "raw funding book entry")
	if err != nil {
		return err
	}
	*e = FundingRawBookEntry{OfferID: r.i64(0), Period: r.i64(1), Rate: r.dec(2), Amount: r.dec(3)}
	return nil
}

// TradingTrade is one public trade. Negative amounts are sells.
type TradingTrade struct {
	ID     int64           `json:"id"`
	Time   time.Time       `json:"time"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

func (t *TradingTrade) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 4, "trading trade")
	if err != nil {
		return err
	}
	*t = TradingTrade{ID: r.i64(0), Time: r.mts(1), Amount: r.dec(2), Price: r.dec(3)}
	return nil
}

// FundingTrade is one public funding trade.
type FundingTrade struct {
	ID     int64           `json:"id"`
	Time   time.Time       `json:"time"`
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
	Period int64           `json:"period"`
}

func (t *FundingTrade) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 5, "funding trade")
	if err != nil {
		return err
	}
	*t = FundingTrade{ID: r.i64(0), Time: r.mts(1), Amount: r.dec(2), Rate: r.dec(3), Period: r.i64(4)}
	return nil
}

// Stat is one point of a stats1 series.
type Stat struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

func (s *Stat) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 2, "stat")
	if err != nil {
		return err
	}
	*s = Stat{Time: r.mts(0), Value: r.dec(1)}
	return nil
}

// FundingStats is one point of a funding statistics series.
type FundingStats struct {
	Time                  time.Time       `json:"time"`
	FRR                   decimal.Decimal `json:"frr"`
	AvgPeriod             decimal.Decimal `json:"avg_period"`
	FundingAmount         decimal.Decimal `json:"funding_amount"`
	FundingAmountUsed     decimal.Decimal `json:"funding_amount_used"`
	FundingBelowThreshold decimal.Decimal `json:"funding_below_threshold"`
}

func (s *FundingStats) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 12, "funding stats")
	if err != nil {
		return err
	}
	*s = FundingStats{
		Time: r.mts(0), FRR: r.dec(3), AvgPeriod: r.dec(4),
		FundingAmount: r.dec(7), FundingAmountUsed: r.dec(8), FundingBelowThreshold: r.dec(11),
	}
	return nil
}

// DerivativesStatus describes a derivatives contract.
type DerivativesStatus struct {
	Key                  string          `json:"key"`
	Time                 time.Time       `json:"time"`
	DerivPrice           decimal.Decimal `json:"deriv_price"`
	SpotPrice            decimal.Decimal `json:"spot_price"`
	InsuranceFundBalance decimal.Decimal `json:"insurance_fund_balance"`
	NextFundingEvent     time.Time       `json:"next_funding_event"`
	NextFundingAccrued   decimal.Decimal `json:"next_funding_accrued"`
	NextFundingStep      int64           `json:"next_funding_step"`
	CurrentFunding       decimal.Decimal `json:"current_funding"`
	MarkPrice            decimal.Decimal `json:"mark_price"`
	OpenInterest         decimal.Decimal `json:"open_interest"`
	ClampMin             decimal.Decimal `json:"clamp_min"`
	ClampMax             decimal.Decimal `json:"clamp_max"`
}

func (s *DerivativesStatus) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 19, "derivatives status")
	if err != nil {
		return err
	}
	*s = DerivativesStatus{
		Key: r.str(0), Time: r.mts(1), DerivPrice: r.dec(3), SpotPrice: r.dec(4),
		InsuranceFundBalance: r.dec(6), NextFundingEvent: r.mts(8), NextFundingAccrued: r.dec(9),
		NextFundingStep: r.i64(10), CurrentFunding: r.dec(12), MarkPrice: r.dec(15),
		OpenInterest: r.dec(18), ClampMin: r.dec(22), ClampMax: r.dec(23),
	}
	return nil
}

// StatKey names a stats1 series.
type StatKey string

const (
	StatPositionSize      StatKey = "pos.size"
	StatFundingSize       StatKey = "funding.size"
	StatCreditsSize       StatKey = "credits.size"
	StatCreditsSizeSymbol StatKey = "credits.size.sym"
	StatVolume1d          StatKey = "vol.1d"
	StatVolume7d          StatKey = "vol.7d"
	StatVolume30d         StatKey = "vol.30d"
	StatVWAP              StatKey = "vwap"
)

// ParseStatKey validates a stats1 key.
func ParseStatKey(s string) (StatKey, error) {
	switch k := StatKey(strings.ToLower(strings.TrimSpace(s))); k {
	case StatPositionSize, StatFundingSize, StatCreditsSize, StatCreditsSizeSymbol,
		StatVolume1d, StatVolume7d, StatVolume30d, StatVWAP:
		return k, nil
	}
	return "", invalidArg("unknown stat key %q", s)
}

// StatParams selects a stats1 series.
type StatParams struct {
	Key    StatKey
	Symbol string
	// SidePair is the trading pair for credits.size.sym. Defaults to tBTCUSD.
	SidePair string
	// Short selects the short side for pos.size.
	Short bool
	HistoryParams
}

// statPath builds the stats1 key path. Funding keys need a funding symbol,
// pos.size a trading pair, and the volume keys are exchange-wide.
func (p StatParams) statPath() (string, error) {
	k := string(p.Key)
	switch p.Key {
	case StatFundingSize, StatCreditsSize:
		if err := requireFunding(p.Symbol); err != nil {
			return "", err
		}
		return fmt.Sprintf("stats1/%s:1m:%s/hist", k, p.Symbol), nil
	case StatCreditsSizeSymbol:
		if err := requireFunding(p.Symbol); err != nil {
			return "", err
		}
		side := p.SidePair
		if side == "" {
			side = "tBTCUSD"
		}
		if err := requireTrading(side); err != nil {
			return "", err
		}
		return fmt.Sprintf("stats1/%s:1m:%s:%s/hist", k, p.Symbol, side), nil
	case StatPositionSize:
		if err := requireTrading(p.Symbol); err != nil {
			return "", err
		}
		side := "long"
		if p.Short {
			side = "short"
		}
		return fmt.Sprintf("stats1/%s:1m:%s:%s/hist", k, p.Symbol, side), nil
	case StatVWAP:
		if err := requireTrading(p.Symbol); err != nil {
			return "", err
		}
		return fmt.Sprintf("stats1/%s:1d:%s/hist", k, p.Symbol), nil
	case StatVolume1d, StatVolume7d, StatVolume30d:
		return fmt.Sprintf("stats1/%s:30m:BFX/hist", k), nil
	}
	return "", invalidArg("unknown stat key %q", k)
}

// FundingCandleParams selects a funding candle series. Period is the offer
// period in days (2 to 120). A non-zero AggPeriod (10, 30 or 120) aggregates
// offers whose period falls in the window ending at Period.
type FundingCandleParams struct {
	TimeFrame CandleTimeFrame
	Period    int
	AggPeriod int
}

func (p FundingCandleParams) key(symbol string) (string, error) {
	if p.Period < 2 || p.Period > 120 {
		return "", invalidArg("funding period must be between 2 and 120, got %d", p.Period)
	}
	parts := []string{"trade", string(p.TimeFrame), symbol}
	switch p.AggPeriod {
	case 0:
	case 10, 30, 120:
		start := max(1, max(p.Period, p.AggPeriod)-p.AggPeriod) + 1
		parts = append(parts, fmt.Sprintf("a%d", p.AggPeriod), fmt.Sprintf("p%d", start))
	default:
		return "", invalidArg("aggregation period must be 0, 10, 30 or 120, got %d", p.AggPeriod)
	}
	parts = append(parts, fmt.Sprintf("p%d", p.Period))
	return strings.Join(parts, ":"), nil
}

// ── Endpoints ──────────────────────────────────────────────────────────────

// PlatformStatus reports whether the exchange is operative or in maintenance.
func (c *Client) PlatformStatus(ctx context.Context) (*PlatformStatus, error) {
	var s PlatformStatus
	if err := c.getPublic(ctx, "platform/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TradingTicker returns the ticker for a trading pair such as tBTCUSD.
func (c *Client) TradingTicker(ctx context.Context, symbol string) (*TradingTicker, error) {
	if err := requireTrading(symbol); err != nil {
		return nil, err
	}
	var t TradingTicker
	if err := c.getPublic(ctx, "ticker/"+url.PathEscape(symbol), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FundingTicker returns the ticker for a funding currency such as fUSD.
func (c *Client) FundingTicker(ctx context.Context, symbol string) (*FundingTicker, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	var t FundingTicker
	if err := c.getPublic(ctx, "ticker/"+url.PathEscape(symbol), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func bookQuery() url.Values { return url.Values{"len": []string{bookLength}} }

// TradingBook returns the aggregated order book of a trading pair.
func (c *Client) TradingBook(ctx context.Context, symbol string, prec BookPrecision) ([]TradingBookEntry, error) {
	if err := requireTrading(symbol); err != nil {
		return nil, err
	}
	if prec < 0 || prec > 4 {
		return nil, invalidArg("book precision must be P0 to P4, got %d", prec)
	}
	var out []TradingBookEntry
	err := c.getPublic(ctx, "book/"+url.PathEscape(symbol)+"/"+prec.String(), bookQuery(), &out)
	return out, err
}

// TradingRawBook returns the unaggregated order book of a trading pair.
func (c *Client) TradingRawBook(ctx context.Context, symbol string) ([]TradingRawBookEntry, error) {
	if err := requireTrading(symbol); err != nil {
		return nil, err
	}
	var out []TradingRawBookEntry
	err := c.getPublic(ctx, "book/"+url.PathEscape(symbol)+"/R0", bookQuery(), &out)
	return out, err
}

// FundingBook returns the aggregated funding book of a currency.
func (c *Client) FundingBook(ctx context.Context, symbol string, prec BookPrecision) ([]FundingBookEntry, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	if prec < 0 || prec > 4 {
		return nil, invalidArg("book precision must be P0 to P4, got %d", prec)
	}
	var out []FundingBookEntry
	err := c.getPublic(ctx, "book/"+url.PathEscape(symbol)+"/"+prec.String(), bookQuery(), &out)
	return out, err
}

// FundingRawBook returns the unaggregated funding book of a currency.
func (c *Client) FundingRawBook(ctx context.Context, symbol string) ([]FundingRawBookEntry, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	var out []FundingRawBookEntry
	err := c.getPublic(ctx, "book/"+url.PathEscape(symbol)+"/R0", bookQuery(), &out)
	return out, err
}

// TradingTrades returns recent trades of a trading pair, newest first.
func (c *Client) TradingTrades(ctx context.Context, symbol string, p HistoryParams) ([]TradingTrade, error) {
	if err := requireTrading(symbol); err != nil {
		return nil, err
	}
	if err := p.validate(maxTradesLimit); err != nil {
		return nil, err
	}
	var out []TradingTrade
	err := c.getPublic(ctx, "trades/"+url.PathEscape(symbol)+"/hist", p.values(true), &out)
	return out, err
}

// FundingTrades returns recent funding trades of a currency, newest first.
func (c *Client) FundingTrades(ctx context.Context, symbol string, p HistoryParams) ([]FundingTrade, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	if err := p.validate(maxTradesLimit); err != nil {
		return nil, err
	}
	var out []FundingTrade
	err := c.getPublic(ctx, "trades/"+url.PathEscape(symbol)+"/hist", p.values(true), &out)
	return out, err
}

// TradingCandles returns candles of a trading pair, newest first.
func (c *Client) TradingCandles(ctx context.Context, symbol string, tf CandleTimeFrame, p HistoryParams) ([]Candle, error) {
	if err := requireTrading(symbol); err != nil {
		return nil, err
	}
	tf, err := ParseCandleTimeFrame(string(tf))
	if err != nil {
		return nil, err
	}
	if err := p.validate(maxCandlesLimit); err != nil {
		return nil, err
	}
	var out []Candle
	err = c.getPublic(ctx, "candles/trade:"+string(tf)+":"+symbol+"/hist", p.values(true), &out)
	return out, err
}

// FundingCandles returns candles of a funding currency, newest first.
func (c *Client) FundingCandles(ctx context.Context, symbol string, fp FundingCandleParams, p HistoryParams) ([]Candle, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	tf, err := ParseCandleTimeFrame(string(fp.TimeFrame))
	if err != nil {
		return nil, err
	}
	fp.TimeFrame = tf
	if err := p.validate(maxCandlesLimit); err != nil {
		return nil, err
	}
	key, err := fp.key(symbol)
	if err != nil {
		return nil, err
	}
	var out []Candle
	err = c.getPublic(ctx, "candles/"+key+"/hist", p.values(true), &out)
	return out, err
}

// Stats returns a stats1 series, newest first.
func (c *Client) Stats(ctx context.Context, p StatParams) ([]Stat, error) {
	path, err := p.statPath()
	if err != nil {
		return nil, err
	}
	if err := p.validate(maxStatsLimit); err != nil {
		return nil, err
	}
	var out []Stat
	err = c.getPublic(ctx, path, p.values(true), &out)
	return out, err
}

// FundingStats returns funding statistics of a currency.
func (c *Client) FundingStats(ctx context.Context, symbol string, p HistoryParams) ([]FundingStats, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	if err := p.validate(maxFundingStatsLimit); err != nil {
		return nil, err
	}
	var out []FundingStats
	err := c.getPublic(ctx, "funding/stats/"+url.PathEscape(symbol)+"/hist", p.values(false), &out)
	return out, err
}

// DerivativesStatus returns the status of the given derivative keys
// (comma separated, e.g. "tBTCF0:USTF0"), or of all of them for "ALL".
func (c *Client) DerivativesStatus(ctx context.Context, keys string) ([]DerivativesStatus, error) {
	if strings.TrimSpace(keys) == "" {
		return nil, invalidArg("at least one derivatives key is required")
	}
	var out []DerivativesStatus
	err := c.getPublic(ctx, "status/deriv", url.Values{"keys": []string{keys}}, &out)
	return out, err
}

// ExchangePairs lists the trading pairs available on the exchange.
func (c *Client) ExchangePairs(ctx context.Context) ([]string, error) {
	return c.confList(ctx, "conf/pub:list:pair:exchange")
}

// Currencies lists the currencies known to the exchange.
func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	return c.confList(ctx, "conf/pub:list:currency")
}

func (c *Client) confList(ctx context.Context, path string) ([]string, error) {
	var out [][]string
	if err := c.getPublic(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// ExchangeRate returns how many units of to one unit of from is worth.
func (c *Client) ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == "" || to == "" {
		return decimal.Zero, invalidArg("both currencies are required")
	}
	body, err := json.Marshal(map[string]string{"ccy1": from, "ccy2": to})
	if err != nil {
		return decimal.Zero, err
	}
	data, err := c.executePublic(ctx, http.MethodPost, "calc/fx", nil, body)
	if err != nil {
		return decimal.Zero, err
	}
	var out []decimal.Decimal
	if err := decode("calc/fx", data, &out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, &TransportError{Op: "decode", URL: "calc/fx", Err: fmt.Errorf("empty response")}
	}
	return out[0], nil
}
