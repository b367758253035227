package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The exchange answers with positional JSON arrays. row gives typed, lenient
// access to one of them: a missing index or a null reads as the zero value.
type row []json.RawMessage

func decodeRow(data []byte, minFields int, what string) (row, error) {
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	if len(r) < minFields {
		return nil, fmt.Errorf("decode %s: expected at least %d fields, got %d", what, minFields, len(r))
	}
	return r, nil
}

func (r row) raw(i int) json.RawMessage {
	if i >= len(r) || string(r[i]) == "null" {
		return nil
	}
	return r[i]
}

func (r row) str(i int) string {
	var s string
	if b := r.raw(i); b != nil {
		if err := json.Unmarshal(b, &s); err != nil {
			return strings.Trim(string(b), `"`)
		}
	}
	return s
}

func (r row) i64(i int) int64 {
	b := r.raw(i)
	if b == nil {
		return 0
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return int64(f)
	}
	n, _ = strconv.ParseInt(strings.Trim(string(b), `"`), 10, 64)
	return n
}

func (r row) dec(i int) decimal.Decimal {
	b := r.raw(i)
	if b == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.Trim(string(b), `"`))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r row) boolean(i int) bool {
	b := r.raw(i)
	if b == nil {
		return false
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		return v
	}
	return r.i64(i) != 0
}

// mts reads a millisecond timestamp.
func (r row) mts(i int) time.Time {
	ms := r.i64(i)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (r row) strs(i int) []string {
	var out []string
	if b := r.raw(i); b != nil {
		_ = json.Unmarshal(b, &out)
	}
	return out
}

// HistoryParams narrows history endpoints. Zero fields are omitted.
type HistoryParams struct {
	Limit int
	Start time.Time
	End   time.Time
}

func (p HistoryParams) validate(maxLimit int) error {
	if p.Limit < 0 || (maxLimit > 0 && p.Limit > maxLimit) {
		return invalidArg("limit must be between 1 and %d, got %d", maxLimit, p.Limit)
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return invalidArg("end %s is before start %s", p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}
	return nil
}

// values renders the params as query parameters. newestFirst adds sort=-1.
func (p HistoryParams) values(newestFirst bool) url.Values {
	q := url.Values{}
	if newestFirst {
		q.Set("sort", "-1")
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if !p.Start.IsZero() {
		q.Set("start", strconv.FormatInt(p.Start.UnixMilli(), 10))
	}
	if !p.End.IsZero() {
		q.Set("end", strconv.FormatInt(p.End.UnixMilli(), 10))
	}
	return q
}

// body renders the params as an authenticated request payload.
func (p HistoryParams) body() map[string]any {
	m := map[string]any{}
	if p.Limit > 0 {
		m["limit"] = p.Limit
	}
	if !p.Start.IsZero() {
		m["start"] = p.Start.UnixMilli()
	}
	if !p.End.IsZero() {
		m["end"] = p.End.UnixMilli()
	}
	return m
}

// Candle is one OHLCV bucket.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Volume decimal.Decimal `json:"volume"`
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 6, "candle")
	if err != nil {
		return err
	}
	*c = Candle{Time: r.mts(0), Open: r.dec(1), Close: r.dec(2), High: r.dec(3), Low: r.dec(4), Volume: r.dec(5)}
	return nil
}

// Notification is the envelope returned by write endpoints:
// [MTS, TYPE, MESSAGE_ID, null, DATA, CODE, STATUS, TEXT].
type Notification struct {
	Time      time.Time       `json:"time"`
	Type      string          `json:"type"`
	MessageID int64           `json:"message_id,omitempty"`
	Data      json.RawMessage `json:"-"`
	Code      int64           `json:"code,omitempty"`
	Status    string          `json:"status"`
	Text      string          `json:"text,omitempty"`
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 7, "notification")
	if err != nil {
		return err
	}
	*n = Notification{
		Time:      r.mts(0),
		Type:      r.str(1),
		MessageID: r.i64(2),
		Data:      r.raw(4),
		Code:      r.i64(5),
		Status:    r.str(6),
		Text:      r.str(7),
	}
	return nil
}

// err turns a notification reporting failure into an *ExchangeError.
func (n *Notification) err() error {
	switch strings.ToUpper(n.Status) {
	case "ERROR", "FAILURE":
		return &ExchangeError{Code: int(n.Code), Message: n.Text, StatusCode: 200}
	}
	return nil
}

// postNotification runs a write endpoint and decodes the notification's
// DATA into v. v may be nil.
func (c *Client) postNotification(ctx context.Context, path string, payload, v any) (*Notification, error) {
	var n Notification
	if err := c.postAuth(ctx, path, nil, payload, &n); err != nil {
		return nil, err
	}
	if err := n.err(); err != nil {
		return &n, err
	}
	if v != nil && n.Data != nil {
		if err := decode(path, n.Data, v); err != nil {
			return &n, err
		}
	}
	return &n, nil
}

// BookPrecision selects the aggregation level of a price book, P0 to P4.
type BookPrecision int

func (p BookPrecision) String() string { return "P" + strconv.Itoa(int(p)) }

// ParseBookPrecision accepts "2" or "P2".
func ParseBookPrecision(s string) (BookPrecision, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "P"))
	if err != nil || n < 0 || n > 4 {
		return 0, invalidArg("book precision must be P0 to P4, got %q", s)
	}
	return BookPrecision(n), nil
}

// CandleTimeFrame is the bucket width of a candle series.
type CandleTimeFrame string

const (
	TimeFrame1m  CandleTimeFrame = "1m"
	TimeFrame5m  CandleTimeFrame = "5m"
	TimeFrame15m CandleTimeFrame = "15m"
	TimeFrame30m CandleTimeFrame = "30m"
	TimeFrame1h  CandleTimeFrame = "1h"
	TimeFrame3h  CandleTimeFrame = "3h"
	TimeFrame4h  CandleTimeFrame = "4h"
	TimeFrame6h  CandleTimeFrame = "6h"
	TimeFrame12h CandleTimeFrame = "12h"
	TimeFrame1D  CandleTimeFrame = "1D"
	TimeFrame1W  CandleTimeFrame = "1W"
	TimeFrame14D CandleTimeFrame = "14D"
	TimeFrame1M  CandleTimeFrame = "1M"
)

var timeFrameAliases = map[string]CandleTimeFrame{
	"1m": TimeFrame1m, "5m": TimeFrame5m, "15m": TimeFrame15m, "30m": TimeFrame30m,
	"1h": TimeFrame1h, "3h": TimeFrame3h, "4h": TimeFrame4h, "6h": TimeFrame6h, "12h": TimeFrame12h,
	"1d": TimeFrame1D, "1D": TimeFrame1D,
	"1w": TimeFrame1W, "1W": TimeFrame1W, "7D": TimeFrame1W,
	"2w": TimeFrame14D, "14D": TimeFrame14D,
	"1M": TimeFrame1M,
}

// ParseCandleTimeFrame accepts the exchange's spelling and a few common
// aliases such as "1d" and "2w".
func ParseCandleTimeFrame(s string) (CandleTimeFrame, error) {
	if tf, ok := timeFrameAliases[strings.TrimSpace(s)]; ok {
		return tf, nil
	}
	return "", invalidArg("unknown candle time frame %q", s)
}

func requireTrading(symbol string) error {
	if !strings.HasPrefix(symbol, "t") || len(symbol) < 2 {
		return invalidArg("trading symbol must start with 't', got %q", symbol)
	}
	return nil
}

func requireFunding(symbol string) error {
	if !strings.HasPrefix(symbol, "f") || len(symbol) < 2 {
		return invalidArg("funding symbol must start with 'f', got %q", symbol)
	}
	return nil
}

// CurrencyFromSymbol extracts the quote currency of a trading pair or the
// currency of a funding symbol: fUSD is USD, tBTCUSD is USD, tETH:USDT is USDT.
func CurrencyFromSymbol(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "f"):
		return symbol[1:]
	case strings.HasPrefix(symbol, "t"):
		if i := strings.Index(symbol, ":"); i >= 0 {
			return symbol[i+1:]
		}
		if len(symbol) >= 7 {
			return symbol[4:]
		}
	}
	return symbol
}
