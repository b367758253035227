package client

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxOrdersHistoryLimit = 2500

// tifLayout is the exchange's time-in-force format, always UTC.
const tifLayout = "2006-01-02 15:04:05"

// OrderType is a trading order type as spelled by the exchange.
type OrderType string

const (
	OrderLimit                OrderType = "LIMIT"
	OrderExchangeLimit        OrderType = "EXCHANGE LIMIT"
	OrderMarket               OrderType = "MARKET"
	OrderExchangeMarket       OrderType = "EXCHANGE MARKET"
	OrderStop                 OrderType = "STOP"
	OrderExchangeStop         OrderType = "EXCHANGE STOP"
	OrderStopLimit            OrderType = "STOP LIMIT"
	OrderExchangeStopLimit    OrderType = "EXCHANGE STOP LIMIT"
	OrderTrailingStop         OrderType = "TRAILING STOP"
	OrderExchangeTrailingStop OrderType = "EXCHANGE TRAILING STOP"
	OrderFOK                  OrderType = "FOK"
	OrderExchangeFOK          OrderType = "EXCHANGE FOK"
	OrderIOC                  OrderType = "IOC"
	OrderExchangeIOC          OrderType = "EXCHANGE IOC"
)

var orderTypes = []OrderType{
	OrderLimit, OrderExchangeLimit, OrderMarket, OrderExchangeMarket,
	OrderStop, OrderExchangeStop, OrderStopLimit, OrderExchangeStopLimit,
	OrderTrailingStop, OrderExchangeTrailingStop, OrderFOK, OrderExchangeFOK,
	OrderIOC, OrderExchangeIOC,
}

var typeSeparators = regexp.MustCompile(`[\s_-]+`)

// ParseOrderType accepts "EXCHANGE LIMIT", "exchange-limit" or "exchange_limit".
func ParseOrderType(s string) (OrderType, error) {
	norm := OrderType(typeSeparators.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " "))
	for _, t := range orderTypes {
		if t == norm {
			return t, nil
		}
	}
	return "", invalidArg("unknown order type %q", s)
}

func (t OrderType) needsPrice() bool {
	switch t {
	case OrderMarket, OrderExchangeMarket, OrderTrailingStop, OrderExchangeTrailingStop:
		return false
	}
	return true
}

// Order is an order as reported by the exchange.
type Order struct {
	ID            int64           `json:"id"`
	GroupID       int64           `json:"gid,omitempty"`
	ClientID      int64           `json:"cid"`
	Symbol        string          `json:"symbol"`
	Created       time.Time       `json:"created"`
	Updated       time.Time       `json:"updated"`
	Amount        decimal.Decimal `json:"amount"`
	AmountOrig    decimal.Decimal `json:"amount_orig"`
	Type          OrderType       `json:"type"`
	TypePrev      OrderType       `json:"type_prev,omitempty"`
	TimeInForce   time.Time       `json:"time_in_force,omitzero"`
	Flags         int64           `json:"flags,omitempty"`
	Status        string          `json:"status"`
	Price         decimal.Decimal `json:"price"`
	PriceAvg      decimal.Decimal `json:"price_avg"`
	PriceTrailing decimal.Decimal `json:"price_trailing"`
	PriceAuxLimit decimal.Decimal `json:"price_aux_limit"`
	Notify        bool            `json:"notify"`
	Hidden        bool            `json:"hidden"`
	PlacedID      int64           `json:"placed_id,omitempty"`
	Routing       string          `json:"routing,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

func (o *Order) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 18, "order")
	if err != nil {
		return err
	}
	*o = Order{
		ID: r.i64(0), GroupID: r.i64(1), ClientID: r.i64(2), Symbol: r.str(3),
		Created: r.mts(4), Updated: r.mts(5), Amount: r.dec(6), AmountOrig: r.dec(7),
		Type: OrderType(r.str(8)), TypePrev: OrderType(r.str(9)), TimeInForce: r.mts(10),
		Flags: r.i64(12), Status: r.str(13), Price: r.dec(16), PriceAvg: r.dec(17),
		PriceTrailing: r.dec(18), PriceAuxLimit: r.dec(19), Notify: r.boolean(23),
		Hidden: r.boolean(24), PlacedID: r.i64(25), Routing: r.str(28), Meta: r.raw(31),
	}
	return nil
}

// OrderFilter narrows the active orders listing. A ClientID must come with
// its ClientIDDate (YYYY-MM-DD).
type OrderFilter struct {
	Symbol       string
	IDs          []int64
	GroupID      int64
	ClientID     int64
	ClientIDDate string
}

func (f OrderFilter) payload() (map[string]any, error) {
	m := map[string]any{}
	if len(f.IDs) > 0 {
		m["id"] = f.IDs
	}
	if f.GroupID != 0 {
		m["gid"] = f.GroupID
	}
	if f.ClientID != 0 {
		if f.ClientIDDate == "" {
			return nil, invalidArg("client order id requires its date")
		}
		m["cid"] = f.ClientID
		m["cid_date"] = f.ClientIDDate
	}
	return m, nil
}

// OrderRequest describes a new order. Negative amounts sell.
type OrderRequest struct {
	Symbol        string
	Type          OrderType
	Amount        decimal.Decimal
	Price         decimal.Decimal
	Leverage      int
	PriceTrailing *decimal.Decimal
	PriceAuxLimit *decimal.Decimal
	PriceOCOStop  *decimal.Decimal
	GroupID       int64
	ClientID      int64
	Flags         int64
	TimeInForce   time.Time
}

func (r OrderRequest) payload() (map[string]any, error) {
	if err := requireTrading(r.Symbol); err != nil {
		return nil, err
	}
	if _, err := ParseOrderType(string(r.Type)); err != nil {
		return nil, err
	}
	if r.Amount.IsZero() {
		return nil, invalidArg("order amount must not be zero")
	}
	if r.Type.needsPrice() && !r.Price.IsPositive() {
		return nil, invalidArg("%s order needs a positive price", r.Type)
	}
	m := map[string]any{
		"symbol": r.Symbol,
		"type":   string(r.Type),
		"amount": r.Amount.String(),
		"price":  r.Price.String(),
	}
	if r.Leverage != 0 {
		m["lev"] = r.Leverage
	}
	setDecimal(m, "price_trailing", r.PriceTrailing)
	setDecimal(m, "price_aux_limit", r.PriceAuxLimit)
	setDecimal(m, "price_oco_stop", r.PriceOCOStop)
	if r.GroupID != 0 {
		m["gid"] = r.GroupID
	}
	if r.ClientID != 0 {
		m["cid"] = r.ClientID
	}
	if r.Flags != 0 {
		m["flags"] = r.Flags
	}
	if !r.TimeInForce.IsZero() {
		m["tif"] = r.TimeInForce.UTC().Format(tifLayout)
	}
	return m, nil
}

// OrderUpdate changes an active order. Nil and zero fields are left as they are.
type OrderUpdate struct {
	ID            int64
	Amount        *decimal.Decimal
	Price         *decimal.Decimal
	Delta         *decimal.Decimal
	Leverage      int
	PriceTrailing *decimal.Decimal
	PriceAuxLimit *decimal.Decimal
	GroupID       int64
	ClientID      int64
	ClientIDDate  string
	Flags         int64
	TimeInForce   time.Time
}

func (u OrderUpdate) payload() (map[string]any, error) {
	if u.ID <= 0 {
		return nil, invalidArg("order id is required")
	}
	m := map[string]any{"id": u.ID}
	setDecimal(m, "amount", u.Amount)
	setDecimal(m, "price", u.Price)
	setDecimal(m, "delta", u.Delta)
	setDecimal(m, "price_trailing", u.PriceTrailing)
	setDecimal(m, "price_aux_limit", u.PriceAuxLimit)
	if u.Leverage != 0 {
		m["lev"] = u.Leverage
	}
	if u.GroupID != 0 {
		m["gid"] = u.GroupID
	}
	if u.ClientID != 0 {
		m["cid"] = u.ClientID
	}
	if u.ClientIDDate != "" {
		m["cid_date"] = u.ClientIDDate
	}
	if u.Flags != 0 {
		m["flags"] = u.Flags
	}
	if !u.TimeInForce.IsZero() {
		m["tif"] = u.TimeInForce.UTC().Format(tifLayout)
	}
	return m, nil
}

// OrderCancel identifies an order by ID, or by client ID and its date.
type OrderCancel struct {
	ID           int64
	ClientID     int64
	ClientIDDate string
}

func (oc OrderCancel) payload() (map[string]any, error) {
	switch {
	case oc.ID != 0:
		return map[string]any{"id": oc.ID}, nil
	case oc.ClientID != 0:
		if oc.ClientIDDate == "" {
			return nil, invalidArg("client order id requires its date")
		}
		return map[string]any{"cid": oc.ClientID, "cid_date": oc.ClientIDDate}, nil
	}
	return nil, invalidArg("either an order id or a client order id is required")
}

func setDecimal(m map[string]any, key string, d *decimal.Decimal) {
	if d != nil {
		m[key] = d.String()
	}
}

// ── Endpoints ──────────────────────────────────────────────────────────────

// Orders lists active orders, optionally narrowed by f.
func (c *Client) Orders(ctx context.Context, f OrderFilter) ([]Order, error) {
	path := "auth/r/orders"
	if f.Symbol != "" {
		if err := requireTrading(f.Symbol); err != nil {
			return nil, err
		}
		path += "/" + url.PathEscape(f.Symbol)
	}
	payload, err := f.payload()
	if err != nil {
		return nil, err
	}
	var out []Order
	err = c.postAuth(ctx, path, nil, payload, &out)
	return out, err
}

// OrdersHistory lists closed and cancelled orders. symbol may be empty.
func (c *Client) OrdersHistory(ctx context.Context, symbol string, p HistoryParams) ([]Order, error) {
	path := "auth/r/orders"
	if symbol != "" {
		if err := requireTrading(symbol); err != nil {
			return nil, err
		}
		path += "/" + url.PathEscape(symbol)
	}
	if err := p.validate(maxOrdersHistoryLimit); err != nil {
		return nil, err
	}
	var out []Order
	err := c.postAuth(ctx, path+"/hist", nil, p.body(), &out)
	return out, err
}

// SubmitOrder places a new order and returns the orders the exchange created.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) ([]Order, error) {
	payload, err := req.payload()
	if err != nil {
		return nil, err
	}
	var out []Order
	_, err = c.postNotification(ctx, "auth/w/order/submit", payload, &out)
	return out, err
}

// UpdateOrder amends an active order.
func (c *Client) UpdateOrder(ctx context.Context, u OrderUpdate) (*Order, error) {
	payload, err := u.payload()
	if err != nil {
		return nil, err
	}
	var out Order
	if _, err := c.postNotification(ctx, "auth/w/order/update", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels one order.
func (c *Client) CancelOrder(ctx context.Context, oc OrderCancel) (*Order, error) {
	payload, err := oc.payload()
	if err != nil {
		return nil, err
	}
	var out Order
	if _, err := c.postNotification(ctx, "auth/w/order/cancel", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAllOrders cancels every active order and returns them.
func (c *Client) CancelAllOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	_, err := c.postNotification(ctx, "auth/w/order/cancel/multi", map[string]any{"all": 1}, &out)
	return out, err
}
