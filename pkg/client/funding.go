package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	minFundingPeriod       = 2
	maxFundingPeriod       = 120
	maxFundingHistoryLimit = 500
)

// FundingOfferType is the rate type of a funding offer.
type FundingOfferType string

const (
	FundingOfferLimit       FundingOfferType = "LIMIT"
	FundingOfferFRRDeltaVar FundingOfferType = "FRRDELTAVAR"
	FundingOfferFRRDeltaFix FundingOfferType = "FRRDELTAFIX"
)

// ParseFundingOfferType validates a funding offer type, case-insensitively.
func ParseFundingOfferType(s string) (FundingOfferType, error) {
	switch t := FundingOfferType(strings.ToUpper(strings.TrimSpace(s))); t {
	case FundingOfferLimit, FundingOfferFRRDeltaVar, FundingOfferFRRDeltaFix:
		return t, nil
	}
	return "", invalidArg("unknown funding offer type %q", s)
}

// FundingOffer is an offer to lend in the funding market.
type FundingOffer struct {
	ID         int64            `json:"id"`
	Symbol     string           `json:"symbol"`
	Created    time.Time        `json:"created"`
	Updated    time.Time        `json:"updated"`
	Amount     decimal.Decimal  `json:"amount"`
	AmountOrig decimal.Decimal  `json:"amount_orig"`
	Type       FundingOfferType `json:"type"`
	Flags      int64            `json:"flags,omitempty"`
	Status     string           `json:"status"`
	Rate       decimal.Decimal  `json:"rate"`
	Period     int64            `json:"period"`
	Notify     bool             `json:"notify"`
	Hidden     bool             `json:"hidden"`
	Renew      bool             `json:"renew"`
}

func (o *FundingOffer) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 16, "funding offer")
	if err != nil {
		return err
	}
	*o = FundingOffer{
		ID: r.i64(0), Symbol: r.str(1), Created: r.mts(2), Updated: r.mts(3),
		Amount: r.dec(4), AmountOrig: r.dec(5), Type: FundingOfferType(r.str(6)),
		Flags: r.i64(9), Status: r.str(10), Rate: r.dec(14), Period: r.i64(15),
		Notify: r.boolean(16), Hidden: r.boolean(17), Renew: r.boolean(19),
	}
	return nil
}

// FundingCredit is funding currently lent or borrowed in a position.
type FundingCredit struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       int64           `json:"side"` // 1 lender, -1 borrower, 0 both
	Created    time.Time       `json:"created"`
	Updated    time.Time       `json:"updated"`
	Amount     decimal.Decimal `json:"amount"`
	Flags      int64           `json:"flags,omitempty"`
	Status     string          `json:"status"`
	RateType   string          `json:"rate_type"`
	Rate       decimal.Decimal `json:"rate"`
	Period     int64           `json:"period"`
	Opened     time.Time       `json:"opened"`
	LastPayout time.Time       `json:"last_payout,omitzero"`
	Notify     bool            `json:"notify"`
	Hidden     bool            `json:"hidden"`
	Renew      bool            `json:"renew"`
	NoClose    bool            `json:"no_close"`
	Pair       string          `json:"pair"`
}

func (fc *FundingCredit) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 15, "funding credit")
	if err != nil {
		return err
	}
	*fc = FundingCredit{
		ID: r.i64(0), Symbol: r.str(1), Side: r.i64(2), Created: r.mts(3), Updated: r.mts(4),
		Amount: r.dec(5), Flags: r.i64(6), Status: r.str(7), RateType: r.str(8),
		Rate: r.dec(11), Period: r.i64(12), Opened: r.mts(13), LastPayout: r.mts(14),
		Notify: r.boolean(15), Hidden: r.boolean(16), Renew: r.boolean(18),
		NoClose: r.boolean(20), Pair: r.str(21),
	}
	return nil
}

// FundingOfferRequest describes a new funding offer. Period is in days.
type FundingOfferRequest struct {
	Symbol string
	Type   FundingOfferType
	Amount decimal.Decimal
	Rate   decimal.Decimal
	Period int
	Flags  int64
}

func (r FundingOfferRequest) payload() (map[string]any, error) {
	if err := requireFunding(r.Symbol); err != nil {
		return nil, err
	}
	if _, err := ParseFundingOfferType(string(r.Type)); err != nil {
		return nil, err
	}
	if r.Period < minFundingPeriod || r.Period > maxFundingPeriod {
		return nil, invalidArg("funding period must be between %d and %d days, got %d", minFundingPeriod, maxFundingPeriod, r.Period)
	}
	if r.Amount.IsZero() {
		return nil, invalidArg("funding amount must not be zero")
	}
	if r.Rate.IsNegative() {
		return nil, invalidArg("funding rate must not be negative")
	}
	m := map[string]any{
		"type":   string(r.Type),
		"symbol": r.Symbol,
		"amount": r.Amount.String(),
		"rate":   r.Rate.String(),
		"period": r.Period,
	}
	if r.Flags != 0 {
		m["flags"] = r.Flags
	}
	return m, nil
}

// ── Endpoints ──────────────────────────────────────────────────────────────

// FundingOffers lists active funding offers for a currency.
func (c *Client) FundingOffers(ctx context.Context, symbol string) ([]FundingOffer, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	var out []FundingOffer
	err := c.postAuth(ctx, "auth/r/funding/offers/"+url.PathEscape(symbol), nil, nil, &out)
	return out, err
}

// FundingOffersHistory lists past funding offers for a currency.
func (c *Client) FundingOffersHistory(ctx context.Context, symbol string, p HistoryParams) ([]FundingOffer, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	if err := p.validate(maxFundingHistoryLimit); err != nil {
		return nil, err
	}
	var out []FundingOffer
	err := c.postAuth(ctx, "auth/r/funding/offers/"+url.PathEscape(symbol)+"/hist", p.values(false), nil, &out)
	return out, err
}

// FundingCredits lists funding used in active positions for a currency.
func (c *Client) FundingCredits(ctx context.Context, symbol string) ([]FundingCredit, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	var out []FundingCredit
	err := c.postAuth(ctx, "auth/r/funding/credits/"+url.PathEscape(symbol), nil, nil, &out)
	return out, err
}

// FundingCreditsHistory lists past funding credits for a currency.
func (c *Client) FundingCreditsHistory(ctx context.Context, symbol string, p HistoryParams) ([]FundingCredit, error) {
	if err := requireFunding(symbol); err != nil {
		return nil, err
	}
	if err := p.validate(maxFundingHistoryLimit); err != nil {
		return nil, err
	}
	var out []FundingCredit
	err := c.postAuth(ctx, "auth/r/funding/credits/"+url.PathEscape(symbol)+"/hist", p.values(false), nil, &out)
	return out, err
}

// SubmitFundingOffer places a funding offer.
func (c *Client) SubmitFundingOffer(ctx context.Context, req FundingOfferRequest) (*FundingOffer, error) {
	payload, err := req.payload()
	if err != nil {
		return nil, err
	}
	var out FundingOffer
	if _, err := c.postNotification(ctx, "auth/w/funding/offer/submit", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelFundingOffer cancels one funding offer.
func (c *Client) CancelFundingOffer(ctx context.Context, id int64) (*FundingOffer, error) {
	if id <= 0 {
		return nil, invalidArg("funding offer id is required")
	}
	var out FundingOffer
	if _, err := c.postNotification(ctx, "auth/w/funding/offer/cancel", map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAllFundingOffers cancels every funding offer in the currency of
// symbol. Both funding symbols and trading pairs are accepted.
func (c *Client) CancelAllFundingOffers(ctx context.Context, symbol string) (*Notification, error) {
	ccy := CurrencyFromSymbol(symbol)
	if ccy == "" {
		return nil, invalidArg("cannot derive a currency from %q", symbol)
	}
	return c.postNotification(ctx, "auth/w/funding/offer/cancel/all", map[string]any{"currency": ccy}, nil)
}
