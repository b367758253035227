package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxLedgerLimit = 2500

// WalletType names one of the account's wallets.
type WalletType string

const (
	WalletExchange WalletType = "exchange"
	WalletMargin   WalletType = "margin"
	WalletFunding  WalletType = "funding"
)

// ParseWalletType validates a wallet name.
func ParseWalletType(s string) (WalletType, error) {
	switch w := WalletType(strings.ToLower(strings.TrimSpace(s))); w {
	case WalletExchange, WalletMargin, WalletFunding:
		return w, nil
	}
	return "", invalidArg("unknown wallet %q", s)
}

// DepositMethod is the exchange's name for a deposit network.
type DepositMethod string

var depositMethods = map[DepositMethod]bool{
	"bitcoin": true, "litecoin": true, "ethereum": true,
	"tetheruso": true, "tetherusl": true, "tetherusx": true, "tetheruss": true,
	"ethereumc": true, "zcash": true, "monero": true, "iota": true,
}

// ParseDepositMethod validates a deposit method name such as "bitcoin" or
// "tetherusl".
func ParseDepositMethod(s string) (DepositMethod, error) {
	m := DepositMethod(strings.ToLower(strings.TrimSpace(s)))
	if !depositMethods[m] {
		return "", invalidArg("unknown deposit method %q", s)
	}
	return m, nil
}

// LedgerCategory filters ledger entries by kind.
type LedgerCategory int

const (
	LedgerExchange   LedgerCategory = 5
	LedgerInterest   LedgerCategory = 28
	LedgerTransfer   LedgerCategory = 51
	LedgerTradingFee LedgerCategory = 201
)

var ledgerCategoryNames = map[string]LedgerCategory{
	"exchange":   LedgerExchange,
	"interest":   LedgerInterest,
	"transfer":   LedgerTransfer,
	"tradingfee": LedgerTradingFee,
}

// ParseLedgerCategory accepts a category name ("Interest", "trading-fee")
// or its numeric code.
func ParseLedgerCategory(s string) (LedgerCategory, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	if c, ok := ledgerCategoryNames[norm]; ok {
		return c, nil
	}
	if n, err := strconv.Atoi(norm); err == nil && n > 0 {
		return LedgerCategory(n), nil
	}
	return 0, invalidArg("unknown ledger category %q", s)
}

// Wallet is a balance in one currency of one wallet.
type Wallet struct {
	Type              WalletType      `json:"type"`
	Currency          string          `json:"currency"`
	Balance           decimal.Decimal `json:"balance"`
	UnsettledInterest decimal.Decimal `json:"unsettled_interest"`
	Available         decimal.Decimal `json:"available"`
}

func (w *Wallet) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 5, "wallet")
	if err != nil {
		return err
	}
	*w = Wallet{
		Type: WalletType(r.str(0)), Currency: r.str(1), Balance: r.dec(2),
		UnsettledInterest: r.dec(3), Available: r.dec(4),
	}
	return nil
}

// LedgerEntry is one balance movement.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	Currency    string          `json:"currency"`
	Wallet      string          `json:"wallet"`
	Time        time.Time       `json:"time"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Description string          `json:"description"`
}

func (e *LedgerEntry) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 7, "ledger entry")
	if err != nil {
		return err
	}
	*e = LedgerEntry{
		ID: r.i64(0), Currency: r.str(1), Wallet: r.str(2), Time: r.mts(3),
		Amount: r.dec(5), Balance: r.dec(6), Description: r.str(8),
	}
	return nil
}

// LedgerParams narrows a ledger query.
type LedgerParams struct {
	Category LedgerCategory
	HistoryParams
}

// User is the account profile. Only the commonly used fields of the
// exchange's record are decoded.
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	Created           time.Time `json:"created"`
	Verified          bool      `json:"verified"`
	VerificationLevel int64     `json:"verification_level"`
	Timezone          string    `json:"timezone"`
	Locale            string    `json:"locale"`
	Company           string    `json:"company"`
	EmailVerified     bool      `json:"email_verified"`
	SubaccountType    string    `json:"subaccount_type,omitempty"`
	MasterAccountID   int64     `json:"master_account_id,omitempty"`
	IsGroupMaster     bool      `json:"is_group_master"`
	MerchantEnabled   bool      `json:"merchant_enabled"`
	TwoFactorModes    []string  `json:"two_factor_modes"`
	LastLogin         time.Time `json:"last_login,omitzero"`
	ComplCountries    []string  `json:"compl_countries,omitempty"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 11, "user")
	if err != nil {
		return err
	}
	*u = User{
		ID: r.i64(0), Email: r.str(1), Username: r.str(2), Created: r.mts(3),
		Verified: r.boolean(4), VerificationLevel: r.i64(5), Timezone: r.str(7),
		Locale: r.str(8), Company: r.str(9), EmailVerified: r.boolean(10),
		SubaccountType: r.str(12), MasterAccountID: r.i64(16), IsGroupMaster: r.boolean(18),
		MerchantEnabled: r.boolean(22), TwoFactorModes: r.strs(26), LastLogin: r.mts(44),
		ComplCountries: r.strs(49),
	}
	return nil
}

// Permission is the access an API key has to one scope.
type Permission struct {
	Scope string `json:"scope"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 3, "permission")
	if err != nil {
		return err
	}
	*p = Permission{Scope: r.str(0), Read: r.boolean(1), Write: r.boolean(2)}
	return nil
}

// KeyPermissions maps scopes such as "orders" or "withdraw" to the key's
// access.
type KeyPermissions map[string]Permission

// Scopes returns the scope names in sorted order.
func (kp KeyPermissions) Scopes() []string {
	out := make([]string, 0, len(kp))
	for s := range kp {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DepositAddress is an address to deposit a currency to.
type DepositAddress struct {
	Method      string `json:"method"`
	Currency    string `json:"currency"`
	Address     string `json:"address"`
	PoolAddress string `json:"pool_address,omitempty"`
}

func (d *DepositAddress) UnmarshalJSON(data []byte) error {
	r, err := decodeRow(data, 5, "deposit address")
	if err != nil {
		return err
	}
	*d = DepositAddress{Method: r.str(1), Currency: r.str(2), Address: r.str(4), PoolAddress: r.str(5)}
	return nil
}

// ── Endpoints ──────────────────────────────────────────────────────────────

// UserInfo returns the account profile.
func (c *Client) UserInfo(ctx context.Context) (*User, error) {
	var u User
	if err := c.postAuth(ctx, "auth/r/info/user", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Wallets lists every wallet balance.
func (c *Client) Wallets(ctx context.Context) ([]Wallet, error) {
	var out []Wallet
	err := c.postAuth(ctx, "auth/r/wallets", nil, nil, &out)
	return out, err
}

// Ledgers lists balance movements of a currency, newest first.
func (c *Client) Ledgers(ctx context.Context, currency string, p LedgerParams) ([]LedgerEntry, error) {
	if currency == "" {
		return nil, invalidArg("currency is required")
	}
	if err := p.validate(maxLedgerLimit); err != nil {
		return nil, err
	}
	body := map[string]any{}
	if p.Category != 0 {
		body["category"] = int(p.Category)
	}
	if !p.Start.IsZero() {
		body["start"] = p.Start.UnixMilli()
	}
	if !p.End.IsZero() {
		body["end"] = p.End.UnixMilli()
	}
	var query url.Values
	if p.Limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(p.Limit)}}
	}
	var out []LedgerEntry
	err := c.postAuth(ctx, "auth/r/ledgers/"+url.PathEscape(currency)+"/hist", query, body, &out)
	return out, err
}

// KeyPermissions reports what the configured API key may do.
func (c *Client) KeyPermissions(ctx context.Context) (KeyPermissions, error) {
	var rows []Permission
	if err := c.postAuth(ctx, "auth/r/permissions", nil, nil, &rows); err != nil {
		return nil, err
	}
	kp := make(KeyPermissions, len(rows))
	for _, p := range rows {
		kp[p.Scope] = p
	}
	return kp, nil
}

// DepositAddress returns the current deposit address of wallet for method.
// The exchange reuses the address until it is renewed.
func (c *Client) DepositAddress(ctx context.Context, wallet WalletType, method DepositMethod) ([]DepositAddress, error) {
	if _, err := ParseWalletType(string(wallet)); err != nil {
		return nil, err
	}
	if _, err := ParseDepositMethod(string(method)); err != nil {
		return nil, err
	}
	payload := map[string]any{"wallet": string(wallet), "method": string(method), "op_renew": 0}
	var data json.RawMessage
	if _, err := c.postNotification(ctx, "auth/w/deposit/address", payload, &data); err != nil {
		return nil, err
	}
	return decodeAddresses(data)
}

// decodeAddresses accepts a single address row or a list of them.
func decodeAddresses(data json.RawMessage) ([]DepositAddress, error) {
	var rows []json.RawMessage
	if err := decode("auth/w/deposit/address", data, &rows); err != nil {
		return nil, err
	}
	if len(rows) > 0 && strings.HasPrefix(strings.TrimSpace(string(rows[0])), "[") {
		var out []DepositAddress
		if err := decode("auth/w/deposit/address", data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one DepositAddress
	if err := decode("auth/w/deposit/address", data, &one); err != nil {
		return nil, err
	}
	return []DepositAddress{one}, nil
}
