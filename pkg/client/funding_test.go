package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jmerrifield20/bfx/pkg/client"
)

const (
	offerRow  = `[41238905,"fUSD",1574698260000,1574698260000,1000,1000,"LIMIT",null,null,0,"ACTIVE",null,null,null,0.0002,30,false,false,null,true,null]`
	creditRow = `[26222883,"fUSD",1,1574698260000,1574698260100,500,0,"ACTIVE","FIXED",null,null,0.0002,30,1574698260000,1574784660000,false,false,null,true,null,false,"tBTCUSD"]`
)

func TestFundingOffer_decodes(t *testing.T) {
	var o client.FundingOffer
	if err := json.Unmarshal([]byte(offerRow), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.ID != 41238905 || o.Type != client.FundingOfferLimit || o.Period != 30 || !o.Renew {
		t.Errorf("offer = %+v", o)
	}
	if !o.Rate.Equal(decimal.RequireFromString("0.0002")) {
		t.Errorf("rate = %s", o.Rate)
	}
}

func TestFundingCredit_decodes(t *testing.T) {
	var fc client.FundingCredit
	if err := json.Unmarshal([]byte(creditRow), &fc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fc.ID != 26222883 || fc.Side != 1 || fc.RateType != "FIXED" || fc.Pair != "tBTCUSD" || !fc.Renew || fc.NoClose {
		t.Errorf("credit = %+v", fc)
	}
	if fc.LastPayout.IsZero() || fc.Opened.IsZero() {
		t.Errorf("timestamps not decoded: %+v", fc)
	}
}

func TestSubmitFundingOffer(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, notificationOf("fon-req", offerRow, "SUCCESS", "Submitting funding offer")))
	c := newTestClient(t, srv)

	offer, err := c.SubmitFundingOffer(context.Background(), client.FundingOfferRequest{
		Symbol: "fUSD",
		Type:   client.FundingOfferLimit,
		Amount: decimal.NewFromInt(1000),
		Rate:   decimal.RequireFromString("0.0002"),
		Period: 30,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if offer.ID != 41238905 {
		t.Errorf("offer = %+v", offer)
	}
	req := rec.all()[0]
	if req.Path != "/v2/auth/w/funding/offer/submit" {
		t.Errorf("path = %q", req.Path)
	}
	body := payloadOf(t, req)
	if body["amount"] != "1000" || body["rate"] != "0.0002" || body["period"] != float64(30) || body["type"] != "LIMIT" {
		t.Errorf("body = %v", body)
	}
}

func TestSubmitFundingOffer_validation(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, `[]`))
	c := newTestClient(t, srv)

	ok := client.FundingOfferRequest{Symbol: "fUSD", Type: client.FundingOfferLimit, Amount: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.0001"), Period: 2}
	cases := map[string]func(r *client.FundingOfferRequest){
		"trading symbol":  func(r *client.FundingOfferRequest) { r.Symbol = "tBTCUSD" },
		"period too low":  func(r *client.FundingOfferRequest) { r.Period = 1 },
		"period too high": func(r *client.FundingOfferRequest) { r.Period = 121 },
		"zero amount":     func(r *client.FundingOfferRequest) { r.Amount = decimal.Zero },
		"negative rate":   func(r *client.FundingOfferRequest) { r.Rate = decimal.NewFromInt(-1) },
		"unknown type":    func(r *client.FundingOfferRequest) { r.Type = "FLOATING" },
	}
	for name, mutate := range cases {
		req := ok
		mutate(&req)
		if _, err := c.SubmitFundingOffer(context.Background(), req); !errors.Is(err, client.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
	if rec.count() != 0 {
		t.Errorf("invalid offers reached the network")
	}
}

func TestCancelAllFundingOffers_derivesCurrency(t *testing.T) {
	cases := map[string]string{"fUSD": "USD", "tETH:USDT": "USDT", "tBTCEUR": "EUR"}
	for symbol, want := range cases {
		t.Run(symbol, func(t *testing.T) {
			srv, rec := stubExchange(t, always(http.StatusOK, notificationOf("foc_all-req", "null", "SUCCESS", "")))
			c := newTestClient(t, srv)

			n, err := c.CancelAllFundingOffers(context.Background(), symbol)
			if err != nil {
				t.Fatalf("cancel all: %v", err)
			}
			if n.Status != "SUCCESS" {
				t.Errorf("notification = %+v", n)
			}
			req := rec.all()[0]
			if req.Path != "/v2/auth/w/funding/offer/cancel/all" || payloadOf(t, req)["currency"] != want {
				t.Errorf("request = %s %s", req.Path, req.Body)
			}
		})
	}
}

func TestCancelFundingOffer(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, notificationOf("foc-req", offerRow, "SUCCESS", "")))
	c := newTestClient(t, srv)

	if _, err := c.CancelFundingOffer(context.Background(), 41238905); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if body := payloadOf(t, rec.all()[0]); body["id"] != float64(41238905) {
		t.Errorf("body = %v", body)
	}
	if _, err := c.CancelFundingOffer(context.Background(), 0); !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("id 0 accepted: %v", err)
	}
}

func TestFundingHistory_queryParams(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, "["+creditRow+"]"))
	c := newTestClient(t, srv)

	credits, err := c.FundingCreditsHistory(context.Background(), "fUSD", client.HistoryParams{Limit: 25})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(credits) != 1 {
		t.Errorf("credits = %+v", credits)
	}
	req := rec.all()[0]
	if req.Path != "/v2/auth/r/funding/credits/fUSD/hist" || req.Query.Get("limit") != "25" {
		t.Errorf("request = %s?%s", req.Path, req.Query.Encode())
	}
	if string(req.Body) != "{}" {
		t.Errorf("body = %s", req.Body)
	}

	if _, err := c.FundingOffersHistory(context.Background(), "fUSD", client.HistoryParams{Limit: 501}); !errors.Is(err, client.ErrInvalidArgument) {
		t.Errorf("limit 501 accepted: %v", err)
	}
}

func TestFundingOffers_tooManyActiveOffers(t *testing.T) {
	srv, _ := stubExchange(t, always(http.StatusOK,
		notificationOf("fon-req", "null", "ERROR", "Invalid offer: too many active offers")))
	c := newTestClient(t, srv)

	_, err := c.SubmitFundingOffer(context.Background(), client.FundingOfferRequest{
		Symbol: "fUSD", Type: client.FundingOfferLimit, Amount: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.0001"), Period: 2,
	})
	if !errors.Is(err, client.ErrTooManyActiveOffers) {
		t.Errorf("expected ErrTooManyActiveOffers, got %v", err)
	}
}
