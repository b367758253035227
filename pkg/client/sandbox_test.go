package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/bfx/internal/sandbox"
	"github.com/jmerrifield20/bfx/pkg/client"
)

func startSandbox(t *testing.T) (*sandbox.Exchange, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	x := sandbox.New(sandbox.Config{Keys: map[string]string{testCreds.APIKey: testCreds.APISecret}}, zap.NewNop())
	srv := httptest.NewServer(x.Handler())
	t.Cleanup(srv.Close)
	return x, srv
}

func TestSandbox_signatureCoversExactBody(t *testing.T) {
	x, srv := startSandbox(t)
	c := newTestClient(t, srv)

	orders, err := c.SubmitOrder(context.Background(), client.OrderRequest{
		Symbol:   "tBTCUSD",
		Type:     client.OrderExchangeLimit,
		Amount:   decimal.RequireFromString("0.0125"),
		Price:    decimal.RequireFromString("29999.5"),
		ClientID: 77,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(orders) != 1 || !orders[0].Amount.Equal(decimal.RequireFromString("0.0125")) || orders[0].ClientID != 77 {
		t.Errorf("echoed orders = %+v", orders)
	}

	reqs := x.Requests()
	if len(reqs) != 1 {
		t.Fatalf("sandbox accepted %d requests", len(reqs))
	}
	var sent map[string]any
	if err := json.Unmarshal(reqs[0].Body, &sent); err != nil {
		t.Fatalf("recorded body: %v", err)
	}
	if sent["symbol"] != "tBTCUSD" || sent["amount"] != "0.0125" {
		t.Errorf("recorded body = %s", reqs[0].Body)
	}
	if want := client.Sign([]byte(testCreds.APISecret), "auth/w/order/submit", client.Nonce(reqs[0].Nonce), reqs[0].Body); reqs[0].Signature != want {
		t.Error("recorded signature does not match recorded body")
	}
}

func TestSandbox_wrongSecretIsNotRetried(t *testing.T) {
	x, srv := startSandbox(t)
	c, err := client.New(client.Credentials{APIKey: testCreds.APIKey, APISecret: "wrong"},
		client.WithAuthBaseURL(srv.URL+"/v2"), client.WithRetryInterval(0))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.Wallets(context.Background())
	if !errors.Is(err, client.ErrInvalidKeyDigest) {
		t.Fatalf("expected ErrInvalidKeyDigest, got %v", err)
	}
	if client.KindOf(err) != client.KindExchange {
		t.Errorf("kind = %v", client.KindOf(err))
	}
	if len(x.Requests()) != 0 {
		t.Error("sandbox accepted a badly signed request")
	}
}

func TestSandbox_recoversFromRejectedNonces(t *testing.T) {
	x, srv := startSandbox(t)
	c := newTestClient(t, srv)
	x.RejectNextNonces(2)

	wallets, err := c.Wallets(context.Background())
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if len(wallets) != 2 {
		t.Errorf("wallets = %+v", wallets)
	}
	if len(x.Requests()) != 1 {
		t.Errorf("expected the third attempt to be the only accepted request, got %d", len(x.Requests()))
	}
}

func TestSandbox_staleNonceFloorExhaustsRetries(t *testing.T) {
	x, srv := startSandbox(t)
	c := newTestClient(t, srv, client.WithMaxAttempts(3))
	// Another process already used nonces far in the future.
	x.SetLastNonce(testCreds.APIKey, 1<<62)

	_, err := c.Wallets(context.Background())
	var re *client.RetriesExhaustedError
	if !errors.As(err, &re) || re.Attempts != 3 {
		t.Fatalf("expected RetriesExhaustedError after 3 attempts, got %v", err)
	}
}

func TestSandbox_sharedClientConcurrentCalls(t *testing.T) {
	x, srv := startSandbox(t)
	c := newTestClient(t, srv, client.WithMaxAttempts(20))

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Wallets(context.Background())
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, client.ErrRetriesExhausted):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	reqs := x.Requests()
	if len(reqs) != succeeded {
		t.Errorf("sandbox accepted %d requests, callers saw %d successes", len(reqs), succeeded)
	}
	for i := 1; i < len(reqs); i++ {
		if reqs[i].Nonce <= reqs[i-1].Nonce {
			t.Fatalf("accepted nonces out of order: %d after %d", reqs[i].Nonce, reqs[i-1].Nonce)
		}
	}
}

func TestSandbox_publicEndpoints(t *testing.T) {
	_, srv := startSandbox(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	st, err := c.PlatformStatus(ctx)
	if err != nil || !st.Operative {
		t.Fatalf("platform status: %+v, %v", st, err)
	}
	if _, err := c.TradingTicker(ctx, "tBTCUSD"); err != nil {
		t.Errorf("trading ticker: %v", err)
	}
	if _, err := c.FundingTicker(ctx, "fUSD"); err != nil {
		t.Errorf("funding ticker: %v", err)
	}
}
