package client_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jmerrifield20/bfx/pkg/client"
)

const (
	nonceSmall = `["error",10114,"nonce: small"]`
	walletsOK  = `[["exchange","USD",1000.5,0,1000.5,null,null]]`
)

func nonceOf(t *testing.T, req recorded) int64 {
	t.Helper()
	n, err := strconv.ParseInt(req.Header.Get(client.HeaderNonce), 10, 64)
	if err != nil {
		t.Fatalf("bad nonce header %q", req.Header.Get(client.HeaderNonce))
	}
	return n
}

func TestAuthenticated_givesUpAfterMaxAttempts(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusInternalServerError, nonceSmall))
	c := newTestClient(t, srv, client.WithMaxAttempts(4))

	_, err := c.Wallets(context.Background())

	var re *client.RetriesExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetriesExhaustedError, got %v", err)
	}
	if re.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", re.Attempts)
	}
	if rec.count() != 4 {
		t.Errorf("expected exactly 4 requests, got %d", rec.count())
	}
	if re.Last == nil || re.Last.Code != client.CodeNonceTooSmall {
		t.Errorf("Last = %+v", re.Last)
	}
	if !errors.Is(err, client.ErrRetriesExhausted) || !errors.Is(err, client.ErrNonceTooSmall) {
		t.Errorf("errors.Is chain broken: %v", err)
	}
	if client.KindOf(err) != client.KindRetriesExhausted {
		t.Errorf("kind = %v", client.KindOf(err))
	}
}

func TestAuthenticated_defaultBudgetIsSixAttempts(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusInternalServerError, nonceSmall))
	c := newTestClient(t, srv)

	if _, err := c.Wallets(context.Background()); !errors.Is(err, client.ErrRetriesExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if rec.count() != client.DefaultMaxAttempts {
		t.Errorf("expected %d requests, got %d", client.DefaultMaxAttempts, rec.count())
	}
}

func TestAuthenticated_otherExchangeErrorsNotRetried(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		code   int
		target error
	}{
		{"generic", `["error",10001,"invalid order size"]`, client.CodeGeneric, nil},
		{"currency", `["error",10020,"currency: invalid"]`, client.CodeInvalidCurrency, client.ErrInvalidCurrency},
		{"digest", `["error",10100,"apikey: digest invalid"]`, client.CodeInvalidKeyDigest, client.ErrInvalidKeyDigest},
		{"rate limit", `{"error":"ERR_RATE_LIMIT"}`, client.CodeRateLimit, client.ErrRateLimited},
		{"not ready", `["error",11000,"ready: invalid"]`, client.CodeNotReady, client.ErrTemporarilyUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, rec := stubExchange(t, always(http.StatusInternalServerError, tc.body))
			c := newTestClient(t, srv)

			_, err := c.Wallets(context.Background())
			var xe *client.ExchangeError
			if !errors.As(err, &xe) {
				t.Fatalf("expected ExchangeError, got %v", err)
			}
			if xe.Code != tc.code {
				t.Errorf("code = %d, want %d", xe.Code, tc.code)
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Errorf("errors.Is(%v) = false", tc.target)
			}
			if errors.Is(err, client.ErrNonceTooSmall) {
				t.Error("non-nonce error flagged as nonce too small")
			}
			if client.KindOf(err) != client.KindExchange {
				t.Errorf("kind = %v", client.KindOf(err))
			}
			if rec.count() != 1 {
				t.Errorf("expected 1 request, got %d", rec.count())
			}
		})
	}
}

func TestAuthenticated_recoversWithFreshNonce(t *testing.T) {
	srv, rec := stubExchange(t, func(n int, _ recorded) (int, string) {
		if n == 0 {
			return http.StatusInternalServerError, nonceSmall
		}
		return http.StatusOK, walletsOK
	})
	reg := prometheus.NewRegistry()
	c := newTestClient(t, srv, client.WithMetrics(client.NewMetrics(reg)))

	wallets, err := c.Wallets(context.Background())
	if err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if len(wallets) != 1 || wallets[0].Currency != "USD" {
		t.Errorf("wallets = %+v", wallets)
	}

	reqs := rec.all()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if first, second := nonceOf(t, reqs[0]), nonceOf(t, reqs[1]); second <= first {
		t.Errorf("retry reused or lowered the nonce: %d then %d", first, second)
	}
	if string(reqs[0].Body) != string(reqs[1].Body) {
		t.Errorf("body changed between attempts: %s vs %s", reqs[0].Body, reqs[1].Body)
	}
	if reqs[0].Header.Get(client.HeaderSignature) == reqs[1].Header.Get(client.HeaderSignature) {
		t.Error("signature not recomputed for the new nonce")
	}

	expected := `
# HELP bfx_client_nonce_retries_total Total attempts retried after a nonce rejection.
# TYPE bfx_client_nonce_retries_total counter
bfx_client_nonce_retries_total 1
# HELP bfx_client_nonces_issued_total Total nonces drawn for signed requests.
# TYPE bfx_client_nonces_issued_total counter
bfx_client_nonces_issued_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"bfx_client_nonce_retries_total", "bfx_client_nonces_issued_total"); err != nil {
		t.Error(err)
	}
}

func TestAuthenticated_skipsPastNonceReportedByExchange(t *testing.T) {
	const reported = 9000000000000000
	srv, rec := stubExchange(t, func(n int, _ recorded) (int, string) {
		if n == 0 {
			return http.StatusInternalServerError, `["error",10114,"nonce: small (last 9000000000000000)"]`
		}
		return http.StatusOK, walletsOK
	})
	c := newTestClient(t, srv)

	if _, err := c.Wallets(context.Background()); err != nil {
		t.Fatalf("wallets: %v", err)
	}
	reqs := rec.all()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if got := nonceOf(t, reqs[1]); got <= reported {
		t.Errorf("second nonce %d not past reported %d", got, reported)
	}
}

func TestAuthenticated_customClassifier(t *testing.T) {
	srv, rec := stubExchange(t, func(n int, _ recorded) (int, string) {
		if n == 0 {
			return http.StatusInternalServerError, `["error",10001,"nonce out of window"]`
		}
		return http.StatusOK, walletsOK
	})
	classify := func(xe *client.ExchangeError) (bool, client.Nonce) {
		return strings.Contains(xe.Message, "window"), 0
	}
	c := newTestClient(t, srv, client.WithNonceErrorClassifier(classify))

	if _, err := c.Wallets(context.Background()); err != nil {
		t.Fatalf("wallets: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 requests, got %d", rec.count())
	}
}

func TestAuthenticated_transportFailureNotRetried(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusBadGateway, `bad gateway`))
	c := newTestClient(t, srv)

	_, err := c.Wallets(context.Background())
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", te.StatusCode)
	}
	if client.KindOf(err) != client.KindTransport {
		t.Errorf("kind = %v", client.KindOf(err))
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 request, got %d", rec.count())
	}
}

func TestAuthenticated_timeoutNotRetried(t *testing.T) {
	srv, rec := stubExchange(t, func(int, recorded) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, walletsOK
	})
	c := newTestClient(t, srv, client.WithAttemptTimeout(20*time.Millisecond))

	_, err := c.Wallets(context.Background())
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain: %v", err)
	}
	if n := rec.count(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestAuthenticated_contextCancelledWhileWaiting(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusInternalServerError, nonceSmall))
	c := newTestClient(t, srv, client.WithRetryInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Wallets(ctx)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("call blocked for %v", elapsed)
	}
	if client.KindOf(err) != client.KindTransport {
		t.Errorf("expected transport kind, got %v (%v)", client.KindOf(err), err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 request, got %d", rec.count())
	}
}

func TestAuthenticated_retryIntervalSpacesAttempts(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusInternalServerError, nonceSmall))
	c := newTestClient(t, srv, client.WithMaxAttempts(3), client.WithRetryInterval(50*time.Millisecond))

	start := time.Now()
	if _, err := c.Wallets(context.Background()); !errors.Is(err, client.ErrRetriesExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 attempts finished in %v, expected at least two intervals", elapsed)
	}
	if rec.count() != 3 {
		t.Errorf("expected 3 requests, got %d", rec.count())
	}
}

func TestAuthenticated_missingCredentials(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, walletsOK))
	c, err := client.New(client.Credentials{APIKey: "only-key"}, client.WithAuthBaseURL(srv.URL+"/v2"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Wallets(context.Background()); !errors.Is(err, client.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("request sent without credentials")
	}
}

func TestAuthenticated_signsPathWithoutQuery(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, `[]`))
	c := newTestClient(t, srv)

	if _, err := c.Ledgers(context.Background(), "USD", client.LedgerParams{HistoryParams: client.HistoryParams{Limit: 10}}); err != nil {
		t.Fatalf("ledgers: %v", err)
	}
	req := rec.all()[0]
	if req.Query.Get("limit") != "10" {
		t.Fatalf("limit not sent as query: %v", req.Query)
	}
	want := client.Sign([]byte(testCreds.APISecret), "auth/r/ledgers/USD/hist", client.Nonce(nonceOf(t, req)), req.Body)
	if got := req.Header.Get(client.HeaderSignature); got != want {
		t.Errorf("signature does not match path without query")
	}
}

// ── Classifier ──────────────────────────────────────────────────────────

func TestDefaultNonceErrorClassifier(t *testing.T) {
	cases := []struct {
		name      string
		xe        *client.ExchangeError
		retryable bool
		lastSeen  client.Nonce
	}{
		// Literal envelope the exchange sends; must keep matching.
		{"exchange literal", &client.ExchangeError{Code: 10114, Message: "nonce: small"}, true, 0},
		{"code only", &client.ExchangeError{Code: 10114, Message: ""}, true, 0},
		{"message only", &client.ExchangeError{Code: 10001, Message: "Nonce small"}, true, 0},
		{"with last nonce", &client.ExchangeError{Code: 10114, Message: "nonce: small, last 1700000000123456"}, true, 1700000000123456},
		{"short number ignored", &client.ExchangeError{Code: 10114, Message: "nonce: small 12345"}, true, 0},
		{"other error", &client.ExchangeError{Code: 10001, Message: "invalid order size"}, false, 0},
		{"nil", nil, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, lastSeen := client.DefaultNonceErrorClassifier(tc.xe)
			if retryable != tc.retryable || lastSeen != tc.lastSeen {
				t.Errorf("got (%v, %d), want (%v, %d)", retryable, lastSeen, tc.retryable, tc.lastSeen)
			}
		})
	}
}
