package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/bfx/pkg/client"
)

var testCreds = client.Credentials{APIKey: "test-key", APISecret: "test-secret"}

// ── Stub exchange ───────────────────────────────────────────────────────

type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type recorder struct {
	mu   sync.Mutex
	reqs []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recorded, len(r.reqs))
	copy(out, r.reqs)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

// stubExchange records every request and answers the n-th one (zero based)
// with whatever respond returns.
func stubExchange(t *testing.T, respond func(n int, req recorded) (int, string)) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Header: r.Header.Clone(), Body: body}

		rec.mu.Lock()
		n := len(rec.reqs)
		rec.reqs = append(rec.reqs, req)
		rec.mu.Unlock()

		status, out := respond(n, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, out)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

// always answers every request with the same status and body.
func always(status int, body string) func(int, recorded) (int, string) {
	return func(int, recorded) (int, string) { return status, body }
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithPublicBaseURL(srv.URL + "/v2"),
		client.WithAuthBaseURL(srv.URL + "/v2"),
		client.WithRetryInterval(0),
		client.WithLogger(zap.NewNop()),
	}
	c, err := client.New(testCreds, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// ── Construction ────────────────────────────────────────────────────────

func TestNew_rejectsBadOptions(t *testing.T) {
	cases := map[string]client.Option{
		"relative public url": client.WithPublicBaseURL("/v2"),
		"empty auth url":      client.WithAuthBaseURL(""),
		"zero attempts":       client.WithMaxAttempts(0),
		"nil http client":     client.WithHTTPClient(nil),
		"nil nonce source":    client.WithNonceSource(nil),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := client.New(testCreds, opt); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestMustNew_panicsOnBadOption(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	client.MustNew(testCreds, client.WithMaxAttempts(-1))
}

func TestNew_trimsTrailingSlash(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, `[1]`))
	c, err := client.New(client.Credentials{}, client.WithPublicBaseURL(srv.URL+"/v2/"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.PlatformStatus(context.Background()); err != nil {
		t.Fatalf("platform status: %v", err)
	}
	if got := rec.all()[0].Path; got != "/v2/platform/status" {
		t.Errorf("path = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusOK, `[1]`))
	c := newTestClient(t, srv, client.WithUserAgent("desk-bot/2"))
	if _, err := c.PlatformStatus(context.Background()); err != nil {
		t.Fatalf("platform status: %v", err)
	}
	if got := rec.all()[0].Header.Get("User-Agent"); got != "desk-bot/2" {
		t.Errorf("User-Agent = %q", got)
	}
}

// ── Public calls ────────────────────────────────────────────────────────

type countingNonces struct {
	mu       sync.Mutex
	next     client.Nonce
	issued   int
	advanced []client.Nonce
}

func (c *countingNonces) Next() client.Nonce {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	c.next++
	return c.next
}

func (c *countingNonces) AdvancePast(n client.Nonce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanced = append(c.advanced, n)
	if n >= c.next {
		c.next = n
	}
}

func TestPublic_neverSignsOrDrawsNonces(t *testing.T) {
	srv, rec := stubExchange(t, func(_ int, req recorded) (int, string) {
		if strings.HasSuffix(req.Path, "/platform/status") {
			return http.StatusOK, `[1]`
		}
		return http.StatusOK, `[30000.5,1.2,30001,0.8,-150,-0.005,30000.7,1520.4,30500,29500]`
	})
	nonces := &countingNonces{next: 1700000000000000}
	c := newTestClient(t, srv, client.WithNonceSource(nonces))

	ctx := context.Background()
	if st, err := c.PlatformStatus(ctx); err != nil || !st.Operative {
		t.Fatalf("platform status: %+v, %v", st, err)
	}
	if _, err := c.TradingTicker(ctx, "tBTCUSD"); err != nil {
		t.Fatalf("ticker: %v", err)
	}

	if nonces.issued != 0 {
		t.Errorf("public calls drew %d nonces", nonces.issued)
	}
	for _, req := range rec.all() {
		if req.Method != http.MethodGet {
			t.Errorf("%s used %s", req.Path, req.Method)
		}
		for _, h := range []string{client.HeaderNonce, client.HeaderAPIKey, client.HeaderSignature} {
			if req.Header.Get(h) != "" {
				t.Errorf("%s carried %s", req.Path, h)
			}
		}
	}
}

func TestPublic_errorNotRetried(t *testing.T) {
	srv, rec := stubExchange(t, always(http.StatusInternalServerError, `["error",10114,"nonce: small"]`))
	c := newTestClient(t, srv)

	_, err := c.PlatformStatus(context.Background())
	var xe *client.ExchangeError
	if !errors.As(err, &xe) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 request, got %d", rec.count())
	}
}

func TestPublic_undecodableBodyIsTransportError(t *testing.T) {
	srv, _ := stubExchange(t, always(http.StatusOK, `<html>maintenance</html>`))
	c := newTestClient(t, srv)

	_, err := c.PlatformStatus(context.Background())
	var te *client.TransportError
	if !errors.As(err, &te) || te.Op != "decode" {
		t.Fatalf("expected decode TransportError, got %v", err)
	}
	if client.KindOf(err) != client.KindTransport {
		t.Errorf("kind = %v", client.KindOf(err))
	}
}
