package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Default hosts. Public market data is served from a separate host.
const (
	DefaultPublicBaseURL = "https://api-pub.bitfinex.com/v2"
	DefaultAuthBaseURL   = "https://api.bitfinex.com/v2"

	// DefaultAttemptTimeout bounds a single HTTP attempt.
	DefaultAttemptTimeout = 10 * time.Second
)

// Version is reported in the User-Agent header.
const Version = "0.4.0"

// Client is the exchange API entry point. It is safe for concurrent use; the
// nonce source is the only state shared between calls.
type Client struct {
	publicBase string
	authBase   string
	creds      Credentials

	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	dispatch   *dispatcher

	nonces  NonceSource
	retry   RetryPolicy
	logger  *zap.Logger
	metrics *Metrics
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithPublicBaseURL overrides the host used for public endpoints.
func WithPublicBaseURL(base string) Option {
	return func(c *Client) error {
		b, err := normalizeBase(base)
		if err != nil {
			return fmt.Errorf("public base url: %w", err)
		}
		c.publicBase = b
		return nil
	}
}

// WithAuthBaseURL overrides the host used for authenticated endpoints.
func WithAuthBaseURL(base string) Option {
	return func(c *Client) error {
		b, err := normalizeBase(base)
		if err != nil {
			return fmt.Errorf("auth base url: %w", err)
		}
		c.authBase = b
		return nil
	}
}

// WithAttemptTimeout sets the timeout applied to each HTTP attempt. Zero
// disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("attempt timeout must not be negative")
		}
		c.timeout = d
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithRetryPolicy replaces the whole nonce retry policy. Zero fields take
// their defaults.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) error {
		c.retry = p
		return nil
	}
}

// WithMaxAttempts bounds the attempts of one authenticated call, including
// the first.
func WithMaxAttempts(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", n)
		}
		c.retry.MaxAttempts = n
		return nil
	}
}

// WithRetryInterval sets the minimum spacing between attempts of one call.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) error {
		c.retry.Interval = d
		return nil
	}
}

// WithNonceErrorClassifier swaps the rule that recognises nonce rejections.
func WithNonceErrorClassifier(fn NonceErrorClassifier) Option {
	return func(c *Client) error {
		c.retry.Classify = fn
		return nil
	}
}

// WithNonceSource shares a nonce source between clients that use the same
// API key.
func WithNonceSource(src NonceSource) Option {
	return func(c *Client) error {
		if src == nil {
			return fmt.Errorf("nonce source must not be nil")
		}
		c.nonces = src
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// New creates a Client. creds may be empty when only public endpoints are
// used; authenticated calls then fail with ErrMissingCredentials.
func New(creds Credentials, opts ...Option) (*Client, error) {
	c := &Client{
		publicBase: DefaultPublicBaseURL,
		authBase:   DefaultAuthBaseURL,
		creds:      creds,
		httpClient: &http.Client{},
		timeout:    DefaultAttemptTimeout,
		userAgent:  "bfx-go/" + Version,
		retry:      DefaultRetryPolicy(),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.nonces == nil {
		c.nonces = NewNonceGenerator()
	}
	c.retry = c.retry.withDefaults()
	c.dispatch = &dispatcher{httpClient: c.httpClient, timeout: c.timeout, userAgent: c.userAgent}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(creds Credentials, opts ...Option) *Client {
	c, err := New(creds, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// executePublic sends an unsigned request to the public host. It never draws
// a nonce and is never retried.
func (c *Client) executePublic(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	target := c.publicBase + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var header http.Header
	if body != nil {
		header = http.Header{"Content-Type": []string{"application/json"}}
	}

	start := time.Now()
	resp, err := c.dispatch.send(ctx, method, target, header, body)
	c.logger.Debug("public request",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		outcome := outcomeTransport
		if KindOf(err) == KindExchange {
			outcome = outcomeExchange
		}
		c.metrics.observe(callPublic, outcome, time.Since(start))
		return nil, err
	}
	c.metrics.observe(callPublic, outcomeSuccess, time.Since(start))
	return resp.Body, nil
}

// getPublic is executePublic for GET endpoints followed by decoding into v.
func (c *Client) getPublic(ctx context.Context, path string, query url.Values, v any) error {
	data, err := c.executePublic(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(path, data, v)
}

// postAuth marshals payload once, runs the authenticated call and decodes
// the response into v. v may be nil.
func (c *Client) postAuth(ctx context.Context, path string, query url.Values, payload, v any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", path, err)
		}
		body = b
	}
	data, err := c.executeAuthenticated(ctx, path, query, body)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return decode(path, data, v)
}

// decode reports unparseable payloads as transport failures: the exchange
// answered, but not with anything usable.
func decode(path string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &TransportError{Op: "decode", URL: path, Err: fmt.Errorf("unexpected response %s: %w", snippet(data), err)}
	}
	return nil
}

func normalizeBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", base)
	}
	return strings.TrimRight(base, "/"), nil
}
