package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxAttempts allows the first try plus five nonce retries.
	DefaultMaxAttempts = 6
	// DefaultRetryInterval is the minimum spacing between attempts.
	DefaultRetryInterval = time.Second
)

// NonceErrorClassifier decides whether an exchange error is a nonce-ordering
// rejection. When the error reveals the last nonce the exchange accepted it
// is returned as lastSeen, otherwise lastSeen is zero.
type NonceErrorClassifier func(xe *ExchangeError) (retryable bool, lastSeen Nonce)

var (
	nonceSmallPattern    = regexp.MustCompile(`(?i)nonce:?\s*small`)
	embeddedNoncePattern = regexp.MustCompile(`\d{10,}`)
)

// DefaultNonceErrorClassifier matches the exchange's ["error",10114,"nonce: small"].
// Either the code or the message text is enough.
func DefaultNonceErrorClassifier(xe *ExchangeError) (bool, Nonce) {
	if xe == nil {
		return false, 0
	}
	if xe.Code != CodeNonceTooSmall && !nonceSmallPattern.MatchString(xe.Message) {
		return false, 0
	}
	var lastSeen Nonce
	if m := embeddedNoncePattern.FindAllString(xe.Message, -1); len(m) > 0 {
		if n, err := strconv.ParseInt(m[len(m)-1], 10, 64); err == nil {
			lastSeen = Nonce(n)
		}
	}
	return true, lastSeen
}

// RetryPolicy bounds the automatic recovery from nonce rejections. No other
// failure is ever retried.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Classify    NonceErrorClassifier
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultRetryInterval,
		Classify:    DefaultNonceErrorClassifier,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Classify == nil {
		p.Classify = DefaultNonceErrorClassifier
	}
	return p
}

// pacer spaces attempts of one call. The initial token is consumed up front
// so the first retry waits a full interval.
func (p RetryPolicy) pacer() *rate.Limiter {
	if p.Interval == 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l := rate.NewLimiter(rate.Every(p.Interval), 1)
	l.Allow()
	return l
}

// executeAuthenticated signs and POSTs body to path on the authenticated host.
// body is serialized once by the caller and sent unchanged on every attempt;
// only the nonce and signature change between attempts.
func (c *Client) executeAuthenticated(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	if !c.creds.valid() {
		return nil, ErrMissingCredentials
	}
	if body == nil {
		body = []byte("{}")
	}
	target := c.authBase + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	log := c.logger.With(zap.String("request_id", uuid.NewString()), zap.String("path", path))
	policy := c.retry
	pacer := policy.pacer()
	start := time.Now()

	var last *ExchangeError
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := pacer.Wait(ctx); err != nil {
				c.metrics.observe(callAuthenticated, outcomeTransport, time.Since(start))
				return nil, &TransportError{Op: http.MethodPost, URL: target, Err: err}
			}
		}

		nonce := c.nonces.Next()
		c.metrics.nonceIssued()
		signed := SignRequest(c.creds, http.MethodPost, path, nonce, body)

		attemptStart := time.Now()
		resp, err := c.dispatch.send(ctx, signed.Method, target, signed.Header(), signed.Body)
		log.Debug("authenticated attempt",
			zap.Int("attempt", attempt),
			zap.Stringer("nonce", nonce),
			zap.Duration("duration", time.Since(attemptStart)),
			zap.Error(err),
		)
		if err == nil {
			c.metrics.observe(callAuthenticated, outcomeSuccess, time.Since(start))
			return resp.Body, nil
		}

		var xe *ExchangeError
		if !errors.As(err, &xe) {
			c.metrics.observe(callAuthenticated, outcomeTransport, time.Since(start))
			return nil, err
		}
		retryable, lastSeen := policy.Classify(xe)
		if !retryable {
			c.metrics.observe(callAuthenticated, outcomeExchange, time.Since(start))
			return nil, xe
		}

		xe.NonceTooSmall = true
		last = xe
		if lastSeen > 0 {
			c.nonces.AdvancePast(lastSeen)
		}
		if attempt < policy.MaxAttempts {
			c.metrics.nonceRetry()
			log.Warn("nonce rejected, retrying with a fresh nonce",
				zap.Int("attempt", attempt),
				zap.Stringer("nonce", nonce),
				zap.String("exchange_message", xe.Message),
			)
		}
	}

	c.metrics.observe(callAuthenticated, outcomeExhausted, time.Since(start))
	return nil, &RetriesExhaustedError{Attempts: policy.MaxAttempts, Last: last}
}
