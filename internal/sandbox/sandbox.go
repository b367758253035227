// Package sandbox is a local stand-in for the exchange's REST surface. It
// checks request signatures and nonce ordering exactly as the exchange does
// and answers with canned data, so clients can be exercised end to end
// without real credentials. It does not match orders.
package sandbox

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Exchange error envelopes, verbatim.
const (
	msgDigestInvalid = "apikey: digest invalid"
	msgNonceSmall    = "nonce: small"
	msgRateLimit     = "ratelimit: error"
	msgNotFound      = "endpoint: not found"

	codeGeneric       = 10001
	codeDigestInvalid = 10100
	codeNonceSmall    = 10114
	codeRateLimit     = 11010
)

// DefaultMaxRecorded is the request log size when Config.MaxRecorded is zero.
const DefaultMaxRecorded = 1000

// Config configures an Exchange.
type Config struct {
	// Keys maps API keys to their secrets.
	Keys map[string]string
	// RateLimitRPS is the per-key request rate on authenticated endpoints.
	// Zero disables the limit.
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxRecorded bounds how many accepted requests Requests keeps; older
	// ones are dropped first. Zero means DefaultMaxRecorded.
	MaxRecorded int
	// Registry receives the sandbox collectors. A private registry is used
	// when nil.
	Registry *prometheus.Registry
}

// Request is an authenticated request the sandbox accepted.
type Request struct {
	ID        string
	APIKey    string
	Path      string
	Nonce     int64
	Body      []byte
	Signature string
	Received  time.Time
}

// Exchange holds the sandbox state.
type Exchange struct {
	keys     map[string]string
	logger   *zap.Logger
	metrics  *metrics
	limiters *keyLimiters
	registry *prometheus.Registry

	mu          sync.Mutex
	lastNonce   map[string]int64
	requests    []Request
	maxRecorded int
	forcedNonce int
	nextOrderID int64
}

// New creates an Exchange.
func New(cfg Config, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	maxRecorded := cfg.MaxRecorded
	if maxRecorded <= 0 {
		maxRecorded = DefaultMaxRecorded
	}
	keys := make(map[string]string, len(cfg.Keys))
	for k, v := range cfg.Keys {
		keys[k] = v
	}
	return &Exchange{
		keys:        keys,
		logger:      logger,
		metrics:     newMetrics(reg),
		limiters:    newKeyLimiters(cfg.RateLimitRPS, cfg.RateLimitBurst),
		registry:    reg,
		lastNonce:   make(map[string]int64),
		maxRecorded: maxRecorded,
		nextOrderID: 1000,
	}
}

// Handler returns a gin engine serving the sandbox under /v2 plus /metrics
// and /healthz. mw runs after the built-in middleware on every route.
func (x *Exchange) Handler(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), x.requestID(), x.metrics.middleware())
	r.Use(mw...)
	x.Register(r.Group("/v2"))
	r.GET("/metrics", metricsHandler(x.registry))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// Register mounts the exchange routes on rg.
func (x *Exchange) Register(rg *gin.RouterGroup) {
	rg.GET("/platform/status", x.platformStatus)
	rg.GET("/ticker/:symbol", x.ticker)
	rg.POST("/auth/*path", x.authenticate, x.dispatchAuth)
}

// SetLastNonce records n as the last nonce accepted for key, as if an
// earlier session had used it.
func (x *Exchange) SetLastNonce(key string, n int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastNonce[key] = n
}

// LastNonce returns the last nonce accepted for key.
func (x *Exchange) LastNonce(key string) int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastNonce[key]
}

// RejectNextNonces makes the next n correctly signed requests fail with
// "nonce: small" regardless of their nonce.
func (x *Exchange) RejectNextNonces(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.forcedNonce = n
}

// Requests returns a copy of the most recent accepted authenticated
// requests, oldest first.
func (x *Exchange) Requests() []Request {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]Request, len(x.requests))
	copy(out, x.requests)
	return out
}

// record appends r to the request log. Callers hold x.mu.
func (x *Exchange) record(r Request) {
	if n := len(x.requests) - x.maxRecorded + 1; n > 0 {
		x.requests = append(x.requests[:0], x.requests[n:]...)
	}
	x.requests = append(x.requests, r)
}

func (x *Exchange) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// reject aborts with the exchange's error envelope.
func reject(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, []any{"error", code, msg})
}
