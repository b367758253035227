package sandbox

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxBody = "sandbox.body"
	ctxPath = "sandbox.path"

	maxBodyBytes = 1 << 20
)

// authenticate verifies bfx-apikey, bfx-nonce and bfx-signature against the
// exact bytes received, then enforces the per-key rate limit and nonce order.
func (x *Exchange) authenticate(c *gin.Context) {
	path := "auth/" + strings.TrimPrefix(c.Param("path"), "/")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		reject(c, http.StatusBadRequest, codeGeneric, "body: unreadable")
		return
	}

	key := c.GetHeader("bfx-apikey")
	nonceHeader := c.GetHeader("bfx-nonce")
	sig := c.GetHeader("bfx-signature")

	log := x.logger.With(zap.String("request_id", c.GetString("request_id")), zap.String("path", path))

	if !x.limiters.allow(key) {
		x.metrics.rejected("rate_limit")
		c.Header("Retry-After", "1")
		reject(c, http.StatusTooManyRequests, codeRateLimit, msgRateLimit)
		return
	}

	secret, ok := x.keys[key]
	nonce, nerr := strconv.ParseInt(nonceHeader, 10, 64)
	if !ok || nerr != nil || !validSignature(secret, path, nonceHeader, body, sig) {
		x.metrics.rejected("signature")
		log.Debug("signature rejected", zap.Bool("known_key", ok))
		reject(c, http.StatusInternalServerError, codeDigestInvalid, msgDigestInvalid)
		return
	}

	x.mu.Lock()
	if x.forcedNonce > 0 || nonce <= x.lastNonce[key] {
		if x.forcedNonce > 0 {
			x.forcedNonce--
		}
		last := x.lastNonce[key]
		x.mu.Unlock()
		x.metrics.rejected("nonce")
		log.Debug("nonce rejected", zap.Int64("nonce", nonce), zap.Int64("last", last))
		reject(c, http.StatusInternalServerError, codeNonceSmall, msgNonceSmall)
		return
	}
	x.lastNonce[key] = nonce
	x.record(Request{
		ID:        c.GetString("request_id"),
		APIKey:    key,
		Path:      path,
		Nonce:     nonce,
		Body:      body,
		Signature: sig,
		Received:  time.Now(),
	})
	x.mu.Unlock()

	c.Set(ctxBody, body)
	c.Set(ctxPath, path)
	c.Next()
}

// validSignature recomputes HMAC-SHA384("/api/v2/" + path + nonce + body).
func validSignature(secret, path, nonce string, body []byte, sig string) bool {
	mac := hmac.New(sha512.New384, []byte(secret))
	io.WriteString(mac, "/api/v2/"+path+nonce)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(sig)))
}
