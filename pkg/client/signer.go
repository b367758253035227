package client

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
)

// Authentication headers understood by the exchange.
const (
	HeaderNonce     = "bfx-nonce"
	HeaderAPIKey    = "bfx-apikey"
	HeaderSignature = "bfx-signature"
)

// signaturePrefix precedes the endpoint path in the signed string.
const signaturePrefix = "/api/v2/"

// Credentials identify the account for authenticated endpoints.
type Credentials struct {
	APIKey    string
	APISecret string
}

func (c Credentials) valid() bool { return c.APIKey != "" && c.APISecret != "" }

// Sign returns the lowercase hex HMAC-SHA384 of
// "/api/v2/" + path + nonce + body keyed with secret. path is the endpoint
// path without leading slash or query string, e.g. "auth/r/wallets".
func Sign(secret []byte, path string, nonce Nonce, body []byte) string {
	mac := hmac.New(sha512.New384, secret)
	mac.Write([]byte(signaturePrefix))
	mac.Write([]byte(path))
	mac.Write([]byte(nonce.String()))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedRequest is one authenticated attempt. Body holds the exact bytes that
// were signed and must be sent as-is.
type SignedRequest struct {
	Method    string
	Path      string
	Nonce     Nonce
	Body      []byte
	Signature string
	APIKey    string
}

// SignRequest signs body for path with nonce.
func SignRequest(creds Credentials, method, path string, nonce Nonce, body []byte) SignedRequest {
	return SignedRequest{
		Method:    method,
		Path:      path,
		Nonce:     nonce,
		Body:      body,
		Signature: Sign([]byte(creds.APISecret), path, nonce, body),
		APIKey:    creds.APIKey,
	}
}

// Header returns the headers that carry the signature.
func (r SignedRequest) Header() http.Header {
	h := make(http.Header, 4)
	h.Set("Content-Type", "application/json")
	h.Set(HeaderNonce, r.Nonce.String())
	h.Set(HeaderAPIKey, r.APIKey)
	h.Set(HeaderSignature, r.Signature)
	return h
}
