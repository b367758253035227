package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 16 << 20

type rawResponse struct {
	StatusCode int
	Body       []byte
}

// dispatcher sends one HTTP request and classifies the outcome. It knows the
// shape of the exchange's error envelope but not what any code means.
type dispatcher struct {
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// send performs a single attempt. The returned error is *ExchangeError or
// *TransportError.
func (d *dispatcher) send(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*rawResponse, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if xe := parseErrorEnvelope(data); xe != nil {
		xe.StatusCode = resp.StatusCode
		return nil, xe
	}
	if resp.StatusCode >= 300 {
		return nil, &TransportError{
			Op:         method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(data)),
		}
	}
	return &rawResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// parseErrorEnvelope recognises ["error", code, "message"] and the object
// form {"error": "ERR_RATE_LIMIT"} the exchange uses for some limits.
// It returns nil for anything else.
func parseErrorEnvelope(data []byte) *ExchangeError {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		var env []json.RawMessage
		if err := json.Unmarshal(data, &env); err != nil || len(env) < 2 {
			return nil
		}
		var tag string
		if err := json.Unmarshal(env[0], &tag); err != nil || tag != "error" {
			return nil
		}
		xe := &ExchangeError{}
		_ = json.Unmarshal(env[1], &xe.Code)
		if len(env) > 2 {
			_ = json.Unmarshal(env[2], &xe.Message)
		}
		return xe
	case '{':
		var obj struct {
			Error   string `json:"error"`
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &obj); err != nil || obj.Error == "" {
			return nil
		}
		xe := &ExchangeError{Code: obj.Code, Message: obj.Error}
		if obj.Error == rateLimitObjectReason && xe.Code == 0 {
			xe.Code = CodeRateLimit
		}
		return xe
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
