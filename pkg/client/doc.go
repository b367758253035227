// Package client is a Go SDK for the Bitfinex v2 REST API.
//
// It covers public market data (tickers, books, trades, candles, stats),
// trading (orders), funding (offers and credits) and account endpoints.
// Authenticated requests are signed with HMAC-SHA384 and carry a nonce that
// strictly increases for the lifetime of the Client, even when many
// goroutines share it.
//
// # Creating a client
//
//	c, err := client.New(client.Credentials{
//	    APIKey:    os.Getenv("API_KEY"),
//	    APISecret: os.Getenv("API_SECRET"),
//	}, client.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Public endpoints work with empty credentials:
//
//	status, err := client.MustNew(client.Credentials{}).PlatformStatus(ctx)
//
// # Placing an order
//
//	orders, err := c.SubmitOrder(ctx, client.OrderRequest{
//	    Symbol: "tBTCUSD",
//	    Type:   client.OrderExchangeLimit,
//	    Amount: decimal.RequireFromString("0.01"),
//	    Price:  decimal.RequireFromString("30000"),
//	})
//
// # Errors
//
// Every call returns either its decoded result or an error of one of three
// kinds, reported by KindOf:
//
//   - *TransportError: the request never produced a usable exchange answer
//     (network failure, per-attempt timeout, non-2xx without an error body,
//     undecodable payload).
//   - *ExchangeError: the exchange answered ["error", code, "message"].
//     Well-known codes match sentinels such as ErrRateLimited.
//   - *RetriesExhaustedError: every attempt was rejected with "nonce: small".
//
// # Nonce recovery
//
// If the exchange rejects a nonce as too small, the call is re-signed with a
// fresh nonce and sent again, up to RetryPolicy.MaxAttempts attempts in
// total. The request body is serialized once; only the nonce and signature
// change between attempts. No other failure is retried, so a rejected order
// is never submitted twice. Clients that share an API key should share a
// NonceSource through WithNonceSource.
package client
