package client

import (
	"errors"
	"fmt"
	"strings"
)

// Exchange error codes that callers commonly need to tell apart.
const (
	CodeGeneric           = 10001
	CodeInvalidCurrency   = 10020
	CodeInvalidKeyDigest  = 10100
	CodeNonceTooSmall     = 10114
	CodeNotReady          = 11000
	CodeRateLimit         = 11010
	rateLimitObjectReason = "ERR_RATE_LIMIT"
)

var (
	// ErrInvalidArgument is wrapped by every client-side validation failure.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingCredentials is returned by authenticated calls on a client
	// built without an API key and secret.
	ErrMissingCredentials = errors.New("api key and secret are required for authenticated endpoints")

	// ErrNonceTooSmall matches exchange errors the retry policy classified as
	// a nonce-ordering rejection.
	ErrNonceTooSmall = errors.New("nonce too small")

	// ErrRetriesExhausted matches *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("nonce retries exhausted")

	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrInvalidKeyDigest       = errors.New("api key digest invalid")
	ErrTemporarilyUnavailable = errors.New("exchange temporarily unavailable")
	ErrRateLimited            = errors.New("rate limited by exchange")
	ErrTooManyActiveOffers    = errors.New("too many active offers")
)

// ErrorKind is the coarse category of a failed call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindExchange
	KindNonceTooSmall
	KindRetriesExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindExchange:
		return "exchange"
	case KindNonceTooSmall:
		return "nonce-too-small"
	case KindRetriesExhausted:
		return "retries-exhausted"
	default:
		return "unknown"
	}
}

// TransportError reports that no usable exchange response was obtained:
// connection, DNS, TLS and timeout failures, unreadable bodies, and non-2xx
// responses that carry no exchange error envelope.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExchangeError is an error reported by the exchange in its
// ["error", code, "message"] envelope.
type ExchangeError struct {
	Code       int
	Message    string
	StatusCode int

	// NonceTooSmall is set by the retry policy when it classified this error
	// as a nonce-ordering rejection.
	NonceTooSmall bool
}

func (e *ExchangeError) Error() string {
	if e.Code == 0 {
		return "exchange error: " + e.Message
	}
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

// Is lets callers match well-known exchange failures with errors.Is.
func (e *ExchangeError) Is(target error) bool {
	switch target {
	case ErrNonceTooSmall:
		return e.NonceTooSmall
	case ErrInvalidCurrency:
		return e.Code == CodeInvalidCurrency
	case ErrInvalidKeyDigest:
		return e.Code == CodeInvalidKeyDigest
	case ErrTemporarilyUnavailable:
		return e.Code == CodeNotReady
	case ErrRateLimited:
		return e.Code == CodeRateLimit || e.Message == rateLimitObjectReason
	case ErrTooManyActiveOffers:
		return strings.Contains(strings.ToLower(e.Message), "too many active offers")
	}
	return false
}

// RetriesExhaustedError is returned when every attempt of an authenticated
// call was rejected for nonce ordering.
type RetriesExhaustedError struct {
	Attempts int
	Last     *ExchangeError
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// KindOf reports the category of err, or KindUnknown for errors that did not
// come from a dispatched request (for example argument validation).
func KindOf(err error) ErrorKind {
	var re *RetriesExhaustedError
	if errors.As(err, &re) {
		return KindRetriesExhausted
	}
	var xe *ExchangeError
	if errors.As(err, &xe) {
		if xe.NonceTooSmall {
			return KindNonceTooSmall
		}
		return KindExchange
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	return KindUnknown
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
