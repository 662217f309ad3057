// Package zaperr defines the typed error kinds used across the engine and
// the classification rules that map provider failures onto them.
package zaperr

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the wire-level error code.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindNoDustTokens     Kind = "NO_DUST_TOKENS"
	KindPriceFetchFailed Kind = "PRICE_FETCH_FAILED"
	KindNoLiquidity      Kind = "NO_LIQUIDITY"
	KindUnsupportedToken Kind = "UNSUPPORTED_TOKEN"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindCapacity         Kind = "CAPACITY_EXCEEDED"
	KindNetwork          Kind = "NETWORK_ERROR"
	KindUpstream         Kind = "UPSTREAM_ERROR"
	KindTimeout          Kind = "TIMEOUT"
	KindCancelled        Kind = "CANCELLED"
	KindInternal         Kind = "INTERNAL_ERROR"
	KindUnknown          Kind = "UNKNOWN_ERROR"
)

// Error is a classified engine error. Provider is set when the failure came
// from a specific aggregator; Diagnostics carries per-provider detail when
// several providers failed at once.
type Error struct {
	Kind        Kind
	Provider    string
	Msg         string
	Diagnostics map[string]string
	cause       error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Provider, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it as the cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: err}
}

// Wrapf classifies an existing error with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: err}
}

// WithProvider tags the error with the aggregator it came from.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// KindOf extracts the kind from any error chain.
func KindOf(err error) Kind {
	var ze *Error
	if errors.As(err, &ze) {
		return ze.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether an adapter call that failed with err should be
// attempted again. No-liquidity and unsupported-token results are final;
// transport-level trouble is not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited, KindUpstream, KindTimeout:
		return true
	default:
		return false
	}
}

// ClassifyHTTP maps a provider HTTP status plus response text to a kind.
// 429 and quota wording mean rate limiting; liquidity wording means no
// route exists; other 4xx are final, 5xx are upstream trouble.
func ClassifyHTTP(status int, body string) Kind {
	if status == http.StatusTooManyRequests {
		return KindRateLimited
	}
	if status == http.StatusRequestTimeout {
		return KindTimeout
	}
	if kind := classifyText(body); kind != KindUnknown {
		return kind
	}
	if status >= 500 {
		return KindUpstream
	}
	return KindUnknown
}

// ClassifyTransport maps a client-side transport error (dial failure,
// timeout, cancelled context) to a kind.
func ClassifyTransport(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindNetwork
}

func classifyText(s string) Kind {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		return KindRateLimited
	case strings.Contains(lower, "liquidity"), strings.Contains(lower, "insufficient"):
		return KindNoLiquidity
	case strings.Contains(lower, "unsupported"), strings.Contains(lower, "not found"), strings.Contains(lower, "invalid token"):
		return KindUnsupportedToken
	}
	return KindUnknown
}

// precedence orders kinds from most to least informative when aggregating
// all-provider failures.
var precedence = []Kind{
	KindNoLiquidity,
	KindUnsupportedToken,
	KindRateLimited,
	KindNetwork,
	KindTimeout,
	KindUpstream,
	KindUnknown,
}

// MostInformative picks the aggregate kind for a set of per-provider
// failures.
func MostInformative(kinds []Kind) Kind {
	for _, p := range precedence {
		for _, k := range kinds {
			if k == p {
				return p
			}
		}
	}
	return KindUnknown
}

// UserMessage renders a client-safe message for a failed token. Never
// includes internal detail.
func UserMessage(kind Kind, symbol string) string {
	switch kind {
	case KindNoLiquidity:
		return fmt.Sprintf("No swap route found for %s", symbol)
	case KindUnsupportedToken:
		return fmt.Sprintf("%s is not supported by any swap provider", symbol)
	case KindRateLimited:
		return fmt.Sprintf("Swap providers are busy, %s could not be quoted", symbol)
	case KindNetwork, KindTimeout, KindUpstream:
		return fmt.Sprintf("Temporary provider issue while quoting %s", symbol)
	case KindValidation:
		return fmt.Sprintf("Invalid balance data for %s", symbol)
	default:
		return fmt.Sprintf("Failed to process %s", symbol)
	}
}

// HTTPStatus maps a kind to the response status used before streaming
// begins.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindNoDustTokens:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPriceFetchFailed, KindRateLimited, KindCapacity, KindNetwork, KindUpstream, KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
