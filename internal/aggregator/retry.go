package aggregator

import (
	"context"
	"math/rand"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// Vars so tests can shrink the backoff window.
var (
	retryBaseDelay = time.Duration(configs.RETRY_BASE_DELAY_MS) * time.Millisecond
	retryMaxDelay  = time.Duration(configs.RETRY_MAX_DELAY_MS) * time.Millisecond
)

// fullJitterDelay backs off exponentially (base 1 s, factor 2, cap 5 s) and
// jitters the slice above the base delay. The base delay is always honored
// so rate-limited providers get breathing room.
func fullJitterDelay(n uint, _ error, _ *retry.Config) time.Duration {
	d := retryBaseDelay << n
	if d > retryMaxDelay || d <= 0 {
		d = retryMaxDelay
	}
	if d <= retryBaseDelay {
		return retryBaseDelay
	}
	return retryBaseDelay + time.Duration(rand.Int63n(int64(d-retryBaseDelay)+1))
}

// callWithRetry wraps one adapter call in the per-provider retry policy:
// up to 3 attempts, retrying only failures the adapter classified as
// transient. Final classifications (no liquidity, unsupported token, plain
// 4xx) fail immediately. Cancellation interrupts the backoff sleep, not
// just the call itself.
func callWithRetry(ctx context.Context, log *logrus.Entry, a Adapter, req *types.QuoteRequest) (*types.SwapQuote, error) {
	var quote *types.SwapQuote
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return zaperr.Wrap(zaperr.KindCancelled, err, "adapter call cancelled").WithProvider(a.Name())
			}
			q, err := a.GetSwapData(ctx, req)
			if err != nil {
				return err
			}
			quote = q
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(configs.RETRY_MAX_ATTEMPTS),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(fullJitterDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && zaperr.Retryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithFields(logrus.Fields{
				"provider": a.Name(),
				"attempt":  n + 1,
				"kind":     zaperr.KindOf(err),
			}).Warn("retrying provider call")
		}),
	)
	if err != nil {
		return nil, err
	}
	return quote, nil
}
