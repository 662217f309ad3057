package aggregator

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

type fakeAdapter struct {
	name  string
	quote *types.SwapQuote
	err   error
	calls int64
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetSwapData(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func quoteWith(provider string, toUSD, gasUSD float64) *types.SwapQuote {
	return &types.SwapQuote{
		Provider:   provider,
		To:         "0x1111111111111111111111111111111111111111",
		ToAmount:   big.NewInt(1000),
		Data:       "0x",
		Gas:        100_000,
		ToUSD:      decimal.NewFromFloat(toUSD),
		GasCostUSD: decimal.NewFromFloat(gasUSD),
	}
}

func testRequest() *types.QuoteRequest {
	return &types.QuoteRequest{
		ChainID:     1,
		FromToken:   types.TokenRef{Address: "0x6982508145454Ce325dDbE47a25d4ec3d2311933", Decimals: 18},
		ToToken:     types.TokenRef{Address: "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", Decimals: 18},
		Amount:      big.NewInt(1_000_000),
		FromAddress: "0x2a84Ca5ED9F9F9C52F42D44ca9fe4ef962BB2b47",
		SlippagePct: 1,
		ETHPriceUSD: decimal.NewFromInt(3000),
	}
}

func TestGetBestPicksHighestNetUSD(t *testing.T) {
	// 0.018 gross, 0.0001 gas beats 0.0185 gross, 0.002 gas.
	a := &fakeAdapter{name: "1inch", quote: quoteWith("1inch", 0.018, 0.0001)}
	b := &fakeAdapter{name: "paraswap", quote: quoteWith("paraswap", 0.0185, 0.002)}
	c := &fakeAdapter{name: "0x", err: zaperr.New(zaperr.KindNoLiquidity, "no route").WithProvider("0x")}

	s := NewSelector(logrus.New(), a, b, c)
	best, err := s.GetBest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "1inch", best.Provider)

	// All adapters are queried even after one has a winner.
	assert.EqualValues(t, 1, atomic.LoadInt64(&a.calls))
	assert.EqualValues(t, 1, atomic.LoadInt64(&b.calls))
	assert.EqualValues(t, 1, atomic.LoadInt64(&c.calls))
}

func TestGetBestTieBreaksByProviderName(t *testing.T) {
	a := &fakeAdapter{name: "paraswap", quote: quoteWith("paraswap", 0.018, 0.0001)}
	b := &fakeAdapter{name: "0x", quote: quoteWith("0x", 0.018, 0.0001)}

	s := NewSelector(logrus.New(), a, b)
	best, err := s.GetBest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "0x", best.Provider, "equal net value breaks ties lexicographically")
}

func TestGetBestAllFailed(t *testing.T) {
	a := &fakeAdapter{name: "1inch", err: zaperr.New(zaperr.KindUpstream, "http 502").WithProvider("1inch")}
	b := &fakeAdapter{name: "paraswap", err: zaperr.New(zaperr.KindNoLiquidity, "no route").WithProvider("paraswap")}
	c := &fakeAdapter{name: "0x", err: zaperr.New(zaperr.KindRateLimited, "http 429").WithProvider("0x")}

	s := NewSelector(logrus.New(), a, b, c)
	_, err := s.GetBest(context.Background(), testRequest())
	require.Error(t, err)

	// The most informative kind wins the aggregate classification.
	assert.Equal(t, zaperr.KindNoLiquidity, zaperr.KindOf(err))

	var ze *zaperr.Error
	require.ErrorAs(t, err, &ze)
	assert.Len(t, ze.Diagnostics, 3)
	assert.Contains(t, ze.Diagnostics["1inch"], "502")
	assert.Contains(t, ze.Diagnostics["0x"], "429")
}

func TestGetSecondBest(t *testing.T) {
	a := &fakeAdapter{name: "1inch", quote: quoteWith("1inch", 0.020, 0.0001)}
	b := &fakeAdapter{name: "paraswap", quote: quoteWith("paraswap", 0.018, 0.0001)}

	s := NewSelector(logrus.New(), a, b)
	second, err := s.GetSecondBest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "paraswap", second.Provider)
}

func TestGetSecondBestFallsBackToBest(t *testing.T) {
	a := &fakeAdapter{name: "1inch", quote: quoteWith("1inch", 0.020, 0.0001)}
	b := &fakeAdapter{name: "0x", err: zaperr.New(zaperr.KindNoLiquidity, "no route").WithProvider("0x")}

	s := NewSelector(logrus.New(), a, b)
	second, err := s.GetSecondBest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "1inch", second.Provider)
}

func TestRetryOnlyTransientFailures(t *testing.T) {
	origBase, origMax := retryBaseDelay, retryMaxDelay
	retryBaseDelay, retryMaxDelay = time.Millisecond, 5*time.Millisecond
	defer func() { retryBaseDelay, retryMaxDelay = origBase, origMax }()

	log := logrus.New()

	// Transient failures are retried up to the attempt limit.
	transient := &fakeAdapter{name: "1inch", err: zaperr.New(zaperr.KindNetwork, "connection reset").WithProvider("1inch")}
	_, err := callWithRetry(context.Background(), log.WithField("t", "test"), transient, testRequest())
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt64(&transient.calls))

	// Final failures short-circuit after the first attempt.
	final := &fakeAdapter{name: "0x", err: zaperr.New(zaperr.KindNoLiquidity, "no route").WithProvider("0x")}
	_, err = callWithRetry(context.Background(), log.WithField("t", "test"), final, testRequest())
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&final.calls))
}

func TestRetryStopsOnCancel(t *testing.T) {
	origBase, origMax := retryBaseDelay, retryMaxDelay
	retryBaseDelay, retryMaxDelay = time.Millisecond, 5*time.Millisecond
	defer func() { retryBaseDelay, retryMaxDelay = origBase, origMax }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &fakeAdapter{name: "1inch", err: zaperr.New(zaperr.KindNetwork, "down").WithProvider("1inch")}
	_, err := callWithRetry(ctx, logrus.New().WithField("t", "test"), a, testRequest())
	require.Error(t, err)
	assert.Equal(t, zaperr.KindCancelled, zaperr.KindOf(err))
	assert.EqualValues(t, 0, atomic.LoadInt64(&a.calls))
}

func TestRetryCancelInterruptsBackoff(t *testing.T) {
	// Production delays on purpose: cancelling mid-backoff must return well
	// before the base delay elapses, not after the sleep finishes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	a := &fakeAdapter{name: "1inch", err: zaperr.New(zaperr.KindRateLimited, "http 429").WithProvider("1inch")}

	start := time.Now()
	_, err := callWithRetry(ctx, logrus.New().WithField("t", "test"), a, testRequest())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, zaperr.KindCancelled, zaperr.KindOf(err))
	assert.Less(t, elapsed, retryBaseDelay, "backoff sleep must observe cancellation")
	assert.EqualValues(t, 1, atomic.LoadInt64(&a.calls))
}

func TestFullJitterDelayHonorsBase(t *testing.T) {
	for n := uint(0); n < 5; n++ {
		for i := 0; i < 50; i++ {
			d := fullJitterDelay(n, nil, nil)
			assert.GreaterOrEqual(t, d, retryBaseDelay, "attempt %d", n)
			assert.LessOrEqual(t, d, retryMaxDelay, "attempt %d", n)
		}
	}
}
