// Package aggregator normalizes several DEX aggregator APIs into one quote
// shape, retries transient provider failures, and selects the best quote by
// net USD output.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// Adapter turns a normalized quote request into a provider quote.
// Implementations classify every failure with a zaperr kind so the retry
// policy and the selector can tell routing failures from transport ones.
type Adapter interface {
	Name() string
	GetSwapData(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: configs.ADAPTER_TIMEOUT_SECONDS * time.Second}
}

// getJSON performs a GET against a provider endpoint and decodes the JSON
// response, mapping transport and HTTP failures onto zaperr kinds.
func getJSON(ctx context.Context, client *http.Client, provider, rawURL string, headers map[string]string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return zaperr.Wrap(zaperr.KindInternal, err, "failed to create request").WithProvider(provider)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return zaperr.Wrap(zaperr.ClassifyTransport(err), err, "request failed").WithProvider(provider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zaperr.Wrap(zaperr.KindNetwork, err, "failed to read response").WithProvider(provider)
	}

	if resp.StatusCode != http.StatusOK {
		kind := zaperr.ClassifyHTTP(resp.StatusCode, string(body))
		return zaperr.Newf(kind, "http %d: %s", resp.StatusCode, truncate(string(body), 200)).WithProvider(provider)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return zaperr.Wrap(zaperr.KindUpstream, err, "failed to decode response").WithProvider(provider)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// gasCostUSD converts a gas limit and gas price (wei) into USD at the
// supplied ETH price. Display value only, float precision is fine here.
func gasCostUSD(gas uint64, gasPriceWei *big.Int, ethPriceUSD decimal.Decimal) decimal.Decimal {
	if gasPriceWei == nil {
		return decimal.Zero
	}
	totalWei := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPriceWei)
	return decimal.NewFromBigInt(totalWei, -18).Mul(ethPriceUSD)
}

// outputUSD converts a raw output amount into USD using the target token
// price and decimals.
func outputUSD(toAmount *big.Int, price decimal.Decimal, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(toAmount, -int32(decimals)).Mul(price)
}

func parseBigInt(s, what, provider string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, zaperr.Newf(zaperr.KindUpstream, "unparseable %s: %q", what, s).WithProvider(provider)
	}
	return v, nil
}

func slippageQuery(slippagePct float64) string {
	return fmt.Sprintf("%g", slippagePct)
}
