package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// oneInchChainPrefixes map chain ids to the protocol-name prefix 1inch uses
// for chain-specific protocol identifiers.
var oneInchChainPrefixes = map[int64]string{
	1:     "",
	10:    "OPTIMISM_",
	56:    "BSC_",
	137:   "POLYGON_",
	8453:  "BASE_",
	42161: "ARBITRUM_",
	43114: "AVALANCHE_",
}

// OneInch quotes swaps via the 1inch v6 API.
//
// ToUSD convention: gross output value, gas cost NOT subtracted. The
// selector nets gas out itself.
type OneInch struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOneInch(baseURL, apiKey string) *OneInch {
	return &OneInch{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *OneInch) Name() string { return "1inch" }

type oneInchSwapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Gas      uint64 `json:"gas"`
		GasPrice string `json:"gasPrice"`
	} `json:"tx"`
}

// excludedProtocols returns the limit-order protocols excluded from
// routing, prefixed for the target chain (e.g. ARBITRUM_ONE_INCH_LIMIT_ORDER_V3).
func (a *OneInch) excludedProtocols(chainID int64) string {
	prefix := oneInchChainPrefixes[chainID]
	return fmt.Sprintf("%sONE_INCH_LIMIT_ORDER_V3,%sONE_INCH_LIMIT_ORDER_V4", prefix, prefix)
}

func (a *OneInch) GetSwapData(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	q := url.Values{}
	q.Set("src", req.FromToken.Address)
	q.Set("dst", req.ToToken.Address)
	q.Set("amount", req.Amount.String())
	q.Set("from", req.FromAddress)
	q.Set("slippage", slippageQuery(req.SlippagePct))
	q.Set("excludedProtocols", a.excludedProtocols(req.ChainID))
	q.Set("disableEstimate", "true")

	endpoint := fmt.Sprintf("%s/%d/swap?%s", a.baseURL, req.ChainID, q.Encode())
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}

	var resp oneInchSwapResponse
	if err := getJSON(ctx, a.client, a.Name(), endpoint, headers, &resp); err != nil {
		return nil, err
	}

	toAmount, err := parseBigInt(resp.DstAmount, "dstAmount", a.Name())
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseBigInt(resp.Tx.GasPrice, "gasPrice", a.Name())
	if err != nil {
		return nil, err
	}
	if resp.Tx.To == "" {
		return nil, zaperr.New(zaperr.KindUpstream, "response missing tx.to").WithProvider(a.Name())
	}

	return &types.SwapQuote{
		Provider:       a.Name(),
		To:             resp.Tx.To,
		ApproveTo:      resp.Tx.To, // 1inch router doubles as the spender
		ToAmount:       toAmount,
		MinToAmount:    types.MinOutAmount(toAmount, req.SlippagePct),
		Data:           resp.Tx.Data,
		Gas:            resp.Tx.Gas,
		GasCostUSD:     gasCostUSD(resp.Tx.Gas, gasPrice, req.ETHPriceUSD),
		ToUSD:          outputUSD(toAmount, req.ToTokenPriceUSD, req.ToToken.Decimals),
		CustomSlippage: req.SlippagePct,
	}, nil
}
