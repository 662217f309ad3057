package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// paraswapProxies maps chain id to the TokenTransferProxy contract that
// must be approved before swapping through Augustus.
var paraswapProxies = map[int64]string{
	1:     "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	10:    "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	56:    "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	137:   "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	1101:  "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	43114: "0x216b4b4ba9f3e719726886d34a177484278bfcae",
	8453:  "0x93aAAe79a53759cD164340E4C8766E4Db5331cD7",
	42161: "0x216B4B4Ba9F3e719726886d34a177484278Bfcae",
}

// Paraswap quotes swaps via the Paraswap v5 API.
//
// ToUSD convention: gross output value; gasCostUSD is taken directly from
// the provider response rather than recomputed.
type Paraswap struct {
	baseURL string
	client  *http.Client
}

func NewParaswap(baseURL string) *Paraswap {
	return &Paraswap{baseURL: baseURL, client: newHTTPClient()}
}

func (a *Paraswap) Name() string { return "paraswap" }

type paraswapSwapResponse struct {
	PriceRoute struct {
		DestAmount string `json:"destAmount"`
		GasCost    uint64 `json:"gasCost,string"`
		GasCostUSD string `json:"gasCostUSD"`
	} `json:"priceRoute"`
	TxParams struct {
		To   string `json:"to"`
		Data string `json:"data"`
	} `json:"txParams"`
}

func (a *Paraswap) GetSwapData(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	proxy, ok := paraswapProxies[req.ChainID]
	if !ok {
		return nil, zaperr.Newf(zaperr.KindUnsupportedToken, "chain %d has no transfer proxy", req.ChainID).WithProvider(a.Name())
	}

	q := url.Values{}
	q.Set("network", fmt.Sprintf("%d", req.ChainID))
	q.Set("srcToken", req.FromToken.Address)
	q.Set("srcDecimals", fmt.Sprintf("%d", req.FromToken.Decimals))
	q.Set("destToken", req.ToToken.Address)
	q.Set("destDecimals", fmt.Sprintf("%d", req.ToToken.Decimals))
	q.Set("amount", req.Amount.String())
	q.Set("userAddress", req.FromAddress)
	q.Set("slippage", fmt.Sprintf("%d", types.SlippageBps(req.SlippagePct)))
	q.Set("side", "SELL")
	q.Set("excludeDEXS", "AugustusRFQ")

	endpoint := fmt.Sprintf("%s/swap?%s", a.baseURL, q.Encode())

	var resp paraswapSwapResponse
	if err := getJSON(ctx, a.client, a.Name(), endpoint, nil, &resp); err != nil {
		return nil, err
	}

	toAmount, err := parseBigInt(resp.PriceRoute.DestAmount, "destAmount", a.Name())
	if err != nil {
		return nil, err
	}
	if resp.TxParams.To == "" {
		return nil, zaperr.New(zaperr.KindUpstream, "response missing txParams.to").WithProvider(a.Name())
	}

	gasUSD, err := decimal.NewFromString(resp.PriceRoute.GasCostUSD)
	if err != nil {
		gasUSD = decimal.Zero
	}

	return &types.SwapQuote{
		Provider:       a.Name(),
		To:             resp.TxParams.To,
		ApproveTo:      proxy,
		ToAmount:       toAmount,
		MinToAmount:    types.MinOutAmount(toAmount, req.SlippagePct),
		Data:           resp.TxParams.Data,
		Gas:            resp.PriceRoute.GasCost,
		GasCostUSD:     gasUSD,
		ToUSD:          outputUSD(toAmount, req.ToTokenPriceUSD, req.ToToken.Decimals),
		CustomSlippage: req.SlippagePct,
	}, nil
}
