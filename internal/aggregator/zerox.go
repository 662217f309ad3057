package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// ZeroX quotes swaps via the 0x v2 allowance-holder API.
//
// ToUSD convention: gross output value, gas cost NOT subtracted.
// A response with liquidityAvailable=false is a NO_LIQUIDITY result, not a
// transport failure.
type ZeroX struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewZeroX(baseURL, apiKey string) *ZeroX {
	return &ZeroX{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient()}
}

func (a *ZeroX) Name() string { return "0x" }

type zeroXQuoteResponse struct {
	LiquidityAvailable bool   `json:"liquidityAvailable"`
	BuyAmount          string `json:"buyAmount"`
	AllowanceTarget    string `json:"allowanceTarget"`
	Transaction        struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Gas      uint64 `json:"gas,string"`
		GasPrice string `json:"gasPrice"`
	} `json:"transaction"`
}

func (a *ZeroX) GetSwapData(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error) {
	q := url.Values{}
	q.Set("chainId", fmt.Sprintf("%d", req.ChainID))
	q.Set("sellToken", req.FromToken.Address)
	q.Set("buyToken", req.ToToken.Address)
	q.Set("sellAmount", req.Amount.String())
	q.Set("taker", req.FromAddress)
	q.Set("slippageBps", fmt.Sprintf("%d", types.SlippageBps(req.SlippagePct)))

	endpoint := fmt.Sprintf("%s/swap/allowance-holder/quote?%s", a.baseURL, q.Encode())
	headers := map[string]string{
		"0x-api-key": a.apiKey,
		"0x-version": "v2",
	}

	var resp zeroXQuoteResponse
	if err := getJSON(ctx, a.client, a.Name(), endpoint, headers, &resp); err != nil {
		return nil, err
	}

	if !resp.LiquidityAvailable {
		return nil, zaperr.New(zaperr.KindNoLiquidity, "liquidityAvailable=false").WithProvider(a.Name())
	}

	toAmount, err := parseBigInt(resp.BuyAmount, "buyAmount", a.Name())
	if err != nil {
		return nil, err
	}
	if resp.Transaction.To == "" {
		return nil, zaperr.New(zaperr.KindUpstream, "response missing transaction.to").WithProvider(a.Name())
	}

	gasPrice, err := parseBigInt(resp.Transaction.GasPrice, "gasPrice", a.Name())
	if err != nil {
		return nil, err
	}

	approveTo := resp.AllowanceTarget
	if approveTo == "" {
		approveTo = resp.Transaction.To
	}

	return &types.SwapQuote{
		Provider:       a.Name(),
		To:             resp.Transaction.To,
		ApproveTo:      approveTo,
		ToAmount:       toAmount,
		MinToAmount:    types.MinOutAmount(toAmount, req.SlippagePct),
		Data:           resp.Transaction.Data,
		Gas:            resp.Transaction.Gas,
		GasCostUSD:     gasCostUSD(resp.Transaction.Gas, gasPrice, req.ETHPriceUSD),
		ToUSD:          outputUSD(toAmount, req.ToTokenPriceUSD, req.ToToken.Decimals),
		CustomSlippage: req.SlippagePct,
	}, nil
}
