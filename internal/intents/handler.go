package intents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/configs"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// IntentTypeDustZap is the intent type this engine serves.
const IntentTypeDustZap = "dustZap"

// perTokenEstimateSec is the rough streaming time per dust token used for
// the estimatedDuration hint.
const perTokenEstimateSec = 4

// PriceSource is the external price collaborator.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BalanceSource is the external wallet-balance collaborator.
type BalanceSource interface {
	GetBalances(ctx context.Context, address string, chainID int64) ([]types.Token, error)
}

// DustZapParams are the dustZap-specific request parameters.
type DustZapParams struct {
	ToTokenAddress  string        `json:"toTokenAddress"`
	ToTokenDecimals int           `json:"toTokenDecimals"`
	Slippage        *float64      `json:"slippage,omitempty"`
	ReferralAddress string        `json:"referralAddress,omitempty"`
	TargetToken     string        `json:"targetToken,omitempty"`
	DustTokens      []types.Token `json:"dustTokens"`
}

// DustZapHandler prepares a dust-zap intent: validates the request, selects
// the dust tokens, prices the target, stores the execution context and
// returns the stream URL.
type DustZapHandler struct {
	cfg            *configs.Config
	prices         PriceSource
	balances       BalanceSource
	store          *Manager
	allowedTargets map[string]bool
	log            *logrus.Entry
}

func NewDustZapHandler(cfg *configs.Config, prices PriceSource, balances BalanceSource, store *Manager, log *logrus.Logger) *DustZapHandler {
	return &DustZapHandler{
		cfg:            cfg,
		prices:         prices,
		balances:       balances,
		store:          store,
		allowedTargets: map[string]bool{configs.DEFAULT_TARGET_TOKEN: true},
		log:            log.WithField("component", "dustzap-handler"),
	}
}

func (h *DustZapHandler) Execute(ctx context.Context, req *IntentRequest) (*IntentResponse, error) {
	params, err := h.validate(req)
	if err != nil {
		return nil, err
	}

	tokens, err := h.collectDustTokens(ctx, req, params)
	if err != nil {
		return nil, err
	}

	targetSymbol := params.TargetToken
	if targetSymbol == "" {
		targetSymbol = configs.DEFAULT_TARGET_TOKEN
	}
	ethPrice, err := h.prices.GetPrice(ctx, "ETH")
	if err != nil {
		return nil, zaperr.Wrap(zaperr.KindPriceFetchFailed, err, "failed to fetch ETH price")
	}
	targetPrice := ethPrice
	if targetSymbol != "ETH" {
		if targetPrice, err = h.prices.GetPrice(ctx, targetSymbol); err != nil {
			return nil, zaperr.Wrapf(zaperr.KindPriceFetchFailed, err, "failed to fetch %s price", targetSymbol)
		}
	}

	slippage := configs.DEFAULT_SLIPPAGE_PCT
	if params.Slippage != nil {
		slippage = *params.Slippage
	}

	intentID := NewIntentID(IntentTypeDustZap, req.UserAddress)
	ectx := &types.ExecutionContext{
		IntentID:    intentID,
		UserAddress: req.UserAddress,
		ChainID:     req.ChainID,
		DustTokens:  tokens,
		ETHPriceUSD: ethPrice,
		ToToken: types.ToToken{
			Address:  params.ToTokenAddress,
			Decimals: params.ToTokenDecimals,
			PriceUSD: targetPrice,
		},
		SlippagePct:     slippage,
		ReferralAddress: params.ReferralAddress,
		CreatedAt:       time.Now(),
	}

	if err := h.store.Put(intentID, ectx); err != nil {
		return nil, err
	}

	totalValue := decimal.Zero
	for i := range tokens {
		totalValue = totalValue.Add(tokens[i].ValueUSD())
	}

	h.log.WithFields(logrus.Fields{
		"intentId":    intentID,
		"totalTokens": len(tokens),
		"chainId":     req.ChainID,
	}).Info("dust-zap intent prepared")

	return &IntentResponse{
		IntentID:  intentID,
		StreamURL: fmt.Sprintf("/intents/%s/stream", intentID),
		Mode:      "streaming",
		Metadata: IntentMetadata{
			TotalTokens:          len(tokens),
			TotalValueUSD:        totalValue,
			EstimatedDurationSec: len(tokens) * perTokenEstimateSec,
		},
	}, nil
}

func (h *DustZapHandler) validate(req *IntentRequest) (*DustZapParams, error) {
	if !types.IsValidAddress(req.UserAddress) {
		return nil, zaperr.Newf(zaperr.KindValidation, "invalid userAddress %q", req.UserAddress)
	}

	var params DustZapParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, zaperr.New(zaperr.KindValidation, "params could not be decoded")
	}
	if params.ToTokenAddress == "" {
		return nil, zaperr.New(zaperr.KindValidation, "params.toTokenAddress is required")
	}
	if !types.IsValidAddress(params.ToTokenAddress) {
		return nil, zaperr.Newf(zaperr.KindValidation, "invalid params.toTokenAddress %q", params.ToTokenAddress)
	}
	if params.ToTokenDecimals < 1 || params.ToTokenDecimals > 18 {
		return nil, zaperr.Newf(zaperr.KindValidation, "params.toTokenDecimals must be in [1,18], got %d", params.ToTokenDecimals)
	}
	if params.Slippage != nil && (*params.Slippage < 0 || *params.Slippage > 100) {
		return nil, zaperr.Newf(zaperr.KindValidation, "params.slippage must be in [0,100], got %g", *params.Slippage)
	}
	if params.ReferralAddress != "" && !types.IsValidAddress(params.ReferralAddress) {
		return nil, zaperr.Newf(zaperr.KindValidation, "invalid params.referralAddress %q", params.ReferralAddress)
	}
	if params.TargetToken != "" && !h.allowedTargets[params.TargetToken] {
		return nil, zaperr.Newf(zaperr.KindValidation, "unsupported params.targetToken %q", params.TargetToken)
	}
	for i := range params.DustTokens {
		if err := validateDustToken(&params.DustTokens[i], i); err != nil {
			return nil, err
		}
	}
	return &params, nil
}

// validateDustToken checks the shape of a client-supplied dust token. The
// raw amount hex itself is parsed later by the token processor so malformed
// amounts surface as per-token failures instead of rejecting the batch.
func validateDustToken(t *types.Token, idx int) error {
	if !types.IsValidAddress(t.Address) {
		return zaperr.Newf(zaperr.KindValidation, "dustTokens[%d].address is invalid", idx)
	}
	if t.Symbol == "" {
		return zaperr.Newf(zaperr.KindValidation, "dustTokens[%d].symbol is required", idx)
	}
	if t.Decimals < 0 || t.Decimals > 18 {
		return zaperr.Newf(zaperr.KindValidation, "dustTokens[%d].decimals must be in [0,18]", idx)
	}
	if t.RawAmountHex == "" {
		return zaperr.Newf(zaperr.KindValidation, "dustTokens[%d].rawAmountHex is required", idx)
	}
	if t.PriceUSD.Sign() < 0 {
		return zaperr.Newf(zaperr.KindValidation, "dustTokens[%d].priceUSD must be non-negative", idx)
	}
	return nil
}

func (h *DustZapHandler) collectDustTokens(ctx context.Context, req *IntentRequest, params *DustZapParams) ([]types.Token, error) {
	tokens := params.DustTokens

	// nil means the client left discovery to us; an explicit empty array is
	// a request with nothing to zap.
	if tokens == nil {
		discovered, err := h.balances.GetBalances(ctx, req.UserAddress, req.ChainID)
		if err != nil {
			return nil, zaperr.Wrap(zaperr.KindUpstream, err, "wallet balance lookup failed")
		}
		tokens = h.filterDust(discovered, params.ToTokenAddress)
	}

	if len(tokens) == 0 {
		return nil, zaperr.New(zaperr.KindNoDustTokens, "no dust tokens to zap")
	}
	if len(tokens) > h.cfg.MaxDustTokens {
		return nil, zaperr.Newf(zaperr.KindValidation, "too many dust tokens: %d (max %d)", len(tokens), h.cfg.MaxDustTokens)
	}

	for i := range tokens {
		// Best effort; unparseable raw amounts fail per token downstream.
		_ = tokens[i].DeriveHumanAmount()
	}
	return tokens, nil
}

// filterDust keeps discovered balances worth at least the dust threshold,
// excluding the target token itself and anything without a usable price or
// decimals.
func (h *DustZapHandler) filterDust(discovered []types.Token, targetAddress string) []types.Token {
	threshold := decimal.NewFromFloat(h.cfg.DustThresholdUSD)
	var kept []types.Token
	for _, t := range discovered {
		if strings.EqualFold(t.Address, targetAddress) {
			continue
		}
		if t.PriceUSD.Sign() <= 0 || t.Decimals < 0 || t.Decimals > 18 {
			continue
		}
		if err := t.DeriveHumanAmount(); err != nil {
			continue
		}
		if t.ValueUSD().LessThan(threshold) {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
