package stream

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/txbuilder"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// QuoteSource provides the best available swap quote for a request.
type QuoteSource interface {
	GetBest(ctx context.Context, req *types.QuoteRequest) (*types.SwapQuote, error)
}

// Outcome is the tagged result of processing one dust token: exactly one of
// Success or Failure is set.
type Outcome struct {
	Success *SuccessResult
	Failure *FailureResult
}

type SuccessResult struct {
	Quote        *types.SwapQuote
	Transactions []types.Transaction
	InputUSD     decimal.Decimal
	Loss         types.TradingLoss
}

type FailureResult struct {
	Kind        zaperr.Kind
	Message     string
	UserMessage string
	Provider    string
	InputUSD    decimal.Decimal
	Loss        types.TradingLoss
}

// Processor converts one dust token into approve+swap transactions, or a
// classified failure. One token failing never aborts the batch.
type Processor struct {
	quotes QuoteSource
	log    *logrus.Entry
}

func NewProcessor(quotes QuoteSource, log *logrus.Logger) *Processor {
	return &Processor{
		quotes: quotes,
		log:    log.WithField("component", "token-processor"),
	}
}

// Process quotes and assembles the swap for a single token, appending its
// approve and swap calls to the builder on success.
func (p *Processor) Process(ctx context.Context, ectx *types.ExecutionContext, token *types.Token, builder *txbuilder.Builder) Outcome {
	inputUSD := token.ValueUSD()

	rawAmount, err := token.RawAmount()
	if err != nil {
		return p.failure(token, inputUSD, zaperr.Wrap(zaperr.KindValidation, err, "invalid raw amount"))
	}

	req := &types.QuoteRequest{
		ChainID:         ectx.ChainID,
		FromToken:       types.TokenRef{Address: token.Address, Decimals: token.Decimals},
		ToToken:         types.TokenRef{Address: ectx.ToToken.Address, Decimals: ectx.ToToken.Decimals},
		Amount:          rawAmount,
		FromAddress:     ectx.UserAddress,
		SlippagePct:     ectx.SlippagePct,
		ETHPriceUSD:     ectx.ETHPriceUSD,
		ToTokenPriceUSD: ectx.ToToken.PriceUSD,
	}

	quote, err := p.quotes.GetBest(ctx, req)
	if err != nil {
		return p.failure(token, inputUSD, err)
	}

	approveIdx, err := builder.AddApprove(common.HexToAddress(token.Address), common.HexToAddress(quote.ApproveTo), rawAmount)
	if err != nil {
		return p.failure(token, inputUSD, zaperr.Wrap(zaperr.KindInternal, err, "failed to build approve"))
	}
	builder.AddSwap(quote, fmt.Sprintf("Swap %s via %s", token.Symbol, quote.Provider))

	txs := builder.Transactions()
	pair := txs[approveIdx : approveIdx+2]

	outputUSD := quote.ToUSD.Add(quote.GasCostUSD)
	netLoss := inputUSD.Sub(quote.ToUSD)
	lossPct := decimal.Zero
	if inputUSD.Sign() > 0 {
		lossPct = netLoss.Div(inputUSD).Mul(decimal.NewFromInt(100))
	}

	return Outcome{Success: &SuccessResult{
		Quote:        quote,
		Transactions: pair,
		InputUSD:     inputUSD,
		Loss: types.TradingLoss{
			InputValueUSD:  inputUSD,
			OutputValueUSD: outputUSD,
			NetLossUSD:     netLoss,
			LossPercentage: lossPct,
		},
	}}
}

func (p *Processor) failure(token *types.Token, inputUSD decimal.Decimal, err error) Outcome {
	kind := zaperr.KindOf(err)
	provider := "failed"
	var ze *zaperr.Error
	if e, ok := err.(*zaperr.Error); ok {
		ze = e
	}
	if ze != nil && ze.Provider != "" {
		provider = ze.Provider
	}

	lossPct := decimal.Zero
	if inputUSD.Sign() > 0 {
		lossPct = decimal.NewFromInt(100)
	}

	p.log.WithFields(logrus.Fields{
		"token": token.Symbol,
		"kind":  kind,
	}).Warn("token processing failed")

	return Outcome{Failure: &FailureResult{
		Kind:        kind,
		Message:     err.Error(),
		UserMessage: zaperr.UserMessage(kind, token.Symbol),
		Provider:    provider,
		InputUSD:    inputUSD,
		Loss: types.TradingLoss{
			InputValueUSD:  inputUSD,
			OutputValueUSD: decimal.Zero,
			NetLossUSD:     inputUSD,
			LossPercentage: lossPct,
		},
	}}
}
