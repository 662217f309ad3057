// Package types holds the wire and data model shared across the dust-zap
// engine: dust tokens, swap quotes, execution contexts and the transactions
// returned to the client-side signer.
package types

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// rawAmountRe matches a hex-encoded raw token amount, 0x prefix optional.
var rawAmountRe = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)

// addressRe matches a checksummed or lowercase EVM address.
var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Token is a single dust balance held by the user wallet. Immutable once
// accepted by the intent handler.
type Token struct {
	Address      string          `json:"address"`
	Symbol       string          `json:"symbol"`
	Decimals     int             `json:"decimals"`
	PriceUSD     decimal.Decimal `json:"priceUSD"`
	HumanAmount  decimal.Decimal `json:"humanAmount"`
	RawAmountHex string          `json:"rawAmountHex"`
}

// RawAmount parses RawAmountHex into an integer in the token's smallest unit.
func (t *Token) RawAmount() (*big.Int, error) {
	if !rawAmountRe.MatchString(t.RawAmountHex) {
		return nil, fmt.Errorf("invalid raw amount hex %q for token %s", t.RawAmountHex, t.Symbol)
	}
	hexPart := strings.TrimPrefix(t.RawAmountHex, "0x")
	amount, ok := new(big.Int).SetString(hexPart, 16)
	if !ok {
		return nil, fmt.Errorf("unparseable raw amount hex %q for token %s", t.RawAmountHex, t.Symbol)
	}
	return amount, nil
}

// ValueUSD returns the USD value of the balance at the recorded price.
func (t *Token) ValueUSD() decimal.Decimal {
	return t.HumanAmount.Mul(t.PriceUSD)
}

// DeriveHumanAmount fills HumanAmount from the raw amount when the client
// did not supply it.
func (t *Token) DeriveHumanAmount() error {
	if !t.HumanAmount.IsZero() {
		return nil
	}
	raw, err := t.RawAmount()
	if err != nil {
		return err
	}
	t.HumanAmount = decimal.NewFromBigInt(raw, -int32(t.Decimals))
	return nil
}

// IsValidAddress reports whether s is a well-formed EVM address.
func IsValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// TokenRef identifies one side of a swap.
type TokenRef struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// ToToken is the target token of a zap, priced in USD.
type ToToken struct {
	Address  string          `json:"address"`
	Decimals int             `json:"decimals"`
	PriceUSD decimal.Decimal `json:"priceUSD"`
}

// QuoteRequest is the normalized input for every aggregator adapter.
type QuoteRequest struct {
	ChainID         int64
	FromToken       TokenRef
	ToToken         TokenRef
	Amount          *big.Int
	FromAddress     string
	SlippagePct     float64
	ETHPriceUSD     decimal.Decimal
	ToTokenPriceUSD decimal.Decimal
}

// SwapQuote is one provider's priced, calldata-ready swap proposal.
type SwapQuote struct {
	Provider       string
	To             string
	ApproveTo      string
	ToAmount       *big.Int
	MinToAmount    *big.Int
	Data           string
	Gas            uint64
	GasCostUSD     decimal.Decimal
	ToUSD          decimal.Decimal
	CustomSlippage float64
}

// NetToUSD is the ranking value used by the selector: output USD net of gas.
func (q *SwapQuote) NetToUSD() decimal.Decimal {
	return q.ToUSD.Sub(q.GasCostUSD)
}

// Transaction is one step of the zap batch, ready for a client-side signer.
// Value and GasLimit are decimal strings.
type Transaction struct {
	To          string `json:"to"`
	Data        string `json:"data"`
	Value       string `json:"value"`
	GasLimit    string `json:"gasLimit"`
	Description string `json:"description,omitempty"`
}

// TradingLoss quantifies how much value a token conversion gave up.
type TradingLoss struct {
	InputValueUSD  decimal.Decimal `json:"inputValueUSD"`
	OutputValueUSD decimal.Decimal `json:"outputValueUSD"`
	NetLossUSD     decimal.Decimal `json:"netLossUSD"`
	LossPercentage decimal.Decimal `json:"lossPercentage"`
}

// ExecutionContext carries everything the streaming pipeline needs to run a
// dust-zap intent. Created by the intent handler, consumed exactly once by
// the stream, evicted by the context manager when unconsumed past its TTL.
type ExecutionContext struct {
	IntentID        string
	UserAddress     string
	ChainID         int64
	DustTokens      []Token
	ETHPriceUSD     decimal.Decimal
	ToToken         ToToken
	SlippagePct     float64
	ReferralAddress string
	CreatedAt       time.Time
}

// SlippageBps converts a percentage like 1.25 into basis points (125).
func SlippageBps(slippagePct float64) int64 {
	return int64(slippagePct * 100)
}

// MinOutAmount applies slippage to an expected output amount using integer
// arithmetic: floor(toAmount * (10000 - bps) / 10000).
func MinOutAmount(toAmount *big.Int, slippagePct float64) *big.Int {
	bps := big.NewInt(10000 - SlippageBps(slippagePct))
	min := new(big.Int).Mul(toAmount, bps)
	return min.Div(min, big.NewInt(10000))
}
