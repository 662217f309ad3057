// Package fees computes the platform fee for a zap batch and splits it
// between referrer and treasury using integer wei math.
package fees

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nimazeighami/dust-zap-engine/internal/txbuilder"
)

var weiPerEth = decimal.New(1, 18)

// Calculator splits the platform fee. Shares are fractions; the referrer
// share is quantized to whole percents before splitting so the wei split is
// exact.
type Calculator struct {
	PlatformFeeRate float64
	ReferrerShare   float64
	Treasury        common.Address
}

func NewCalculator(platformFeeRate, referrerShare float64, treasury common.Address) *Calculator {
	return &Calculator{
		PlatformFeeRate: platformFeeRate,
		ReferrerShare:   referrerShare,
		Treasury:        treasury,
	}
}

// Info is the fee summary exposed to clients. It deliberately carries no
// transaction indices, only amounts and a count.
type Info struct {
	TotalFeeUSD         decimal.Decimal `json:"totalFeeUsd"`
	ReferrerFeeUSD      decimal.Decimal `json:"referrerFeeUSD"`
	TreasuryFee         decimal.Decimal `json:"treasuryFee"`
	FeeTransactionCount int             `json:"feeTransactionCount"`
}

// TotalFeeWei converts the USD fee on totalValueUSD into wei at the given
// ETH price: floor(totalValueUSD * rate / ethPriceUSD * 1e18).
func (c *Calculator) TotalFeeWei(totalValueUSD, ethPriceUSD decimal.Decimal) (*big.Int, error) {
	if ethPriceUSD.Sign() <= 0 {
		return nil, fmt.Errorf("eth price must be positive, got %s", ethPriceUSD)
	}
	rate := decimal.NewFromFloat(c.PlatformFeeRate)
	feeUSD := totalValueUSD.Mul(rate)
	// Multiply into wei scale before dividing so the division precision
	// cannot disturb the integer part. BigInt truncates toward zero; fee
	// amounts are non-negative so this is the required floor.
	return feeUSD.Mul(weiPerEth).Div(ethPriceUSD).BigInt(), nil
}

// Split divides totalFeeWei into referrer and treasury parts. The referrer
// part is totalFeeWei * floor(share*100) / 100 in bigint arithmetic so that
// referrer + treasury always equals the total exactly.
func (c *Calculator) Split(totalFeeWei *big.Int) (referrerWei, treasuryWei *big.Int) {
	sharePct := big.NewInt(int64(math.Floor(c.ReferrerShare * 100)))
	referrerWei = new(big.Int).Mul(totalFeeWei, sharePct)
	referrerWei.Div(referrerWei, big.NewInt(100))
	treasuryWei = new(big.Int).Sub(totalFeeWei, referrerWei)
	return referrerWei, treasuryWei
}

// Append computes the fee for the batch and appends one or two native
// transfers to the builder: referrer + treasury when a referral address is
// present, otherwise a single treasury transfer.
func (c *Calculator) Append(b *txbuilder.Builder, totalValueUSD, ethPriceUSD decimal.Decimal, referralAddress string) (*Info, error) {
	totalFeeWei, err := c.TotalFeeWei(totalValueUSD, ethPriceUSD)
	if err != nil {
		return nil, err
	}

	totalFeeUSD := totalValueUSD.Mul(decimal.NewFromFloat(c.PlatformFeeRate))

	if referralAddress == "" {
		b.AddNativeTransfer(c.Treasury, totalFeeWei, "Platform fee")
		return &Info{
			TotalFeeUSD:         totalFeeUSD,
			ReferrerFeeUSD:      decimal.Zero,
			TreasuryFee:         totalFeeUSD,
			FeeTransactionCount: 1,
		}, nil
	}

	referrerWei, treasuryWei := c.Split(totalFeeWei)
	b.AddNativeTransfer(common.HexToAddress(referralAddress), referrerWei, "Referral fee")
	b.AddNativeTransfer(c.Treasury, treasuryWei, "Platform fee")

	referrerUSD := weiShareUSD(referrerWei, totalFeeWei, totalFeeUSD)
	return &Info{
		TotalFeeUSD:         totalFeeUSD,
		ReferrerFeeUSD:      referrerUSD,
		TreasuryFee:         totalFeeUSD.Sub(referrerUSD),
		FeeTransactionCount: 2,
	}, nil
}

// weiShareUSD apportions the USD fee display value by the wei split.
func weiShareUSD(part, total *big.Int, totalUSD decimal.Decimal) decimal.Decimal {
	if total.Sign() == 0 {
		return decimal.Zero
	}
	partDec := decimal.NewFromBigInt(part, 0)
	totalDec := decimal.NewFromBigInt(total, 0)
	return totalUSD.Mul(partDec).Div(totalDec)
}
