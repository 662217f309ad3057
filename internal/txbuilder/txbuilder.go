// Package txbuilder assembles the ordered approve/swap/transfer sequence a
// dust-zap intent hands back to the client-side signer. The builder is
// append-only: indices are monotonic from zero and past entries never
// mutate.
package txbuilder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
)

const (
	APPROVE_GAS_LIMIT         = 60_000
	NATIVE_TRANSFER_GAS_LIMIT = 21_000
	GAS_LIMIT_BUFFER_PERCENT  = 30
)

const erc20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var erc20 abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 ABI: %v", err))
	}
	erc20 = parsed
}

// Builder accumulates transactions for one stream session.
type Builder struct {
	txs      []types.Transaction
	totalGas *big.Int
}

func New() *Builder {
	return &Builder{totalGas: new(big.Int)}
}

// AddApprove appends an ERC-20 approve(spender, amount) call to the token
// contract and returns its index.
func (b *Builder) AddApprove(token, spender common.Address, amount *big.Int) (int, error) {
	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to pack approve data: %v", err)
	}

	gasLimit := uint64(APPROVE_GAS_LIMIT) * (100 + GAS_LIMIT_BUFFER_PERCENT) / 100
	return b.append(types.Transaction{
		To:          token.Hex(),
		Data:        hexutil.Encode(data),
		Value:       "0",
		GasLimit:    fmt.Sprintf("%d", gasLimit),
		Description: fmt.Sprintf("Approve %s for swap", token.Hex()),
	}, gasLimit), nil
}

// AddSwap appends the aggregator swap call carried by the quote.
func (b *Builder) AddSwap(quote *types.SwapQuote, description string) int {
	gasLimit := quote.Gas * (100 + GAS_LIMIT_BUFFER_PERCENT) / 100
	return b.append(types.Transaction{
		To:          quote.To,
		Data:        quote.Data,
		Value:       "0",
		GasLimit:    fmt.Sprintf("%d", gasLimit),
		Description: description,
	}, gasLimit)
}

// AddNativeTransfer appends a plain value transfer of rawWei.
func (b *Builder) AddNativeTransfer(to common.Address, rawWei *big.Int, description string) int {
	return b.append(types.Transaction{
		To:          to.Hex(),
		Data:        "0x",
		Value:       rawWei.String(),
		GasLimit:    fmt.Sprintf("%d", NATIVE_TRANSFER_GAS_LIMIT),
		Description: description,
	}, NATIVE_TRANSFER_GAS_LIMIT)
}

func (b *Builder) append(tx types.Transaction, gasLimit uint64) int {
	b.txs = append(b.txs, tx)
	b.totalGas.Add(b.totalGas, new(big.Int).SetUint64(gasLimit))
	return len(b.txs) - 1
}

// Transactions returns a copy of the accumulated sequence.
func (b *Builder) Transactions() []types.Transaction {
	out := make([]types.Transaction, len(b.txs))
	copy(out, b.txs)
	return out
}

// TotalGas returns the cumulative gas limit as a decimal string.
func (b *Builder) TotalGas() string {
	return b.totalGas.String()
}

// Len returns the number of appended transactions.
func (b *Builder) Len() int {
	return len(b.txs)
}
