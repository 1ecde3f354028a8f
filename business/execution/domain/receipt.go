package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Receipt is the confirmed on-chain result of a submitted arbitrage
// transaction.
type Receipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Reverted          bool
	Confirmations     uint64
	ConfirmedAt       time.Time
}

// GasCostETH returns the total gas spend in ETH.
func (r *Receipt) GasCostETH() decimal.Decimal {
	if r.EffectiveGasPrice == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(r.EffectiveGasPrice, new(big.Int).SetUint64(r.GasUsed))
	return decimal.NewFromBigInt(wei, -18)
}
