package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGasPriceCostETH(t *testing.T) {
	// 50 gwei * 200k gas = 0.01 ETH
	price := NewGasPrice(big.NewInt(50_000_000_000))

	got := price.CostETH(200_000)
	want := decimal.RequireFromString("0.01")
	if !got.Equal(want) {
		t.Errorf("CostETH = %s, want %s", got, want)
	}

	if g := price.Gwei(); g != 50 {
		t.Errorf("Gwei = %f, want 50", g)
	}
}

func TestBlockGasUtilization(t *testing.T) {
	cases := []struct {
		name     string
		used     uint64
		limit    uint64
		expected float64
	}{
		{"half full", 15_000_000, 30_000_000, 0.5},
		{"empty", 0, 30_000_000, 0},
		{"zero limit", 100, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &Block{GasUsed: tc.used, GasLimit: tc.limit}
			if got := b.GasUtilization(); got != tc.expected {
				t.Errorf("GasUtilization = %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestBlockBaseFeeGwei(t *testing.T) {
	b := &Block{BaseFee: big.NewInt(30_000_000_000)}
	if got := b.BaseFeeGwei(); got != 30 {
		t.Errorf("BaseFeeGwei = %f, want 30", got)
	}

	none := &Block{}
	if got := none.BaseFeeGwei(); got != 0 {
		t.Errorf("BaseFeeGwei without base fee = %f, want 0", got)
	}
}
