package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSwapOut(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   string
		reserveIn  string
		reserveOut string
		feeBps     string
		want       string
		tolerance  string
	}{
		{
			name:       "balanced pool small trade",
			amountIn:   "10",
			reserveIn:  "1000",
			reserveOut: "1000",
			feeBps:     "30",
			want:       "9.871580343970612988",
			tolerance:  "0.000001",
		},
		{
			name:       "skewed pool",
			amountIn:   "10",
			reserveIn:  "1000",
			reserveOut: "2000",
			feeBps:     "30",
			want:       "19.743160687941225976",
			tolerance:  "0.000001",
		},
		{
			name:       "zero fee",
			amountIn:   "100",
			reserveIn:  "1000",
			reserveOut: "1000",
			feeBps:     "0",
			want:       "90.909090909090909091",
			tolerance:  "0.000001",
		},
		{
			name:       "zero input",
			amountIn:   "0",
			reserveIn:  "1000",
			reserveOut: "1000",
			feeBps:     "30",
			want:       "0",
			tolerance:  "0",
		},
		{
			name:       "empty reserves",
			amountIn:   "10",
			reserveIn:  "0",
			reserveOut: "1000",
			feeBps:     "30",
			want:       "0",
			tolerance:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SwapOut(
				decimal.RequireFromString(tt.amountIn),
				decimal.RequireFromString(tt.reserveIn),
				decimal.RequireFromString(tt.reserveOut),
				decimal.RequireFromString(tt.feeBps),
			)
			want := decimal.RequireFromString(tt.want)
			tol := decimal.RequireFromString(tt.tolerance)
			if got.Sub(want).Abs().GreaterThan(tol) {
				t.Errorf("SwapOut() = %s, want %s (±%s)", got, want, tol)
			}
		})
	}
}

func TestSwapOutNeverExceedsReserve(t *testing.T) {
	// Even absurdly large input cannot drain the out-side reserve.
	out := SwapOut(
		decimal.RequireFromString("1000000000"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("2000"),
		decimal.RequireFromString("30"),
	)
	if out.GreaterThanOrEqual(decimal.RequireFromString("2000")) {
		t.Errorf("output %s reached the reserve ceiling", out)
	}
}

func TestPriceImpactBps(t *testing.T) {
	// A trade of 10% of the in-reserve must show material impact.
	impact := PriceImpactBps(
		decimal.RequireFromString("100"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("30"),
	)
	if impact.LessThan(decimal.RequireFromString("900")) {
		t.Errorf("impact %s bps, expected >= 900 bps for a 10%% trade", impact)
	}

	// A tiny trade approaches zero impact beyond the fee.
	small := PriceImpactBps(
		decimal.RequireFromString("0.0001"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("1000"),
		decimal.RequireFromString("0"),
	)
	if small.GreaterThan(decimal.RequireFromString("1")) {
		t.Errorf("small trade impact %s bps, expected < 1 bps", small)
	}
}
