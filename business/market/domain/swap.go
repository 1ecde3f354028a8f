package domain

import "github.com/shopspring/decimal"

var bpsDenominator = decimal.NewFromInt(10000)

// SwapOut computes the constant-product output amount:
//
//	inWithFee = amountIn * (10000 - feeBps) / 10000
//	out       = inWithFee * reserveOut / (reserveIn + inWithFee)
//
// Returns zero for non-positive input or empty reserves.
func SwapOut(amountIn, reserveIn, reserveOut, feeBps decimal.Decimal) decimal.Decimal {
	if !amountIn.IsPositive() || !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero
	}

	inWithFee := amountIn.Mul(bpsDenominator.Sub(feeBps)).Div(bpsDenominator)
	return inWithFee.Mul(reserveOut).Div(reserveIn.Add(inWithFee))
}

// EffectivePrice returns the average execution price (out/in) for a swap of
// amountIn, fee and price impact included.
func EffectivePrice(amountIn, reserveIn, reserveOut, feeBps decimal.Decimal) decimal.Decimal {
	if !amountIn.IsPositive() {
		return decimal.Zero
	}
	return SwapOut(amountIn, reserveIn, reserveOut, feeBps).Div(amountIn)
}

// PriceImpactBps returns how far the effective price falls below the spot
// price, in basis points. Large trades close the spread they try to exploit,
// so detectors must filter on the impacted price, not the spot price.
func PriceImpactBps(amountIn, reserveIn, reserveOut, feeBps decimal.Decimal) decimal.Decimal {
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return decimal.Zero
	}
	spot := reserveOut.Div(reserveIn)
	effective := EffectivePrice(amountIn, reserveIn, reserveOut, feeBps)
	if spot.IsZero() {
		return decimal.Zero
	}
	return spot.Sub(effective).Div(spot).Mul(bpsDenominator)
}
