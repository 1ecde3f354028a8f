package app

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
	marketDomain "github.com/fd1az/flasharb/business/market/domain"
	"github.com/fd1az/flasharb/internal/asset"
)

var testExecutor = common.HexToAddress("0x00000000000000000000000000000000000000EE")

// testOpportunity is a WETH -> USDC -> WETH cross-venue path: borrow 10
// WETH, 0.1 WETH expected profit, priced from generation 7.
func testOpportunity() *arbDomain.Opportunity {
	ten := decimal.NewFromInt(10)
	steps := []arbDomain.SwapStep{
		{
			PoolAddress: "0x0000000000000000000000000000000000000001",
			Venue:       marketDomain.VenueUniswapV2,
			TokenIn:     asset.IDEthereumWETH,
			TokenOut:    asset.IDEthereumUSDC,
			AmountIn:    ten,
			ExpectedOut: decimal.NewFromInt(20000),
		},
		{
			PoolAddress: "0x0000000000000000000000000000000000000002",
			Venue:       marketDomain.VenueSushiswap,
			TokenIn:     asset.IDEthereumUSDC,
			TokenOut:    asset.IDEthereumWETH,
			AmountIn:    decimal.NewFromInt(20000),
			ExpectedOut: decimal.RequireFromString("10.1"),
		},
	}
	opp := arbDomain.NewOpportunity(arbDomain.TypeSpatial, arbDomain.ActionCrossVenueSwap, steps, asset.IDEthereumWETH, ten, 7)
	opp.GrossProfit = decimal.RequireFromString("0.1")
	opp.GasEstimate = 490000
	return opp
}

func testBuilder() *TxBuilder {
	return NewTxBuilder(asset.DefaultRegistry(), testExecutor, decimal.NewFromInt(50), 90*time.Second)
}

func TestTxBuilderFullApproval(t *testing.T) {
	opp := testOpportunity()
	req, err := testBuilder().Build(opp, opp.BorrowAmount, 42, big.NewInt(50_000_000_000), big.NewInt(2_000_000_000))
	if err != nil {
		t.Fatal(err)
	}

	if req.Nonce != 42 {
		t.Errorf("nonce = %d, want 42", req.Nonce)
	}
	if req.To != testExecutor {
		t.Errorf("to = %s, want executor", req.To.Hex())
	}
	// 20% buffer over the 490k estimate.
	if req.GasLimit != 588000 {
		t.Errorf("gas limit = %d, want 588000", req.GasLimit)
	}

	// 10 WETH in raw units.
	wantBorrow := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	if req.BorrowAmount.Cmp(wantBorrow) != 0 {
		t.Errorf("borrow = %s, want %s", req.BorrowAmount, wantBorrow)
	}

	// First hop min-out: 20000 USDC less 50 bps, in 6-decimal units.
	wantMinOut := big.NewInt(19_900_000_000)
	if req.Calls[0].MinOut.Cmp(wantMinOut) != 0 {
		t.Errorf("step 0 min out = %s, want %s", req.Calls[0].MinOut, wantMinOut)
	}
	if req.Calls[0].TokenIn != asset.AddrWETHEthereum {
		t.Errorf("step 0 token in = %s, want WETH", req.Calls[0].TokenIn.Hex())
	}
}

func TestTxBuilderScalesPartialApproval(t *testing.T) {
	opp := testOpportunity()
	half := decimal.NewFromInt(5)

	req, err := testBuilder().Build(opp, half, 0, big.NewInt(1), big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}

	wantIn := new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))
	if req.Calls[0].AmountIn.Cmp(wantIn) != 0 {
		t.Errorf("step 0 amount in = %s, want %s", req.Calls[0].AmountIn, wantIn)
	}
	// Half of 20000 USDC, less 50 bps.
	wantMinOut := big.NewInt(9_950_000_000)
	if req.Calls[0].MinOut.Cmp(wantMinOut) != 0 {
		t.Errorf("step 0 min out = %s, want %s", req.Calls[0].MinOut, wantMinOut)
	}
}

func TestTxBuilderRejectsUnknownAsset(t *testing.T) {
	opp := testOpportunity()
	opp.Steps[0].TokenOut = asset.NewTokenAssetID(1, common.HexToAddress("0xdead"))
	opp.Steps[1].TokenIn = opp.Steps[0].TokenOut

	if _, err := testBuilder().Build(opp, opp.BorrowAmount, 0, big.NewInt(1), big.NewInt(1)); err == nil {
		t.Fatal("expected an error for an unregistered asset")
	}
}

func TestTxRequestBumpFees(t *testing.T) {
	req := &TxRequest{GasFeeCap: big.NewInt(100), GasTipCap: big.NewInt(8)}
	req.BumpFees(1.25)

	if req.GasFeeCap.Cmp(big.NewInt(125)) != 0 {
		t.Errorf("fee cap = %s, want 125", req.GasFeeCap)
	}
	if req.GasTipCap.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("tip cap = %s, want 10", req.GasTipCap)
	}
}
