package domain

import (
	"testing"

	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
)

func TestPolicyDeniesListedAndUnknownActions(t *testing.T) {
	p := NewPolicy([]arbDomain.ActionCategory{arbDomain.ActionSandwich})

	cases := []struct {
		action  arbDomain.ActionCategory
		allowed bool
	}{
		{arbDomain.ActionCycleSwap, true},
		{arbDomain.ActionCrossVenueSwap, true},
		{arbDomain.ActionLiquidation, true},
		{arbDomain.ActionSandwich, false},
		{arbDomain.ActionCategory("free-text-exploit"), false},
	}

	for _, tc := range cases {
		if got := p.Allowed(tc.action); got != tc.allowed {
			t.Errorf("Allowed(%s) = %v, want %v", tc.action, got, tc.allowed)
		}
	}
}
