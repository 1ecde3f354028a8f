package domain

import (
	arbDomain "github.com/fd1az/flasharb/business/arbitrage/domain"
)

// Policy is an allow/deny table over the closed set of action categories.
// Unknown categories are denied.
type Policy struct {
	denied map[arbDomain.ActionCategory]bool
}

// knownActions is the closed category set; anything else is rejected.
var knownActions = map[arbDomain.ActionCategory]bool{
	arbDomain.ActionCycleSwap:      true,
	arbDomain.ActionCrossVenueSwap: true,
	arbDomain.ActionLiquidation:    true,
	arbDomain.ActionSandwich:       true,
}

// NewPolicy creates a policy denying the given categories.
func NewPolicy(denied []arbDomain.ActionCategory) *Policy {
	m := make(map[arbDomain.ActionCategory]bool, len(denied))
	for _, a := range denied {
		m[a] = true
	}
	return &Policy{denied: m}
}

// Allowed reports whether the action category may trade.
func (p *Policy) Allowed(action arbDomain.ActionCategory) bool {
	if !knownActions[action] {
		return false
	}
	return !p.denied[action]
}
