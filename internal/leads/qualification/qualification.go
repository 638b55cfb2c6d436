// Package qualification tracks a lead's cold/warm/hot tier across a conversation.
// Tiers only move upward on evaluation; an operator reset is the only way down.
package qualification

import (
	"fmt"

	"chable_leads_backend/internal/leads/domain"
)

// Reasons recorded alongside tier changes.
const (
	ReasonMessage      = "message"
	ReasonConversation = "conversation"
	ReasonAudit        = "audit"
	ReasonReset        = "operator_reset"
)

// Transition describes the effect of one evaluation on a tier.
type Transition struct {
	From    domain.Tier
	To      domain.Tier
	Reason  string
	Changed bool
}

// Evaluate escalates current to observed if observed ranks higher. observed is
// the tier of the strongest marker in a signal (see domain.InterestSignal.Tier).
// Re-evaluating without new markers leaves tier unchanged.
func Evaluate(current, observed domain.Tier, reason string) Transition {
	if !current.Valid() {
		current = domain.TierCold
	}
	next := current.Max(observed)
	return Transition{From: current, To: next, Reason: reason, Changed: next != current}
}

// Initial returns the tier a brand new lead starts at when observed is the
// first tier seen for it.
func Initial(observed domain.Tier) domain.Tier {
	return domain.TierCold.Max(observed)
}

// Reset moves a lead to target regardless of order. It is only reachable
// from operator actions.
func Reset(current, target domain.Tier) (Transition, error) {
	if !target.Valid() {
		return Transition{}, fmt.Errorf("reset to unknown tier %q", target)
	}
	return Transition{From: current, To: target, Reason: ReasonReset, Changed: current != target}, nil
}
