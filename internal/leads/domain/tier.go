// Package domain provides core business rules for the lead qualification bounded context.
package domain

import (
	"fmt"
	"strings"
)

// Tier is a lead's qualification level. Tiers are totally ordered by Rank.
type Tier string

const (
	TierCold Tier = "cold"
	TierWarm Tier = "warm"
	TierHot  Tier = "hot"
)

var tierRank = map[Tier]int{
	TierCold: 0,
	TierWarm: 1,
	TierHot:  2,
}

// Rank returns the position of t in the cold < warm < hot order.
// Unknown values rank as cold.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Max returns whichever of t and other ranks higher.
func (t Tier) Max(other Tier) Tier {
	if other.Rank() > t.Rank() {
		return other
	}
	if !t.Valid() {
		return TierCold
	}
	return t
}

// InterestLevel maps the tier onto the CRM's low/medium/high scale.
func (t Tier) InterestLevel() string {
	switch t {
	case TierHot:
		return "high"
	case TierWarm:
		return "medium"
	default:
		return "low"
	}
}

// ParseTier converts a stored or user-supplied value into a Tier.
func ParseTier(value string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", value)
	}
	return t, nil
}
